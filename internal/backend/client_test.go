package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatWidget/internal/telemetry"
)

func newTestClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	p := telemetry.Noop()
	client, err := NewClient(url, timeout, telemetry.NopLogger(), p.Tracer, p.Meter)
	require.NoError(t, err)
	return client
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","model":"distilgpt2"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/", time.Second)
	resp, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, resp.Status)
}

func TestChatSendsGenerationParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("content-type"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Hello", req.Message)
		assert.Equal(t, 150, req.MaxLength)
		assert.Equal(t, 0.7, req.Temperature)

		w.Write([]byte(`{"reply":"Hi there"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	resp, err := client.Chat(context.Background(), ChatRequest{Message: "Hello", MaxLength: 150, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Reply)
}

func TestChatErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"model not loaded"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "model not loaded", apiErr.Detail)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestChatErrorWithoutDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Detail)
}

func TestChatMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal response")
}

func TestChatMissingReply(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"other fields", `{"response":"Hi there"}`},
		{"null reply", `{"reply":null}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, time.Second)
			_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})
			assert.ErrorIs(t, err, ErrMissingReply)
		})
	}
}

func TestChatEmptyReplyIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"reply":""}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	resp, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})
	require.NoError(t, err)
	assert.Empty(t, resp.Reply)
}

func TestChatBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"reply":"`))
		w.Write([]byte(strings.Repeat("a", maxBodyBytes)))
		w.Write([]byte(`"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestErrorBodyTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", maxBodyBytes+10)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Len(t, apiErr.Detail, maxBodyBytes)
}

func TestChatTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server.URL, 50*time.Millisecond)
	_, err := client.Chat(context.Background(), ChatRequest{Message: "Hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send request")
}

func TestConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, url, time.Second)
	_, err := client.Health(context.Background())
	assert.Error(t, err)
}

func TestChatRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	client.SetRateLimit(1)

	_, err := client.Chat(context.Background(), ChatRequest{Message: "one"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Chat(ctx, ChatRequest{Message: "two"})
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load(), "throttled request never reaches the server")

	client.SetRateLimit(0)
	_, err = client.Chat(context.Background(), ChatRequest{Message: "three"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}
