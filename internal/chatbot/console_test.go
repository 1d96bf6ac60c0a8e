package chatbot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/session"
)

func TestConsoleRun(t *testing.T) {
	h := newHarness(t, nil)
	h.api.chatFn = func(context.Context, backend.ChatRequest) (backend.ChatResponse, error) {
		return backend.ChatResponse{Reply: "Hi there"}, nil
	}

	var out bytes.Buffer
	console := NewConsole(&out)
	in := strings.NewReader("Hello\n\n/theme\n/bogus\n/clear\n/quit\nnever sent\n")

	require.NoError(t, console.Run(context.Background(), h.ctrl, in))

	text := out.String()
	assert.Contains(t, text, "Bot: Welcome!")
	assert.Contains(t, text, "Bot is typing...")
	assert.Contains(t, text, "Bot: Hi there")
	assert.Contains(t, text, "Theme: dark")
	assert.Contains(t, text, "Unknown command: /bogus")
	assert.Contains(t, text, "Transcript cleared.")
	assert.Contains(t, text, "Goodbye!")
	assert.NotContains(t, text, "Bot: Hello", "user messages are not echoed")

	assert.Equal(t, 1, h.api.chatCount())
	assert.Equal(t, 1, h.api.healthCalls)
	assert.Len(t, h.ctrl.Snapshot().Transcript, 1)
}

func TestConsoleShowsFailureNotification(t *testing.T) {
	h := newHarness(t, nil)
	h.api.chatFn = func(context.Context, backend.ChatRequest) (backend.ChatResponse, error) {
		return backend.ChatResponse{}, errors.New("refused")
	}
	h.api.healthFn = func(context.Context) (backend.HealthResponse, error) {
		return backend.HealthResponse{}, errors.New("refused")
	}

	var out bytes.Buffer
	require.NoError(t, NewConsole(&out).Run(context.Background(), h.ctrl, strings.NewReader("Hello\n")))

	text := out.String()
	assert.Contains(t, text, "[warning] Chatbot service is offline.")
	assert.Contains(t, text, "[error] Failed to get a response")
	assert.Contains(t, text, "Bot: Sorry, try again.")
}

func TestConsoleDropsStaleSnapshots(t *testing.T) {
	var out bytes.Buffer
	console := NewConsole(&out)

	st := session.NewState(session.ThemeLight, testTime)
	st.Append(session.NewMessage(session.SenderBot, "old", testTime))
	stale := st.Snapshot()
	st.Append(session.NewMessage(session.SenderBot, "new", testTime))
	fresh := st.Snapshot()

	console.Render(fresh)
	console.Render(stale)

	assert.Equal(t, 1, strings.Count(out.String(), "Bot: old"))
	assert.Equal(t, 1, strings.Count(out.String(), "Bot: new"))
}

func TestConsoleStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	errc := make(chan error, 1)
	go func() {
		errc <- NewConsole(&out).Run(ctx, h.ctrl, pr)
	}()

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop after cancellation")
	}
	assert.Contains(t, out.String(), "Goodbye!")
}
