package chatbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/session"
	"ChatWidget/internal/storage"
	"ChatWidget/internal/telemetry"
)

var testTime = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newFakeBackend(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.HealthResponse{Status: backend.StatusHealthy})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(backend.ErrorResponse{Detail: "message required"})
			return
		}
		json.NewEncoder(w).Encode(backend.ChatResponse{Reply: reply})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newStoreController(t *testing.T, url string, store *storage.Store, surface Surface) *Controller {
	t.Helper()
	p := telemetry.Noop()
	client, err := backend.NewClient(url, time.Second, telemetry.NopLogger(), p.Tracer, p.Meter)
	require.NoError(t, err)
	t.Cleanup(client.CloseIdleConnections)

	opts := Options{
		API:             client,
		Surface:         surface,
		BackendName:     url,
		MaxLength:       150,
		Temperature:     0.7,
		WelcomeMessage:  "Welcome!",
		FallbackMessage: "Sorry, try again.",
		Logger:          telemetry.NopLogger(),
		Tracer:          p.Tracer,
		Meter:           p.Meter,
		Sleep:           func(context.Context, time.Duration) error { return nil },
	}
	if store != nil {
		opts.Preferences = store
		opts.Archive = store
	}

	ctrl, err := New(context.Background(), opts)
	require.NoError(t, err)
	return ctrl
}

func TestSessionAgainstHTTPBackend(t *testing.T) {
	ctx := context.Background()
	server := newFakeBackend(t, "Hi there")

	path := filepath.Join(t.TempDir(), "chatwidget.db")
	store, err := storage.Open(path, telemetry.NopLogger())
	require.NoError(t, err)

	surface := &recordingSurface{}
	ctrl := newStoreController(t, server.URL, store, surface)

	assert.Equal(t, session.StatusOnline, ctrl.CheckBackendHealth(ctx))
	require.True(t, ctrl.SubmitMessage(ctx, "Hello"))

	snap := ctrl.Snapshot()
	assert.Equal(t, []string{"bot:Welcome!", "user:Hello", "bot:Hi there"}, texts(snap))
	assert.False(t, snap.IsSending)

	theme := ctrl.ToggleTheme(ctx)
	ctrl.Close(ctx)
	require.NoError(t, store.Close())

	// restart: theme comes back from disk, transcript does not
	store, err = storage.Open(path, telemetry.NopLogger())
	require.NoError(t, err)
	defer store.Close()

	restarted := newStoreController(t, server.URL, store, nil)
	assert.Equal(t, theme, restarted.Snapshot().Theme)
	assert.Len(t, restarted.Snapshot().Transcript, 1)

	archived, err := store.LoadSession(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Len(t, archived.Messages, 3)
}

func TestSessionBackendDown(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	surface := &recordingSurface{}
	ctrl := newStoreController(t, url, nil, surface)

	assert.Equal(t, session.StatusOffline, ctrl.CheckBackendHealth(ctx))
	require.True(t, ctrl.SubmitMessage(ctx, "Hello"))

	snap := ctrl.Snapshot()
	assert.Equal(t, []string{"bot:Welcome!", "user:Hello", "bot:Sorry, try again."}, texts(snap))
	assert.False(t, snap.IsSending)
	assert.Len(t, surface.notifications(), 2)
}
