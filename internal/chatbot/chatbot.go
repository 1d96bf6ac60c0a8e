package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/session"
)

// PreferenceTheme is the preference key holding the last applied theme
const PreferenceTheme = "theme"

// Preferences is a durable key-value preference store
type Preferences interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Archive stores finished transcripts
type Archive interface {
	SaveSession(ctx context.Context, rec session.Record) error
}

// Options configures a Controller
type Options struct {
	API         backend.API
	Preferences Preferences
	Archive     Archive // optional
	Surface     Surface // optional, see SetSurface
	BackendName string

	MaxLength        int
	Temperature      float64
	MaxMessageLength int // 0 means unlimited

	WelcomeMessage  string
	FallbackMessage string

	TypingDelay     time.Duration // per reply character
	MaxTypingDelay  time.Duration
	NotificationTTL time.Duration

	DefaultTheme session.Theme

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Controller owns one chat session's state and mediates between user
// intent and the backend. It allows at most one chat request in flight.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	submits metric.Int64Counter
	fails   metric.Int64Counter

	mu      sync.Mutex
	state   *session.State
	surface Surface

	// prefMu orders theme changes with their persistence
	prefMu sync.Mutex
}

// New creates a controller, restoring the persisted theme and seeding the
// welcome message.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, errors.New("backend API cannot be nil")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.Tracer == nil || opts.Meter == nil {
		return nil, errors.New("tracer and meter cannot be nil")
	}
	if opts.Preferences == nil {
		opts.Preferences = NewMemoryPreferences()
	}
	if opts.Surface == nil {
		opts.Surface = nopSurface{}
	}
	if opts.WelcomeMessage == "" {
		opts.WelcomeMessage = "Hello! How can I help you today?"
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = "Sorry, something went wrong. Please try again."
	}
	if opts.NotificationTTL <= 0 {
		opts.NotificationTTL = 3 * time.Second
	}
	if opts.DefaultTheme == "" {
		opts.DefaultTheme = session.ThemeLight
	}

	c := &Controller{
		opts:    opts,
		logger:  opts.Logger.With("component", "chatbot"),
		tracer:  opts.Tracer,
		now:     opts.Now,
		sleep:   opts.Sleep,
		surface: opts.Surface,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}

	var err error
	c.submits, err = opts.Meter.Int64Counter("chat.submissions",
		metric.WithDescription("Accepted chat submissions"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	c.fails, err = opts.Meter.Int64Counter("chat.failures",
		metric.WithDescription("Chat submissions answered with the fallback message"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	theme := c.restoreTheme(ctx)
	c.state = session.NewState(theme, c.now())
	c.state.Reset(c.welcome())

	c.logger.Info("created new session", "session_id", c.state.ID, "backend", opts.BackendName, "theme", theme)
	return c, nil
}

func (c *Controller) restoreTheme(ctx context.Context) session.Theme {
	value, ok, err := c.opts.Preferences.Get(ctx, PreferenceTheme)
	if err != nil {
		c.logger.Warn("failed to load theme preference", "error", err)
		return c.opts.DefaultTheme
	}
	if !ok {
		return c.opts.DefaultTheme
	}
	theme, err := session.ParseTheme(value)
	if err != nil {
		c.logger.Warn("ignoring stored theme", "value", value, "error", err)
		return c.opts.DefaultTheme
	}
	return theme
}

func (c *Controller) welcome() session.Message {
	return session.NewMessage(session.SenderBot, c.opts.WelcomeMessage, c.now())
}

// SetSurface replaces the display surface and renders the current state to it
func (c *Controller) SetSurface(s Surface) {
	if s == nil {
		s = nopSurface{}
	}
	c.mu.Lock()
	c.surface = s
	snap := c.state.Snapshot()
	c.mu.Unlock()
	s.Render(snap)
}

// Snapshot returns a copy of the current session state
func (c *Controller) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// IsSending reports whether a chat request is in flight
func (c *Controller) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsSending
}

var (
	// ErrEmptyMessage is returned by Accept for blank input
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned by Accept while a request is in flight
	ErrBusy = errors.New("a message is already being sent")
)

// MessageTooLongError is returned by Accept for text over the length limit
type MessageTooLongError struct {
	Length int
	Max    int
}

func (e *MessageTooLongError) Error() string {
	return fmt.Sprintf("message too long: %d/%d characters", e.Length, e.Max)
}

// Notice is the user-facing warning for the error
func (e *MessageTooLongError) Notice() string {
	return fmt.Sprintf("Message is too long (%d/%d characters).", e.Length, e.Max)
}

// Exchange is an accepted message waiting for its reply
type Exchange struct {
	text      string
	sessionID string
}

// Text returns the submitted message
func (e *Exchange) Text() string {
	return e.text
}

// Accept validates text and, when accepted, appends it to the transcript and
// marks the session as sending. It neither renders nor notifies, so it is safe
// to call from a surface's own event loop; the returned snapshot shows the
// accepted state. Every accepted Exchange must be passed to Complete.
func (c *Controller) Accept(text string) (*Exchange, session.Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, session.Snapshot{}, ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); c.opts.MaxMessageLength > 0 && n > c.opts.MaxMessageLength {
		return nil, session.Snapshot{}, &MessageTooLongError{Length: n, Max: c.opts.MaxMessageLength}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsSending {
		return nil, session.Snapshot{}, ErrBusy
	}
	c.state.Append(session.NewMessage(session.SenderUser, text, c.now()))
	c.state.IsSending = true
	return &Exchange{text: text, sessionID: c.state.ID}, c.state.Snapshot(), nil
}

// Complete sends an accepted message to the backend and appends the reply,
// or the fallback message on failure. A reply arriving after the transcript
// was cleared is dropped. It blocks until the exchange is finished.
func (c *Controller) Complete(ctx context.Context, ex *Exchange) {
	c.submits.Add(ctx, 1)

	defer func() {
		c.mu.Lock()
		c.state.IsSending = false
		snap := c.state.Snapshot()
		c.mu.Unlock()
		c.render(snap)
	}()

	reply, err := c.exchange(ctx, ex.text)
	if err != nil {
		c.fails.Add(ctx, 1)
		c.logFailure(err)
		if c.appendReply(ex, c.opts.FallbackMessage) {
			c.notify(LevelError, "Failed to get a response from the chatbot.")
		}
		return
	}

	if err := c.sleep(ctx, c.typingDelay(reply)); err != nil {
		c.logger.Debug("typing delay interrupted", "error", err)
	}
	c.appendReply(ex, reply)
}

// SubmitMessage sends text to the backend and appends the exchange to the
// transcript. Blank text, or any text while a request is in flight, is
// ignored and false is returned. It blocks until the reply (or fallback)
// has been appended.
func (c *Controller) SubmitMessage(ctx context.Context, text string) bool {
	ex, snap, err := c.Accept(text)
	if err != nil {
		var tooLong *MessageTooLongError
		if errors.As(err, &tooLong) {
			c.notify(LevelWarning, tooLong.Notice())
		}
		return false
	}

	c.render(snap)
	c.Complete(ctx, ex)
	return true
}

// exchange performs the backend call, converting panics into errors
func (c *Controller) exchange(ctx context.Context, text string) (reply string, err error) {
	ctx, span := c.tracer.Start(ctx, "chat.submit")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during chat request: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	resp, err := c.opts.API.Chat(ctx, backend.ChatRequest{
		Message:     text,
		MaxLength:   c.opts.MaxLength,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("chat.reply_length", len(resp.Reply)))
	return resp.Reply, nil
}

func (c *Controller) logFailure(err error) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("chat request rejected", "status", apiErr.StatusCode, "detail", apiErr.Detail)
		return
	}
	c.logger.Error("failed to send message", "error", err)
}

func (c *Controller) typingDelay(reply string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(reply)) * c.opts.TypingDelay
	if c.opts.MaxTypingDelay > 0 && d > c.opts.MaxTypingDelay {
		d = c.opts.MaxTypingDelay
	}
	return d
}

// appendReply adds a bot message for ex unless the session it belongs to
// has since been cleared. It reports whether the message was added.
func (c *Controller) appendReply(ex *Exchange, text string) bool {
	c.mu.Lock()
	if c.state.ID != ex.sessionID {
		c.mu.Unlock()
		c.logger.Info("dropping reply for cleared session", "session_id", ex.sessionID)
		return false
	}
	c.state.Append(session.NewMessage(session.SenderBot, text, c.now()))
	snap := c.state.Snapshot()
	c.mu.Unlock()
	c.render(snap)
	return true
}

// CheckBackendHealth queries the health endpoint and updates the backend
// status. Anything but a healthy answer marks the backend offline and
// raises a notification.
func (c *Controller) CheckBackendHealth(ctx context.Context) session.BackendStatus {
	status, _ := c.checkHealth(ctx)
	if status == session.StatusOffline {
		c.notify(LevelWarning, "Chatbot service is offline. Messages may fail until it recovers.")
	}
	return status
}

// checkHealth returns the new status and the status it replaced
func (c *Controller) checkHealth(ctx context.Context) (session.BackendStatus, session.BackendStatus) {
	status := session.StatusOffline
	resp, err := c.opts.API.Health(ctx)
	switch {
	case err != nil:
		c.logger.Warn("health check failed", "error", err)
	case resp.Status != backend.StatusHealthy:
		c.logger.Warn("backend reported unhealthy", "status", resp.Status)
	default:
		status = session.StatusOnline
	}

	c.mu.Lock()
	prev := c.state.Status
	c.state.Status = status
	snap := c.state.Snapshot()
	c.mu.Unlock()

	if prev != status {
		c.logger.Info("backend status changed", "from", prev.String(), "to", status.String())
	}
	c.render(snap)
	return status, prev
}

// WatchHealth re-checks the backend every interval until ctx is done.
// Only transitions are announced. A non-positive interval returns at once.
func (c *Controller) WatchHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, prev := c.checkHealth(ctx)
			if status == prev || ctx.Err() != nil {
				continue
			}
			if status == session.StatusOffline {
				c.notify(LevelWarning, "Lost connection to the chatbot service.")
			} else if prev == session.StatusOffline {
				c.notify(LevelInfo, "Chatbot service is back online.")
			}
		}
	}
}

// ClearTranscript archives the current transcript and resets it to the
// welcome message. Repeated calls leave exactly one message. A request in
// flight keeps the session busy until it finishes, but its reply is dropped.
func (c *Controller) ClearTranscript(ctx context.Context) {
	c.mu.Lock()
	old := c.state.Snapshot()
	c.state.Reset(c.welcome())
	c.state.Rotate(c.now())
	snap := c.state.Snapshot()
	c.mu.Unlock()

	c.archive(ctx, old)
	c.render(snap)
	c.logger.Info("transcript cleared", "previous_session_id", old.SessionID, "session_id", snap.SessionID)
}

// ToggleTheme switches between light and dark and persists the choice.
// Concurrent toggles are serialized so the stored preference always
// matches the applied theme.
func (c *Controller) ToggleTheme(ctx context.Context) session.Theme {
	c.prefMu.Lock()
	defer c.prefMu.Unlock()

	c.mu.Lock()
	c.state.Theme = c.state.Theme.Toggle()
	theme := c.state.Theme
	snap := c.state.Snapshot()
	c.mu.Unlock()

	c.render(snap)

	if err := c.opts.Preferences.Set(ctx, PreferenceTheme, string(theme)); err != nil {
		c.logger.Error("failed to persist theme", "theme", theme, "error", err)
		c.notify(LevelWarning, "Theme changed but could not be saved.")
	}
	return theme
}

// Close archives the transcript at session end
func (c *Controller) Close(ctx context.Context) {
	c.archive(ctx, c.Snapshot())
	c.logger.Info("session closed")
}

func (c *Controller) archive(ctx context.Context, snap session.Snapshot) {
	if c.opts.Archive == nil || !hasUserMessages(snap) {
		return
	}
	rec := session.Record{
		ID:        snap.SessionID,
		StartTime: snap.StartedAt,
		Backend:   c.opts.BackendName,
		Messages:  snap.Transcript,
	}
	if err := c.opts.Archive.SaveSession(ctx, rec); err != nil {
		c.logger.Error("failed to archive session", "session_id", rec.ID, "error", err)
	}
}

func hasUserMessages(snap session.Snapshot) bool {
	for _, m := range snap.Transcript {
		if m.Sender == session.SenderUser {
			return true
		}
	}
	return false
}

func (c *Controller) render(snap session.Snapshot) {
	c.mu.Lock()
	s := c.surface
	c.mu.Unlock()
	s.Render(snap)
}

func (c *Controller) notify(level Level, text string) {
	c.mu.Lock()
	s := c.surface
	c.mu.Unlock()
	s.Notify(Notification{Level: level, Text: text, TTL: c.opts.NotificationTTL})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
