package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"ChatWidget/internal/session"
)

// Console is a line-mode surface: it prints new bot messages and
// notifications as plain text.
type Console struct {
	out io.Writer

	mu      sync.Mutex
	version uint64
	seen    map[string]bool
	sending bool
}

// NewConsole creates a console surface writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, seen: make(map[string]bool)}
}

// Render prints bot messages not printed before. User messages are not
// echoed: the terminal already shows what was typed.
func (c *Console) Render(snap session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.Version <= c.version {
		return
	}
	c.version = snap.Version

	if snap.IsSending && !c.sending {
		fmt.Fprintln(c.out, "Bot is typing...")
	}
	c.sending = snap.IsSending

	for _, msg := range snap.Transcript {
		if c.seen[msg.ID] {
			continue
		}
		c.seen[msg.ID] = true
		if msg.Sender == session.SenderBot {
			fmt.Fprintf(c.out, "Bot: %s\n\n", msg.Text)
		}
	}
}

// Notify prints a notification line
func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s\n", n.Level, n.Text)
}

// Run reads lines from in until EOF, /quit or ctx cancellation
func (c *Console) Run(ctx context.Context, ctrl *Controller, in io.Reader) error {
	snap := ctrl.Snapshot()
	c.println("=== ChatWidget ===")
	c.printf("Session: %s\n", snap.SessionID)
	c.printf("Theme: %s\n", snap.Theme)
	c.println("Type /help for commands, /quit to exit")
	c.println()

	ctrl.SetSurface(c)
	defer ctrl.SetSurface(nil)

	ctrl.CheckBackendHealth(ctx)

	done := make(chan struct{})
	defer close(done)
	lines, errc := readLines(in, done)

	for {
		c.printf("You: ")

		var input string
		select {
		case <-ctx.Done():
			c.println()
			c.println("Goodbye!")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				c.println("Goodbye!")
				return nil
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if c.handleCommand(ctx, ctrl, input) {
				c.println("Goodbye!")
				return nil
			}
			continue
		}

		ctrl.SubmitMessage(ctx, input)
	}
}

// readLines scans in on its own goroutine so a blocked read cannot hold up
// cancellation. It stops once done is closed.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// handleCommand handles special commands and reports whether to quit
func (c *Console) handleCommand(ctx context.Context, ctrl *Controller, cmd string) bool {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/clear":
		ctrl.ClearTranscript(ctx)
		c.println("Transcript cleared.")

	case "/theme":
		theme := ctrl.ToggleTheme(ctx)
		c.printf("Theme: %s\n", theme)

	case "/health":
		status := ctrl.CheckBackendHealth(ctx)
		c.printf("Backend: %s\n", status)

	case "/help":
		c.println("Available commands:")
		c.println("  /quit, /exit   - Exit the chat")
		c.println("  /clear         - Clear the transcript")
		c.println("  /theme         - Toggle light/dark theme")
		c.println("  /health        - Check the chatbot service")
		c.println("  /help          - Show this help message")

	default:
		c.printf("Unknown command: %s (try /help)\n", parts[0])
	}
	return false
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}
