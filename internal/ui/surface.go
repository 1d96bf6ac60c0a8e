package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"ChatWidget/internal/chatbot"
	"ChatWidget/internal/session"
)

// Surface forwards controller updates into a running program
type Surface struct {
	send func(tea.Msg)
}

// NewSurface creates a surface delivering to send, usually (*tea.Program).Send
func NewSurface(send func(tea.Msg)) *Surface {
	return &Surface{send: send}
}

// Render implements chatbot.Surface
func (s *Surface) Render(snap session.Snapshot) {
	s.send(renderMsg{snap: snap})
}

// Notify implements chatbot.Surface
func (s *Surface) Notify(n chatbot.Notification) {
	s.send(notifyMsg{n: n})
}

type surfaceSetter interface {
	SetSurface(s chatbot.Surface)
}

// attach installs a surface delivering to send. Installing renders, and send
// blocks until the event loop starts, so it happens in the background; the
// returned detach waits for it before removing the surface.
func attach(ctrl surfaceSetter, send func(tea.Msg)) (detach func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.SetSurface(NewSurface(send))
	}()
	return func() {
		<-done
		ctrl.SetSurface(nil)
	}
}

// Run shows the session full-screen until the user quits or ctx is done
func Run(ctx context.Context, ctrl *chatbot.Controller, maxLength int) error {
	p := tea.NewProgram(NewModel(ctx, ctrl, maxLength), tea.WithAltScreen(), tea.WithContext(ctx))

	// Send returns once the program has stopped, so detach cannot hang
	detach := attach(ctrl, p.Send)
	defer detach()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run interface: %w", err)
	}
	return nil
}
