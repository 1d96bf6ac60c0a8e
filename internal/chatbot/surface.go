package chatbot

import (
	"time"

	"ChatWidget/internal/session"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a short transient message. Surfaces dismiss it after TTL.
type Notification struct {
	Level Level
	Text  string
	TTL   time.Duration
}

// Surface displays session state. Implementations must be safe to call from
// any goroutine. Renders may arrive out of order; a snapshot with a lower
// Version than one already shown must be dropped.
type Surface interface {
	Render(snap session.Snapshot)
	Notify(n Notification)
}

type nopSurface struct{}

func (nopSurface) Render(session.Snapshot) {}
func (nopSurface) Notify(Notification)     {}
