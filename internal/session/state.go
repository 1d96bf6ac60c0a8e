package session

import (
	"time"

	"github.com/google/uuid"
)

// State is the mutable per-session UI state. It is owned by a single
// controller and is not safe for concurrent use on its own.
type State struct {
	ID         string
	StartedAt  time.Time
	IsSending  bool
	Theme      Theme
	Status     BackendStatus
	transcript []Message
	version    uint64
}

// NewState creates the state for a fresh session
func NewState(theme Theme, now time.Time) *State {
	return &State{
		ID:        uuid.NewString(),
		StartedAt: now,
		Theme:     theme,
		Status:    StatusUnknown,
	}
}

// Append adds a message to the end of the transcript
func (s *State) Append(msg Message) {
	s.transcript = append(s.transcript, msg)
}

// Reset drops the whole transcript and seeds it with the given messages
func (s *State) Reset(seed ...Message) {
	s.transcript = append([]Message(nil), seed...)
}

// Rotate starts a new session identity, keeping theme and status
func (s *State) Rotate(now time.Time) {
	s.ID = uuid.NewString()
	s.StartedAt = now
}

// Len returns the number of transcript entries
func (s *State) Len() int {
	return len(s.transcript)
}

// Snapshot returns an immutable copy for rendering. Each snapshot carries a
// higher Version than the previous one.
func (s *State) Snapshot() Snapshot {
	s.version++
	transcript := make([]Message, len(s.transcript))
	copy(transcript, s.transcript)
	return Snapshot{
		Version:    s.version,
		SessionID:  s.ID,
		StartedAt:  s.StartedAt,
		IsSending:  s.IsSending,
		Theme:      s.Theme,
		Status:     s.Status,
		Transcript: transcript,
	}
}

// Snapshot is a point-in-time copy of State handed to display surfaces
type Snapshot struct {
	Version    uint64
	SessionID  string
	StartedAt  time.Time
	IsSending  bool
	Theme      Theme
	Status     BackendStatus
	Transcript []Message
}

// Last returns the most recent message, if any
func (s Snapshot) Last() (Message, bool) {
	if len(s.Transcript) == 0 {
		return Message{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}

// Record is an archived transcript
type Record struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Backend   string    `json:"backend"`
	Messages  []Message `json:"messages"`
}
