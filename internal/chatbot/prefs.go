package chatbot

import (
	"context"
	"sync"
)

// MemoryPreferences keeps preferences for the life of the process only
type MemoryPreferences struct {
	values sync.Map
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{}
}

func (m *MemoryPreferences) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values.Load(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *MemoryPreferences) Set(_ context.Context, key, value string) error {
	m.values.Store(key, value)
	return nil
}
