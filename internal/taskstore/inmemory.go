package taskstore

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps tasks in process for local use.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]VoiceTask
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]VoiceTask)}
}

func (s *InMemoryStore) Load(_ context.Context, owner string) (VoiceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[owner]
	if !ok {
		return VoiceTask{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, owner string, task VoiceTask) error {
	task = task.Clone()
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.tasks[owner] = task
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	delete(s.tasks, owner)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
