package task

import (
	"context"
	"encoding/json"
	"sync"
)

type memoryChord struct {
	results map[int]json.RawMessage
	done    bool
	failed  bool
}

// MemoryStore is a ResultStore for single-process deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	progress map[string]Progress
	chords   map[string]*memoryChord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress: make(map[string]Progress),
		chords:   make(map[string]*memoryChord),
	}
}

func (s *MemoryStore) Set(_ context.Context, id string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[id]
	return p, ok, nil
}

func (s *MemoryStore) chord(id string) *memoryChord {
	c, ok := s.chords[id]
	if !ok {
		c = &memoryChord{results: make(map[int]json.RawMessage)}
		s.chords[id] = c
	}
	return c
}

func (s *MemoryStore) JoinChord(_ context.Context, chordID string, index, size int, result json.RawMessage) ([]json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chord(chordID)
	c.results[index] = result
	if c.failed || c.done || len(c.results) < size {
		return nil, false, nil
	}
	c.done = true
	return ordered(c.results, size), true, nil
}

func (s *MemoryStore) FailChord(_ context.Context, chordID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chord(chordID)
	if c.failed {
		return false, nil
	}
	c.failed = true
	return true, nil
}

func ordered(results map[int]json.RawMessage, size int) []json.RawMessage {
	out := make([]json.RawMessage, size)
	for i := 0; i < size; i++ {
		out[i] = results[i]
	}
	return out
}
