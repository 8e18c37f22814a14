// Package history records the finalized text turns of each session.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-sonic/core/protocol"
)

type Turn struct {
	Role        protocol.Role `json:"role"`
	Text        string        `json:"text"`
	Interrupted bool          `json:"interrupted,omitempty"`
	CompletedAt time.Time     `json:"completedAt"`
}

type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	// Turns returns the session's turns oldest first. The slice is a copy.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	Delete(ctx context.Context, sessionID string) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	maxTurns int
}

type MemoryOption func(*MemoryStore)

// WithMaxTurns keeps only the most recent turns per session.
func WithMaxTurns(maxTurns int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxTurns = maxTurns
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{sessions: map[string][]Turn{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], turn)
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.sessions[sessionID] = turns
	return nil
}

func (s *MemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var turns []Turn
	if err := copier.CopyWithOption(&turns, s.sessions[sessionID], copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
