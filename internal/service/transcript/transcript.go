// Package transcript keeps the assistant server's per-client conversation
// memory.
package transcript

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrClientRequired = errors.New("client id is required")

// Role identifies who authored an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one remembered turn.
type Entry struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultLimit is the number of entries kept per client.
const DefaultLimit = 40

// Service is an in-memory, bounded history per client id.
type Service struct {
	mu      sync.RWMutex
	limit   int
	entries map[string][]Entry
}

// NewService creates a store keeping at most limit entries per client.
func NewService(limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{
		limit:   limit,
		entries: make(map[string][]Entry),
	}
}

// Append records one turn, dropping the oldest entries past the limit.
func (s *Service) Append(_ context.Context, clientID string, role Role, content string) (Entry, error) {
	if strings.TrimSpace(clientID) == "" {
		return Entry{}, ErrClientRequired
	}

	entry := Entry{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.entries[clientID], entry)
	if over := len(history) - s.limit; over > 0 {
		history = append(history[:0:0], history[over:]...)
	}
	s.entries[clientID] = history
	return entry, nil
}

// History returns a copy of the client's remembered turns, oldest first.
func (s *Service) History(_ context.Context, clientID string) ([]Entry, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrClientRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.entries[clientID]
	copied := make([]Entry, len(history))
	copy(copied, history)
	return copied, nil
}

// Reset forgets everything remembered for clientID.
func (s *Service) Reset(_ context.Context, clientID string) {
	s.mu.Lock()
	delete(s.entries, clientID)
	s.mu.Unlock()
}
