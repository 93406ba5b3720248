// Package session tracks per-session conversation history for prompt context.
//
// Persistence model:
//   - Only completed exchanges are stored (query + answer text). Tool blocks
//     are transient and never persisted.
//   - History handed to the model is bounded to the most recent exchanges.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Exchange is one completed question/answer pair.
type Exchange struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Store keeps session histories in memory. Safe for concurrent use.
type Store struct {
	maxHistory int

	mu       sync.Mutex
	sessions map[string][]Exchange
}

// NewStore returns a store that formats at most maxHistory recent exchanges
// per session (<=0 falls back to 2).
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 2
	}
	return &Store{maxHistory: maxHistory, sessions: make(map[string][]Exchange)}
}

// Create registers a new empty session and returns its ID.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()
	return id
}

// Append records a completed exchange for the session, creating it if needed.
func (s *Store) Append(id, query, answer string) {
	s.mu.Lock()
	s.sessions[id] = append(s.sessions[id], Exchange{Query: query, Answer: answer})
	s.mu.Unlock()
}

// History returns the session's recent exchanges formatted for the system
// context, or "" for an unknown or empty session.
func (s *Store) History(id string) string {
	s.mu.Lock()
	exchanges := s.sessions[id]
	s.mu.Unlock()

	if len(exchanges) > s.maxHistory {
		exchanges = exchanges[len(exchanges)-s.maxHistory:]
	}
	if len(exchanges) == 0 {
		return ""
	}

	parts := make([]string, 0, len(exchanges))
	for _, e := range exchanges {
		parts = append(parts, fmt.Sprintf("User: %s\nAssistant: %s", e.Query, e.Answer))
	}
	return strings.Join(parts, "\n")
}

// Clear removes a session's history but keeps the session valid.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()
}
