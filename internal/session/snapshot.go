package session

import (
	"encoding/json"
	"errors"
	"os"
)

// Save writes a JSON snapshot of all sessions to path.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	b, err := json.MarshalIndent(s.sessions, "", " ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Load replaces the store's contents with the snapshot at path.
// A missing file is not an error; the store is left empty.
func (s *Store) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var sessions map[string][]Exchange
	if err := json.Unmarshal(b, &sessions); err != nil {
		return err
	}
	if sessions == nil {
		sessions = make(map[string][]Exchange)
	}
	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}
