package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Token is a persisted backend session.
type Token struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// TokenStore persists the backend session between runs.
type TokenStore interface {
	Save(t Token) error
	// Load returns nil when nothing is stored.
	Load() (*Token, error)
	Clear() error
}

// FileTokenStore keeps the token in a single owner-only file.
type FileTokenStore struct {
	Path string
}

// Save implements TokenStore.
func (s FileTokenStore) Save(t Token) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Load implements TokenStore.
func (s FileTokenStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", s.Path, err)
	}
	if t.Token == "" {
		return nil, nil
	}
	return &t, nil
}

// Clear implements TokenStore.
func (s FileTokenStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the token in memory only.
type MemoryTokenStore struct {
	token *Token
}

func (s *MemoryTokenStore) Save(t Token) error {
	s.token = &t
	return nil
}

func (s *MemoryTokenStore) Load() (*Token, error) {
	return s.token, nil
}

func (s *MemoryTokenStore) Clear() error {
	s.token = nil
	return nil
}
