package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"adventure/internal/service/session"
)

// Store serializes the whole transcript to one JSON file after every turn.
// The snapshot is a full rewrite, not an append-only log, so the file always
// reflects the complete conversation.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

func (s *Store) Path() string { return s.path }

// record is the persisted schema: roles are normalized to the chat backend
// vocabulary (assistant turns are stored as "model").
type record struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// Persist rewrites the snapshot with the given turns. Output is deterministic
// for identical input, so persisting the same transcript twice yields
// byte-identical files.
func (s *Store) Persist(turns []session.Turn) error {
	records := make([]record, 0, len(turns))
	for _, turn := range turns {
		role := string(turn.Role)
		if turn.Role == session.RoleAssistant {
			role = "model"
		}
		records = append(records, record{Role: role, Parts: []string{turn.Content}})
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("history: encode transcript: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("history: write snapshot: %w", err)
	}
	return nil
}
