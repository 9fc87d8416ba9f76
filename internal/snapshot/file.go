package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"quizbattle/internal/models"
)

// FileStore keeps the snapshot in a local JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (*models.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: reading %s: %w", s.path, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: parsing %s: %w", s.path, err)
	}
	return &snap, nil
}

func (s *FileStore) Save(_ context.Context, snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encoding: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("snapshot: replacing %s: %w", s.path, err)
	}
	return nil
}
