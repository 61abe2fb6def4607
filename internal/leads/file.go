package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileStore persists leads in a local JSON file. Good enough for a single
// demo host; swap in the Postgres store when durability matters.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// leadsFile is the on-disk JSON structure.
type leadsFile struct {
	Version string `json:"version"`
	Leads   []Lead `json:"leads"`
}

// NewFileStore creates a store writing to path. The file is created on
// first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append reads the file, appends the lead, and writes it back.
func (s *FileStore) Append(_ context.Context, lead Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}
	existing = append(existing, lead)

	data, err := json.MarshalIndent(leadsFile{Version: "1.0", Leads: existing}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal leads: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write leads file: %w", err)
	}
	return nil
}

// All returns every captured lead.
func (s *FileStore) All(_ context.Context) ([]Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() ([]Lead, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read leads file: %w", err)
	}
	var lf leadsFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse leads file: %w", err)
	}
	return lf.Leads, nil
}
