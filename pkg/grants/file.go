package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileClient is a grant substrate persisted as a JSON file. It backs
// single-binary operation where no real catalog ACL system is wired: grants
// survive process restarts, and operators can inspect or edit the file to
// simulate out-of-band drift.
type FileClient struct {
	mu   sync.Mutex
	path string
}

// NewFileClient creates a client persisting grants at path. The parent
// directory is created on first write.
func NewFileClient(path string) *FileClient {
	return &FileClient{path: path}
}

// Grant records the grant. Re-granting an existing grant is a no-op.
func (f *FileClient) Grant(ctx context.Context, g Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return err
	}
	state[g.Key()] = true
	return f.save(state)
}

// Revoke removes the grant. Revoking a missing grant is a no-op.
func (f *FileClient) Revoke(ctx context.Context, g Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return err
	}
	delete(state, g.Key())
	return f.save(state)
}

// Exists reports whether the grant is present.
func (f *FileClient) Exists(ctx context.Context, g Grant) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return false, err
	}
	return state[g.Key()], nil
}

func (f *FileClient) load() (map[string]bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read grant state: %w", err)
	}
	state := map[string]bool{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse grant state: %w", err)
	}
	return state, nil
}

func (f *FileClient) save(state map[string]bool) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create grant state directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode grant state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write grant state: %w", err)
	}
	return os.Rename(tmp, f.path)
}
