package grants

import (
	"context"
	"sync"
)

// MemoryClient is an in-memory grant substrate for tests and single-binary
// operation. Fault hooks let tests inject synchronization failures.
type MemoryClient struct {
	mu     sync.Mutex
	grants map[string]bool

	// GrantErr and RevokeErr, when set, are consulted before applying the
	// operation; a non-nil return is surfaced as the synchronization error.
	GrantErr  func(Grant) error
	RevokeErr func(Grant) error
}

// NewMemoryClient creates an empty in-memory substrate.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{grants: make(map[string]bool)}
}

// Grant records the grant. Re-granting an existing grant is a no-op.
func (m *MemoryClient) Grant(ctx context.Context, g Grant) error {
	if m.GrantErr != nil {
		if err := m.GrantErr(g); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[g.Key()] = true
	return nil
}

// Revoke removes the grant. Revoking a missing grant is a no-op.
func (m *MemoryClient) Revoke(ctx context.Context, g Grant) error {
	if m.RevokeErr != nil {
		if err := m.RevokeErr(g); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, g.Key())
	return nil
}

// Exists reports whether the grant is present.
func (m *MemoryClient) Exists(ctx context.Context, g Grant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[g.Key()], nil
}
