// Package principal resolves the receiving principal of a share request: the
// group or consumption role that will hold the data-plane grant within a
// target environment.
package principal

import (
	"fmt"
	"sync"

	"github.com/lakefabric/sharegate/pkg/share"
)

// Principal is a resolved grant recipient.
type Principal struct {
	ID             string
	Type           share.PrincipalType
	EnvironmentURI string
	DisplayName    string
	ExecutionRole  string // substrate-side role the grant is applied to
}

// Resolver validates that a principal exists in an environment and returns
// its substrate identity.
type Resolver interface {
	Resolve(environmentURI, principalID string, ptype share.PrincipalType) (*Principal, error)
}

// StaticResolver is a Resolver backed by an in-memory registry. Environments
// and their principals are registered up front; lookups never leave the
// process.
type StaticResolver struct {
	mu         sync.RWMutex
	principals map[string]*Principal // keyed by environmentURI + principalID
}

// NewStaticResolver creates an empty registry.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{principals: make(map[string]*Principal)}
}

// Register adds a principal to the registry, overwriting any previous entry
// for the same (environment, principal) pair.
func (r *StaticResolver) Register(p *Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.principals[key(p.EnvironmentURI, p.ID)] = p
}

// Resolve returns the registered principal, or an object-not-found domain
// error when the environment has no such principal of that type.
func (r *StaticResolver) Resolve(environmentURI, principalID string, ptype share.PrincipalType) (*Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[key(environmentURI, principalID)]
	if !ok || p.Type != ptype {
		return nil, share.ErrObjectNotFound("Principal", principalID)
	}
	return p, nil
}

func key(environmentURI, principalID string) string {
	return fmt.Sprintf("%s/%s", environmentURI, principalID)
}

// PassthroughResolver accepts any non-empty principal and synthesizes its
// identity from the request. It backs single-binary operation where no
// external directory is wired; a real deployment resolves against one.
type PassthroughResolver struct{}

// Resolve synthesizes a principal for any non-empty ID.
func (PassthroughResolver) Resolve(environmentURI, principalID string, ptype share.PrincipalType) (*Principal, error) {
	if principalID == "" {
		return nil, share.ErrRequiredParameter("principalId")
	}
	return &Principal{
		ID:             principalID,
		Type:           ptype,
		EnvironmentURI: environmentURI,
		DisplayName:    principalID,
		ExecutionRole:  principalID,
	}, nil
}
