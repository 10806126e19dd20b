// Package grants defines the contract with the external permission
// substrate: the data-catalog ACL system that holds the actual data-plane
// grants. The broker records decisions; a Client applies them out-of-band
// and must be idempotent, since synchronization tasks are retried
// at-least-once.
package grants

import (
	"context"
	"errors"
	"fmt"
)

// ErrResourceNotFound reports that the substrate has no record of the
// addressed resource. It is recorded on the affected item as a failure
// state, never thrown synchronously to the request path.
var ErrResourceNotFound = errors.New("external resource not found")

// Grant addresses one data-plane permission in the external substrate.
type Grant struct {
	Principal   string // execution role or group receiving access
	ResourceURI string // catalog object being granted
	AccountID   string
	Region      string
}

// Key returns the substrate-side identity of the grant.
func (g Grant) Key() string {
	return fmt.Sprintf("%s|%s", g.Principal, g.ResourceURI)
}

// Client applies and removes grants in the external substrate.
//
// Grant and Revoke are idempotent: applying a grant that already exists or
// revoking one that doesn't is a no-op, not an error. The substrate is
// last-writer-wins; a revoke racing a still-pending grant is resolved by
// whichever lands later and audited via Exists.
type Client interface {
	Grant(ctx context.Context, g Grant) error
	Revoke(ctx context.Context, g Grant) error
	Exists(ctx context.Context, g Grant) (bool, error)
}
