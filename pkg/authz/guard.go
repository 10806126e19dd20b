// Package authz implements the authorization gate for broker operations.
// Each operation declares its required permission as data (actions.go); the
// Guard is the single component that evaluates a caller's group set against
// the resource policy ledger before any state mutation is attempted.
package authz

import (
	"log/slog"

	"github.com/lakefabric/sharegate/pkg/share"
)

// PolicyChecker answers whether any group in a set holds a permission on a
// resource. The SQLite store implements this.
type PolicyChecker interface {
	CheckResourcePermission(groups []string, resourceURI, permission string) (bool, error)
}

// Guard evaluates declared action permissions against the policy ledger.
// All authorization decisions in the broker flow through this component.
type Guard struct {
	policies PolicyChecker
	logger   *slog.Logger
}

// GuardOption configures the Guard.
type GuardOption func(*Guard)

// WithLogger sets a custom logger for decision logging.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = l
	}
}

// NewGuard creates a guard backed by the given policy checker.
func NewGuard(policies PolicyChecker, opts ...GuardOption) *Guard {
	g := &Guard{
		policies: policies,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require checks that the actor may perform the action on the resource.
// Returns an UnauthorizedOperation domain error on deny and on unknown
// actions (fail-closed). Every decision is logged with structured fields.
func (g *Guard) Require(actor share.Actor, resourceURI, action string) error {
	permission, ok := RequiredPermission(action)
	if !ok {
		g.logger.Error("unknown action rejected",
			"action", action,
			"username", actor.Username,
		)
		return share.ErrUnauthorizedOperation(action, "unknown action")
	}

	allowed, err := g.policies.CheckResourcePermission(actor.Groups, resourceURI, permission)
	if err != nil {
		g.logger.Error("policy check failed",
			"action", action,
			"resource", resourceURI,
			"error", err,
		)
		return err
	}

	g.logger.Info("authorization decision",
		"username", actor.Username,
		"action", action,
		"permission", permission,
		"resource", resourceURI,
		"decision", allowed,
	)

	if !allowed {
		return share.ErrUnauthorizedOperation(action,
			"none of the caller's groups hold "+permission+" on "+resourceURI)
	}
	return nil
}
