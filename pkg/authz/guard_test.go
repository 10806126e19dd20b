package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefabric/sharegate/pkg/share"
)

// fakeChecker answers permission checks from a fixed table.
type fakeChecker struct {
	allowed map[string]bool // group|resource|permission
	err     error
}

func (f *fakeChecker) CheckResourcePermission(groups []string, resourceURI, permission string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, g := range groups {
		if f.allowed[g+"|"+resourceURI+"|"+permission] {
			return true, nil
		}
	}
	return false, nil
}

func TestGuardRequireAllowed(t *testing.T) {
	guard := NewGuard(&fakeChecker{allowed: map[string]bool{
		"team-a|shr_1|" + PermApproveShare: true,
	}})

	actor := share.Actor{Username: "alice", Groups: []string{"team-a"}}
	assert.NoError(t, guard.Require(actor, "shr_1", ActionShareApprove))
}

func TestGuardRequireDenied(t *testing.T) {
	guard := NewGuard(&fakeChecker{allowed: map[string]bool{}})

	actor := share.Actor{Username: "mallory", Groups: []string{"team-x"}}
	err := guard.Require(actor, "shr_1", ActionShareApprove)
	require.Error(t, err)
	assert.True(t, share.IsUnauthorized(err), "denial must be an UnauthorizedOperation domain error")
}

// TestGuardUnknownActionFailsClosed verifies an unregistered action is denied
// even for a caller that holds every permission.
func TestGuardUnknownActionFailsClosed(t *testing.T) {
	checker := &fakeChecker{allowed: map[string]bool{}}
	for _, action := range AllActions() {
		perm, _ := RequiredPermission(action)
		checker.allowed["team-a|shr_1|"+perm] = true
	}
	guard := NewGuard(checker)

	actor := share.Actor{Username: "alice", Groups: []string{"team-a"}}
	err := guard.Require(actor, "shr_1", "share:frobnicate")
	require.Error(t, err)
	assert.True(t, share.IsUnauthorized(err))
}

func TestGuardPropagatesCheckerError(t *testing.T) {
	boom := errors.New("database gone")
	guard := NewGuard(&fakeChecker{err: boom})

	actor := share.Actor{Username: "alice", Groups: []string{"team-a"}}
	err := guard.Require(actor, "shr_1", ActionShareGet)
	assert.ErrorIs(t, err, boom)
	assert.False(t, share.IsUnauthorized(err), "infrastructure failures are not authorization denials")
}

// TestEveryActionHasPermission guards the action registry against entries
// added without a mapped permission.
func TestEveryActionHasPermission(t *testing.T) {
	for _, action := range AllActions() {
		perm, ok := RequiredPermission(action)
		assert.True(t, ok, "action %s must be registered", action)
		assert.NotEmpty(t, perm, "action %s must map to a permission", action)
	}
}
