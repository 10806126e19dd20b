package grants

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefabric/sharegate/pkg/share"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status share.ItemStatus
		exists bool
		want   DriftState
	}{
		{share.ItemShared, true, Consistent},
		{share.ItemShared, false, NeedsManualReview},
		{share.ItemRevoked, false, Consistent},
		{share.ItemRevoked, true, NeedsManualReview},
		{share.ItemShareFailed, false, NeedsReapply},
		{share.ItemShareFailed, true, NeedsReapply},
		{share.ItemRevokeFailed, true, NeedsReapply},
		{share.ItemRevokeFailed, false, NeedsReapply},
		{share.ItemPendingApproval, false, Consistent},
		{share.ItemPendingApproval, true, NeedsManualReview},
		{share.ItemShareRejected, false, Consistent},
		{share.ItemShareApproved, false, Consistent},
		{share.ItemShareApproved, true, Consistent},
		{share.ItemPendingApproveRevoke, true, Consistent},
		{share.ItemRevokeApproved, false, Consistent},
	}
	for _, tc := range cases {
		got := Classify(tc.status, tc.exists)
		assert.Equal(t, tc.want, got, "Classify(%s, %v)", tc.status, tc.exists)
	}
}

func TestMemoryClientIdempotent(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()
	g := Grant{Principal: "role_x", ResourceURI: "tbl_orders"}

	t.Log("Revoking an absent grant is a no-op")
	require.NoError(t, client.Revoke(ctx, g))

	require.NoError(t, client.Grant(ctx, g))
	require.NoError(t, client.Grant(ctx, g), "re-granting must be a no-op")

	exists, err := client.Exists(ctx, g)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Revoke(ctx, g))
	exists, err = client.Exists(ctx, g)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryClientFaultInjection(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()
	client.GrantErr = func(g Grant) error {
		if g.ResourceURI == "tbl_missing" {
			return ErrResourceNotFound
		}
		return nil
	}

	err := client.Grant(ctx, Grant{Principal: "role_x", ResourceURI: "tbl_missing"})
	assert.True(t, errors.Is(err, ErrResourceNotFound))

	t.Log("Failed grant must not be recorded")
	exists, err := client.Exists(ctx, Grant{Principal: "role_x", ResourceURI: "tbl_missing"})
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.Grant(ctx, Grant{Principal: "role_x", ResourceURI: "tbl_orders"}))
}
