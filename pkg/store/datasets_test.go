package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefabric/sharegate/pkg/share"
)

// TestDeleteDatasetCascade verifies the cascade removes shares, items,
// tables, and every policy at every scope.
func TestDeleteDatasetCascade(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "stewards")
	so := seedShare(t, st, ds, "team-b")
	seedItem(t, st, so.URI, "tbl_orders")

	tbl := &DatasetTable{URI: "tbl_orders", DatasetURI: ds.URI, Name: "orders"}
	require.NoError(t, st.AddDatasetTable(tbl))
	require.NoError(t, st.AttachResourcePolicy("stewards", tbl.URI, "table", []string{"dataset:table_read"}))

	require.NoError(t, st.DeleteDatasetCascade(ds.URI))

	got, err := st.GetDataset(ds.URI)
	require.NoError(t, err)
	assert.Nil(t, got)

	gotShare, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Nil(t, gotShare)

	for _, uri := range []string{ds.URI, so.URI, tbl.URI} {
		policies, err := st.ListResourcePolicies(uri)
		require.NoError(t, err)
		assert.Empty(t, policies, "no policy may survive for %s", uri)
	}
}

// TestDeleteDatasetCascadeMissing verifies deleting an unknown dataset fails.
func TestDeleteDatasetCascadeMissing(t *testing.T) {
	st := setupTestStore(t)
	assert.Error(t, st.DeleteDatasetCascade("ds_missing"))
}

// TestListDatasetItemsInStatus verifies granted items are found across every
// share of the dataset.
func TestListDatasetItemsInStatus(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so1 := seedShare(t, st, ds, "team-b")
	so2 := seedShare(t, st, ds, "team-c")

	it1 := seedItem(t, st, so1.URI, "tbl_orders")
	seedItem(t, st, so2.URI, "tbl_orders")

	ok, err := st.UpdateItemStatus(it1.URI, share.ItemPendingApproval, share.ItemShareApproved)
	require.NoError(t, err)
	require.True(t, ok)

	granted, err := st.ListDatasetItemsInStatus(ds.URI, share.ItemShareApproved, share.ItemShared)
	require.NoError(t, err)
	require.Len(t, granted, 1)
	assert.Equal(t, it1.URI, granted[0].URI)
}

// TestFindOpenShareExcludesDeleted verifies a soft-deleted share no longer
// blocks a new request for the same (dataset, principal) pair.
func TestFindOpenShareExcludesDeleted(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")

	found, err := st.FindOpenShare(ds.URI, so.PrincipalID)
	require.NoError(t, err)
	require.NotNil(t, found)

	require.NoError(t, st.DeleteShare(so.URI, nil))

	found, err = st.FindOpenShare(ds.URI, so.PrincipalID)
	require.NoError(t, err)
	assert.Nil(t, found)
}
