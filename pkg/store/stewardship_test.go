package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGrants = StewardshipGrants{
	DatasetPermissions:  []string{"dataset:read"},
	TablePermissions:    []string{"dataset:table_read"},
	ApproverPermissions: []string{"share:get", "share:approve", "share:reject"},
}

// TestTransferStewardshipToNewGroup verifies the new steward gains policies
// at every scope and the old steward loses them, atomically.
func TestTransferStewardshipToNewGroup(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "owners", "old-stewards")
	so := seedShare(t, st, ds, "requesters")

	tbl := &DatasetTable{URI: "tbl_orders", DatasetURI: ds.URI, Name: "orders"}
	require.NoError(t, st.AddDatasetTable(tbl))
	require.NoError(t, st.AttachResourcePolicy("old-stewards", tbl.URI, "table", testGrants.TablePermissions))
	require.NoError(t, st.AttachResourcePolicy("old-stewards", so.URI, "share", testGrants.ApproverPermissions))

	require.NoError(t, st.TransferStewardship(ds.URI, "new-stewards", testGrants))

	t.Log("New steward can approve the pre-existing share")
	ok, err := st.CheckResourcePermission([]string{"new-stewards"}, so.URI, "share:approve")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Log("Old steward lost all scopes")
	for _, uri := range []string{ds.URI, tbl.URI, so.URI} {
		ok, err := st.CheckResourcePermission([]string{"old-stewards"}, uri, "dataset:read")
		require.NoError(t, err)
		assert.False(t, ok, "old steward should hold nothing on %s", uri)
		policies, err := st.ListResourcePolicies(uri)
		require.NoError(t, err)
		for _, p := range policies {
			assert.NotEqual(t, "old-stewards", p.GroupName)
		}
	}

	t.Log("Owner policies are untouched")
	ok, err = st.CheckResourcePermission([]string{"owners"}, ds.URI, "dataset:read")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := st.GetDataset(ds.URI)
	require.NoError(t, err)
	assert.Equal(t, "new-stewards", got.Stewards)
}

// TestTransferStewardshipToOwners verifies returning stewardship to the
// owning group only removes the delegation; the owner set is never touched.
func TestTransferStewardshipToOwners(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "owners", "old-stewards")
	so := seedShare(t, st, ds, "requesters")
	require.NoError(t, st.AttachResourcePolicy("old-stewards", so.URI, "share", testGrants.ApproverPermissions))
	require.NoError(t, st.AttachResourcePolicy("owners", so.URI, "share", testGrants.ApproverPermissions))

	require.NoError(t, st.TransferStewardship(ds.URI, "owners", testGrants))

	t.Log("Owner keeps the approver set it already held")
	ok, err := st.CheckResourcePermission([]string{"owners"}, so.URI, "share:approve")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Log("Old steward delegation is gone")
	ok, err = st.CheckResourcePermission([]string{"old-stewards"}, so.URI, "share:approve")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetDataset(ds.URI)
	require.NoError(t, err)
	assert.Equal(t, "owners", got.Stewards)
}

// TestTransferStewardshipFromOwners verifies delegating from an owner-held
// stewardship never strips the owner's own capabilities.
func TestTransferStewardshipFromOwners(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "owners", "owners")
	so := seedShare(t, st, ds, "requesters")
	require.NoError(t, st.AttachResourcePolicy("owners", so.URI, "share", testGrants.ApproverPermissions))

	require.NoError(t, st.TransferStewardship(ds.URI, "new-stewards", testGrants))

	t.Log("Owner capabilities survive delegating stewardship away")
	ok, err := st.CheckResourcePermission([]string{"owners"}, ds.URI, "dataset:read")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.CheckResourcePermission([]string{"owners"}, so.URI, "share:approve")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Log("New steward holds the delegated scopes")
	ok, err = st.CheckResourcePermission([]string{"new-stewards"}, so.URI, "share:approve")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestTransferStewardshipMissingDataset verifies the transfer fails cleanly
// for an unknown dataset.
func TestTransferStewardshipMissingDataset(t *testing.T) {
	st := setupTestStore(t)
	err := st.TransferStewardship("ds_missing", "new-stewards", testGrants)
	assert.Error(t, err)
}

// policySnapshot captures group -> permissions per resource.
func policySnapshot(t *testing.T, st *Store, uris ...string) map[string]map[string][]string {
	t.Helper()
	snap := make(map[string]map[string][]string)
	for _, uri := range uris {
		policies, err := st.ListResourcePolicies(uri)
		require.NoError(t, err)
		byGroup := make(map[string][]string)
		for _, p := range policies {
			byGroup[p.GroupName] = p.Permissions
		}
		snap[uri] = byGroup
	}
	return snap
}

// TestTransferStewardshipRollsBackOnFailure verifies that a failure after the
// dataset and table scopes have been rewritten, but before the share scope,
// leaves every policy exactly as it was before the transfer began.
func TestTransferStewardshipRollsBackOnFailure(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "owners", "old-stewards")
	so := seedShare(t, st, ds, "requesters")

	tbl := &DatasetTable{URI: "tbl_orders", DatasetURI: ds.URI, Name: "orders"}
	require.NoError(t, st.AddDatasetTable(tbl))
	require.NoError(t, st.AttachResourcePolicy("old-stewards", ds.URI, "dataset", testGrants.DatasetPermissions))
	require.NoError(t, st.AttachResourcePolicy("old-stewards", tbl.URI, "table", testGrants.TablePermissions))
	require.NoError(t, st.AttachResourcePolicy("old-stewards", so.URI, "share", testGrants.ApproverPermissions))

	before := policySnapshot(t, st, ds.URI, tbl.URI, so.URI)

	st.transferHook = func(scope string) error {
		if scope == "tables" {
			return assert.AnError
		}
		return nil
	}
	defer func() { st.transferHook = nil }()

	err := st.TransferStewardship(ds.URI, "new-stewards", testGrants)
	require.ErrorIs(t, err, assert.AnError)

	t.Log("Every scope matches its pre-transfer snapshot")
	after := policySnapshot(t, st, ds.URI, tbl.URI, so.URI)
	assert.Equal(t, before, after)

	t.Log("The stewards column is unchanged")
	got, err := st.GetDataset(ds.URI)
	require.NoError(t, err)
	assert.Equal(t, "old-stewards", got.Stewards)
}
