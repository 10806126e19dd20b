package store

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lakefabric/sharegate/pkg/share"
)

// setupTestStore creates a store backed by a temp-dir database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { st.Close() })
	return st
}

// seedDataset creates a dataset with owner and steward policies attached.
func seedDataset(t *testing.T, st *Store, adminGroup, stewards string) *Dataset {
	t.Helper()
	ds := &Dataset{
		URI:            "ds_" + uuid.NewString(),
		Name:           "customer-orders",
		EnvironmentURI: "env_target",
		AwsAccountID:   "111122223333",
		Region:         "eu-west-1",
		AdminGroup:     adminGroup,
		Stewards:       stewards,
		Owner:          "alice",
	}
	policies := []PolicyAttachment{
		{Group: adminGroup, ResourceURI: ds.URI, ResourceType: "dataset",
			Permissions: []string{"dataset:read", "dataset:delete"}},
	}
	if stewards != adminGroup {
		policies = append(policies, PolicyAttachment{
			Group: stewards, ResourceURI: ds.URI, ResourceType: "dataset",
			Permissions: []string{"dataset:read"},
		})
	}
	require.NoError(t, st.CreateDataset(ds, policies), "failed to seed dataset")
	return ds
}

// seedShare creates a Draft share for the dataset with requester policies.
func seedShare(t *testing.T, st *Store, ds *Dataset, groupURI string) *ShareObject {
	t.Helper()
	so := &ShareObject{
		URI:            "shr_" + uuid.NewString(),
		DatasetURI:     ds.URI,
		EnvironmentURI: "env_target",
		GroupURI:       groupURI,
		PrincipalID:    "role_" + groupURI,
		PrincipalType:  share.PrincipalConsumptionRole,
		Owner:          "bob",
		Status:         share.StatusDraft,
		RequestPurpose: "analytics",
	}
	policies := []PolicyAttachment{
		{Group: groupURI, ResourceURI: so.URI, ResourceType: "share",
			Permissions: []string{"share:get", "share:submit"}},
	}
	require.NoError(t, st.CreateShareObject(so, policies), "failed to seed share")
	return so
}

// seedItem adds a PendingApproval item to a share.
func seedItem(t *testing.T, st *Store, shareURI, itemURI string) *ShareObjectItem {
	t.Helper()
	it := &ShareObjectItem{
		URI:          "itm_" + uuid.NewString(),
		ShareURI:     shareURI,
		ItemURI:      itemURI,
		ItemType:     "DatasetTable",
		ItemName:     "orders",
		Status:       share.ItemPendingApproval,
		HealthStatus: share.HealthPendingVerify,
	}
	require.NoError(t, st.AddShareItem(it), "failed to seed item")
	return it
}

// TestOpenCreatesSchema verifies a fresh database opens and migrates cleanly.
func TestOpenCreatesSchema(t *testing.T) {
	st := setupTestStore(t)

	datasets, err := st.ListDatasets()
	require.NoError(t, err)
	require.Empty(t, datasets, "fresh store should have no datasets")
}

// TestOpenIsIdempotent verifies reopening an existing database works.
func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	st, err := Open(path)
	require.NoError(t, err)
	seedDataset(t, st, "team-a", "team-a")
	require.NoError(t, st.Close())

	st2, err := Open(path)
	require.NoError(t, err)
	defer st2.Close()

	datasets, err := st2.ListDatasets()
	require.NoError(t, err)
	require.Len(t, datasets, 1, "dataset should survive reopen")
}
