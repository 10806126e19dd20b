package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefabric/sharegate/pkg/grants"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
)

type workerFixture struct {
	store  *store.Store
	queue  *MemoryQueue
	client *grants.MemoryClient
	worker *Worker
	share  *store.ShareObject
	items  []*store.ShareObjectItem
}

// setupWorker builds a store with an approved two-item share and a worker
// over a memory queue and substrate. The grant tasks from approval are
// already enqueued.
func setupWorker(t *testing.T) *workerFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ds := &store.Dataset{
		URI: "ds_" + uuid.NewString(), Name: "orders", EnvironmentURI: "env_1",
		AwsAccountID: "111122223333", Region: "eu-west-1",
		AdminGroup: "team-a", Stewards: "team-a", Owner: "alice",
	}
	require.NoError(t, st.CreateDataset(ds, nil))

	so := &store.ShareObject{
		URI: "shr_" + uuid.NewString(), DatasetURI: ds.URI, EnvironmentURI: "env_1",
		GroupURI: "team-b", PrincipalID: "role_team_b",
		PrincipalType: share.PrincipalConsumptionRole,
		Owner:         "bob", Status: share.StatusDraft,
	}
	require.NoError(t, st.CreateShareObject(so, nil))

	var items []*store.ShareObjectItem
	for _, name := range []string{"tbl_orders", "tbl_lines"} {
		it := &store.ShareObjectItem{
			URI: "itm_" + uuid.NewString(), ShareURI: so.URI, ItemURI: name,
			ItemType: "DatasetTable", ItemName: name,
			Status: share.ItemPendingApproval, HealthStatus: share.HealthPendingVerify,
		}
		require.NoError(t, st.AddShareItem(it))
		items = append(items, it)
	}

	require.NoError(t, st.SubmitShare(so.URI, share.StatusDraft))
	tasks, err := st.ApproveShare(so.URI, TypeGrant)
	require.NoError(t, err)

	queue := NewMemoryQueue(16)
	ctx := context.Background()
	for _, rec := range tasks {
		require.NoError(t, queue.Enqueue(ctx, Task{
			ID: rec.ID, Type: rec.TaskType, TargetURI: rec.TargetURI, ShareURI: rec.ShareURI,
		}))
	}

	client := grants.NewMemoryClient()
	w := NewWorker(st, queue, client, nil, nil)
	return &workerFixture{store: st, queue: queue, client: client, worker: w, share: so, items: items}
}

func (f *workerFixture) grantFor(it *store.ShareObjectItem) grants.Grant {
	return grants.Grant{
		Principal: "role_team_b", ResourceURI: it.ItemURI,
		AccountID: "111122223333", Region: "eu-west-1",
	}
}

// TestWorkerGrantsApprovedItems verifies draining the queue applies every
// grant and settles the share to Processed.
func TestWorkerGrantsApprovedItems(t *testing.T) {
	f := setupWorker(t)
	ctx := context.Background()

	require.NoError(t, f.worker.Drain(ctx, f.queue))

	for _, it := range f.items {
		row, err := f.store.GetShareItem(it.URI)
		require.NoError(t, err)
		assert.Equal(t, share.ItemShared, row.Status)
		assert.Equal(t, share.HealthHealthy, row.HealthStatus)

		exists, err := f.client.Exists(ctx, f.grantFor(it))
		require.NoError(t, err)
		assert.True(t, exists, "grant for %s must exist in the substrate", it.ItemURI)
	}

	so, err := f.store.GetShareObject(f.share.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusProcessed, so.Status)
}

// TestWorkerRecordsGrantFailure verifies a substrate failure lands on the
// item as ShareFailed with the error recorded, while other items proceed.
func TestWorkerRecordsGrantFailure(t *testing.T) {
	f := setupWorker(t)
	ctx := context.Background()

	f.client.GrantErr = func(g grants.Grant) error {
		if g.ResourceURI == "tbl_lines" {
			return grants.ErrResourceNotFound
		}
		return nil
	}

	require.NoError(t, f.worker.Drain(ctx, f.queue))

	healthy, err := f.store.GetShareItem(f.items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShared, healthy.Status)

	failed, err := f.store.GetShareItem(f.items[1].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShareFailed, failed.Status)
	assert.Equal(t, share.HealthUnhealthy, failed.HealthStatus)
	require.NotNil(t, failed.LastSyncError)
	assert.Contains(t, *failed.LastSyncError, "not found")

	t.Log("One failed item does not keep the share from settling")
	so, err := f.store.GetShareObject(f.share.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusProcessed, so.Status)
}

// TestWorkerRevokesItems verifies revoke tasks remove grants and the share
// ends Revoked once every item is covered.
func TestWorkerRevokesItems(t *testing.T) {
	f := setupWorker(t)
	ctx := context.Background()
	require.NoError(t, f.worker.Drain(ctx, f.queue))

	recs, err := f.store.RevokeItems(f.share.URI,
		[]string{f.items[0].URI, f.items[1].URI}, TypeRevoke)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, f.queue.Enqueue(ctx, Task{
			ID: rec.ID, Type: rec.TaskType, TargetURI: rec.TargetURI, ShareURI: rec.ShareURI,
		}))
	}

	require.NoError(t, f.worker.Drain(ctx, f.queue))

	for _, it := range f.items {
		row, err := f.store.GetShareItem(it.URI)
		require.NoError(t, err)
		assert.Equal(t, share.ItemRevoked, row.Status)

		exists, err := f.client.Exists(ctx, f.grantFor(it))
		require.NoError(t, err)
		assert.False(t, exists, "grant for %s must be gone", it.ItemURI)
	}

	so, err := f.store.GetShareObject(f.share.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusRevoked, so.Status)
}

// TestWorkerRedeliveryIsIdempotent verifies processing the same task twice
// leaves exactly the same state (at-least-once safety).
func TestWorkerRedeliveryIsIdempotent(t *testing.T) {
	f := setupWorker(t)
	ctx := context.Background()

	tasks, err := f.queue.Consume(ctx)
	require.NoError(t, err)
	first := <-tasks

	require.NoError(t, f.worker.Process(ctx, first))
	require.NoError(t, f.worker.Process(ctx, first), "redelivery must be a no-op")

	row, err := f.store.GetShareItem(first.TargetURI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShared, row.Status)
}

// TestWorkerSkipsVanishedTarget verifies a task whose item row is gone is
// settled without error.
func TestWorkerSkipsVanishedTarget(t *testing.T) {
	f := setupWorker(t)
	ctx := context.Background()

	err := f.worker.Process(ctx, Task{
		ID: "tsk_ghost", Type: TypeGrant, TargetURI: "itm_ghost", ShareURI: f.share.URI,
	})
	assert.NoError(t, err)
}

// TestMemoryQueue verifies enqueue, drain order, and close semantics.
func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)

	require.NoError(t, q.Enqueue(ctx, Task{ID: "tsk_1"}))
	require.NoError(t, q.Enqueue(ctx, Task{ID: "tsk_2"}))
	assert.Equal(t, 2, q.Len())

	tasks, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tsk_1", (<-tasks).ID)
	assert.Equal(t, "tsk_2", (<-tasks).ID)

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(ctx, Task{ID: "tsk_3"}), ErrQueueClosed)

	_, open := <-tasks
	assert.False(t, open, "channel must close after Close and drain")

	t.Log("Ack without a transport callback is a no-op")
	assert.NoError(t, Task{ID: "tsk_1"}.Ack())
}
