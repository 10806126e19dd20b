package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefabric/sharegate/pkg/share"
)

const (
	grantTask  = "share.grant"
	revokeTask = "share.revoke"
)

// approveWithItems drives a seeded share to Approved with the given number of
// items and returns the item rows and grant tasks.
func approveWithItems(t *testing.T, st *Store, so *ShareObject, n int) ([]*ShareObjectItem, []*TaskRecord) {
	t.Helper()
	var items []*ShareObjectItem
	for i := 0; i < n; i++ {
		items = append(items, seedItem(t, st, so.URI, "tbl_"+string(rune('a'+i))))
	}
	require.NoError(t, st.SubmitShare(so.URI, share.StatusDraft))
	tasks, err := st.ApproveShare(so.URI, grantTask)
	require.NoError(t, err)
	require.Len(t, tasks, n)
	return items, tasks
}

// settleGrants completes every grant task successfully, leaving items Shared
// and the share Processed.
func settleGrants(t *testing.T, st *Store, items []*ShareObjectItem, tasks []*TaskRecord) {
	t.Helper()
	byTarget := map[string]*TaskRecord{}
	for _, task := range tasks {
		byTarget[task.TargetURI] = task
	}
	for _, it := range items {
		require.NoError(t, st.CompleteItemSync(it.URI,
			share.ItemShareApproved, share.ItemShared, nil, byTarget[it.URI].ID))
	}
	shareURI := items[0].ShareURI
	status, err := st.RefreshShareStatus(shareURI)
	require.NoError(t, err)
	require.Equal(t, share.StatusProcessed, status)
}

// TestSubmitShareRequiresItems verifies submission fails on an empty share
// and leaves the share Draft.
func TestSubmitShareRequiresItems(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")

	err := st.SubmitShare(so.URI, share.StatusDraft)
	assert.ErrorIs(t, err, ErrNoSubmittableItems)

	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusDraft, got.Status, "failed submit must not change status")
}

// TestSubmitShareStaleStatus verifies the compare-and-swap rejects a submit
// racing a concurrent transition.
func TestSubmitShareStaleStatus(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	seedItem(t, st, so.URI, "tbl_orders")

	require.NoError(t, st.SubmitShare(so.URI, share.StatusDraft))

	t.Log("Second submit from the stale Draft expectation loses")
	err := st.SubmitShare(so.URI, share.StatusDraft)
	assert.ErrorIs(t, err, ErrStaleStatus)
}

// TestApproveShareCreatesTasks verifies approval moves the share and every
// pending item together and records one grant task per item.
func TestApproveShareCreatesTasks(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 2)

	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusApproved, got.Status)

	for _, it := range items {
		row, err := st.GetShareItem(it.URI)
		require.NoError(t, err)
		assert.Equal(t, share.ItemShareApproved, row.Status)
	}

	for _, task := range tasks {
		rec, err := st.GetTaskRecord(task.ID)
		require.NoError(t, err)
		assert.Equal(t, grantTask, rec.TaskType)
		assert.Equal(t, "pending", rec.Status)
		assert.Equal(t, so.URI, rec.ShareURI)
	}
}

// TestApproveShareNotPending verifies approving a Draft share fails.
func TestApproveShareNotPending(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")

	_, err := st.ApproveShare(so.URI, grantTask)
	assert.ErrorIs(t, err, ErrStaleStatus)
}

// TestRejectShare verifies rejection records the reason and settles pending
// items without any tasks.
func TestRejectShare(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	it := seedItem(t, st, so.URI, "tbl_orders")
	require.NoError(t, st.SubmitShare(so.URI, share.StatusDraft))

	require.NoError(t, st.RejectShare(so.URI, "insufficient justification"))

	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusRejected, got.Status)
	assert.Equal(t, "insufficient justification", got.RejectPurpose)

	row, err := st.GetShareItem(it.URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShareRejected, row.Status)

	tasks, err := st.ListTasksByShare(so.URI)
	require.NoError(t, err)
	assert.Empty(t, tasks, "rejection must not enqueue synchronization work")
}

// TestResubmitAfterRejection verifies the Rejected -> PendingApproval edge.
func TestResubmitAfterRejection(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	seedItem(t, st, so.URI, "tbl_orders")
	require.NoError(t, st.SubmitShare(so.URI, share.StatusDraft))
	require.NoError(t, st.RejectShare(so.URI, "not yet"))

	t.Log("Adding a fresh item and resubmitting the rejected share")
	seedItem(t, st, so.URI, "tbl_lines")
	require.NoError(t, st.SubmitShare(so.URI, share.StatusRejected))

	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusPendingApproval, got.Status)
}

// TestGrantSyncSuccess verifies the full happy path: approval, grant
// completion, health, task closure, and the share reaching Processed.
func TestGrantSyncSuccess(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 1)

	settleGrants(t, st, items, tasks)

	row, err := st.GetShareItem(items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShared, row.Status)
	assert.Equal(t, share.HealthHealthy, row.HealthStatus)
	assert.Nil(t, row.LastSyncError)

	rec, err := st.GetTaskRecord(tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
	assert.NotNil(t, rec.CompletedAt)
}

// TestGrantSyncFailure verifies a failed grant records the error on the item
// and still lets the share settle to Processed.
func TestGrantSyncFailure(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 1)

	msg := "external resource tbl_a not found"
	require.NoError(t, st.CompleteItemSync(items[0].URI,
		share.ItemShareApproved, share.ItemShareFailed, &msg, tasks[0].ID))

	row, err := st.GetShareItem(items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShareFailed, row.Status)
	assert.Equal(t, share.HealthUnhealthy, row.HealthStatus)
	require.NotNil(t, row.LastSyncError)
	assert.Equal(t, msg, *row.LastSyncError)

	t.Log("A failed item still counts as settled for share-level completion")
	status, err := st.RefreshShareStatus(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusProcessed, status)

	rec, err := st.GetTaskRecord(tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.Status)
}

// TestCompleteItemSyncStale verifies a lost race surfaces as ErrStaleStatus
// instead of overwriting the concurrent outcome.
func TestCompleteItemSyncStale(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 1)
	settleGrants(t, st, items, tasks)

	err := st.CompleteItemSync(items[0].URI,
		share.ItemShareApproved, share.ItemShared, nil, tasks[0].ID)
	assert.ErrorIs(t, err, ErrStaleStatus)
}

// TestRevokeItemsPartial verifies a partial revoke marks only the named items
// and leaves the share Processed.
func TestRevokeItemsPartial(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 2)
	settleGrants(t, st, items, tasks)

	revokeTasks, err := st.RevokeItems(so.URI, []string{items[0].URI}, revokeTask)
	require.NoError(t, err)
	require.Len(t, revokeTasks, 1)
	assert.Equal(t, revokeTask, revokeTasks[0].TaskType)

	row, err := st.GetShareItem(items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemPendingApproveRevoke, row.Status)

	other, err := st.GetShareItem(items[1].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShared, other.Status, "unnamed item must stay granted")

	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusProcessed, got.Status, "partial revoke leaves the share Processed")
}

// TestRevokeItemsAllOrNothing verifies one ineligible item rolls the whole
// revoke request back.
func TestRevokeItemsAllOrNothing(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 2)

	t.Log("Only the first item reaches Shared; the second stays in-flight")
	require.NoError(t, st.CompleteItemSync(items[0].URI,
		share.ItemShareApproved, share.ItemShared, nil, tasks[0].ID))

	_, err := st.RevokeItems(so.URI, []string{items[0].URI, items[1].URI}, revokeTask)
	var ineligible *ItemNotEligibleError
	require.ErrorAs(t, err, &ineligible)
	assert.Equal(t, items[1].URI, ineligible.ItemURI)

	t.Log("The eligible item must be untouched after rollback")
	row, err := st.GetShareItem(items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShared, row.Status)

	tasksAfter, err := st.ListTasksByShare(so.URI)
	require.NoError(t, err)
	assert.Len(t, tasksAfter, 2, "no revoke task may survive the rollback")
}

// TestFullRevokeLifecycle drives every item through revocation and verifies
// the share ends Revoked.
func TestFullRevokeLifecycle(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 2)
	settleGrants(t, st, items, tasks)

	revokeTasks, err := st.RevokeItems(so.URI, []string{items[0].URI, items[1].URI}, revokeTask)
	require.NoError(t, err)
	require.Len(t, revokeTasks, 2)

	t.Log("Covering every granted item moves the share to PendingApproveRevoke")
	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusPendingApproveRevoke, got.Status)

	for i, it := range items {
		ok, err := st.UpdateItemStatus(it.URI, share.ItemPendingApproveRevoke, share.ItemRevokeApproved)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, st.CompleteItemSync(it.URI,
			share.ItemRevokeApproved, share.ItemRevoked, nil, revokeTasks[i].ID))
	}

	status, err := st.RefreshShareStatus(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusRevoked, status)
}

// TestRevokeFailureReturnsShareToProcessed verifies that a settled revocation
// with failures leaves the share Processed for another attempt.
func TestRevokeFailureReturnsShareToProcessed(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 1)
	settleGrants(t, st, items, tasks)

	revokeTasks, err := st.RevokeItems(so.URI, []string{items[0].URI}, revokeTask)
	require.NoError(t, err)

	ok, err := st.UpdateItemStatus(items[0].URI, share.ItemPendingApproveRevoke, share.ItemRevokeApproved)
	require.NoError(t, err)
	require.True(t, ok)

	msg := "substrate unavailable"
	require.NoError(t, st.CompleteItemSync(items[0].URI,
		share.ItemRevokeApproved, share.ItemRevokeFailed, &msg, revokeTasks[0].ID))

	status, err := st.RefreshShareStatus(so.URI)
	require.NoError(t, err)
	assert.Equal(t, share.StatusProcessed, status)
}

// TestReapplyItems verifies failed items are reset and re-tasked, settled
// items are rejected, and exhausted items are flagged for manual review.
func TestReapplyItems(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 2)

	msg := "boom"
	require.NoError(t, st.CompleteItemSync(items[0].URI,
		share.ItemShareApproved, share.ItemShareFailed, &msg, tasks[0].ID))
	require.NoError(t, st.CompleteItemSync(items[1].URI,
		share.ItemShareApproved, share.ItemShared, nil, tasks[1].ID))

	t.Log("Reapplying a settled item is rejected")
	_, err := st.ReapplyItems(so.URI, []string{items[1].URI}, grantTask, revokeTask, 3)
	var ineligible *ItemNotEligibleError
	require.ErrorAs(t, err, &ineligible)

	t.Log("Reapplying the failed item resets it and enqueues a grant task")
	res, err := st.ReapplyItems(so.URI, []string{items[0].URI}, grantTask, revokeTask, 3)
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Empty(t, res.Flagged)
	assert.Equal(t, grantTask, res.Tasks[0].TaskType)

	row, err := st.GetShareItem(items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShareApproved, row.Status)
	assert.Nil(t, row.LastSyncError, "reapply clears the previous sync error")
	assert.Equal(t, 1, row.ReapplyAttempts)
}

// TestReapplyItemsAttemptLimit verifies an item past the attempt limit is
// flagged instead of re-enqueued.
func TestReapplyItemsAttemptLimit(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 1)

	msg := "boom"
	taskID := tasks[0].ID
	for attempt := 0; attempt < 2; attempt++ {
		require.NoError(t, st.CompleteItemSync(items[0].URI,
			share.ItemShareApproved, share.ItemShareFailed, &msg, taskID))
		res, err := st.ReapplyItems(so.URI, []string{items[0].URI}, grantTask, revokeTask, 2)
		require.NoError(t, err)
		require.Len(t, res.Tasks, 1)
		taskID = res.Tasks[0].ID
	}

	t.Log("Third failure exhausts the limit of two attempts")
	require.NoError(t, st.CompleteItemSync(items[0].URI,
		share.ItemShareApproved, share.ItemShareFailed, &msg, taskID))
	res, err := st.ReapplyItems(so.URI, []string{items[0].URI}, grantTask, revokeTask, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Tasks)
	assert.Equal(t, []string{items[0].URI}, res.Flagged)

	row, err := st.GetShareItem(items[0].URI)
	require.NoError(t, err)
	assert.Equal(t, share.ItemShareFailed, row.Status, "flagged item keeps its failed status")
	assert.Equal(t, share.HealthUnhealthy, row.HealthStatus)
}

// TestDeleteShareBlockedByGrants verifies deletion fails while items hold or
// await grants, and succeeds once everything is revoked.
func TestDeleteShareBlockedByGrants(t *testing.T) {
	st := setupTestStore(t)
	ds := seedDataset(t, st, "team-a", "team-a")
	so := seedShare(t, st, ds, "team-b")
	items, tasks := approveWithItems(t, st, so, 1)
	settleGrants(t, st, items, tasks)

	blocking := []share.ItemStatus{
		share.ItemShared, share.ItemShareApproved,
		share.ItemPendingApproveRevoke, share.ItemRevokeApproved, share.ItemRevokeFailed,
	}

	err := st.DeleteShare(so.URI, blocking)
	var blocked *ItemsBlockDeletionError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, []string{items[0].URI}, blocked.ItemURIs)

	t.Log("Revoking the item unblocks deletion")
	revokeTasks, err := st.RevokeItems(so.URI, []string{items[0].URI}, revokeTask)
	require.NoError(t, err)
	ok, err := st.UpdateItemStatus(items[0].URI, share.ItemPendingApproveRevoke, share.ItemRevokeApproved)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, st.CompleteItemSync(items[0].URI,
		share.ItemRevokeApproved, share.ItemRevoked, nil, revokeTasks[0].ID))

	require.NoError(t, st.DeleteShare(so.URI, blocking))

	got, err := st.GetShareObject(so.URI)
	require.NoError(t, err)
	assert.Nil(t, got, "soft-deleted share must not be readable")

	policies, err := st.ListResourcePolicies(so.URI)
	require.NoError(t, err)
	assert.Empty(t, policies, "share deletion detaches its policies")
}
