package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/grants"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
)

// workerActor is the identity recorded on audit events emitted by the worker.
const workerActor = "system:worker"

// Worker drains the task queue and reconciles each item's grant with the
// external substrate. Tasks are redelivered at-least-once, so every step is
// idempotent: grant and revoke calls are no-ops when already applied, and
// status writes are compare-and-swap so a redelivered task for a settled item
// falls through without effect.
type Worker struct {
	store    *store.Store
	queue    Queue
	client   grants.Client
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewWorker creates a worker. A nil recorder disables audit; a nil logger
// falls back to slog.Default().
func NewWorker(st *store.Store, q Queue, c grants.Client, rec *audit.Recorder, logger *slog.Logger) *Worker {
	if rec == nil {
		rec = audit.NewRecorder(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: st, queue: q, client: c, recorder: rec, logger: logger}
}

// Run consumes tasks until the context is cancelled or the queue closes.
// Processing failures are logged and the task is left unacked for redelivery.
func (w *Worker) Run(ctx context.Context) error {
	tasks, err := w.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-tasks:
			if !ok {
				return nil
			}
			if err := w.Process(ctx, t); err != nil {
				w.logger.Error("task processing failed",
					"task", t.ID,
					"type", t.Type,
					"target", t.TargetURI,
					"error", err,
				)
				continue
			}
			if err := t.Ack(); err != nil {
				w.logger.Error("task ack failed", "task", t.ID, "error", err)
			}
		}
	}
}

// Drain synchronously processes every task currently buffered in a
// MemoryQueue. Used by single-binary mode where no worker loop runs.
func (w *Worker) Drain(ctx context.Context, q *MemoryQueue) error {
	tasks, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for q.Len() > 0 {
		t := <-tasks
		if err := w.Process(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Process executes one synchronization task: applies or removes the grant in
// the substrate, records the outcome on the item, and re-derives the share
// status. A nil return means the task is settled and may be acked, including
// the cases where the addressed item or share no longer exists or has already
// moved on (stale redelivery).
func (w *Worker) Process(ctx context.Context, t Task) error {
	item, err := w.store.GetShareItem(t.TargetURI)
	if err != nil {
		return err
	}
	if item == nil {
		w.logger.Warn("task target no longer exists", "task", t.ID, "target", t.TargetURI)
		return nil
	}

	so, err := w.store.GetShareObject(item.ShareURI)
	if err != nil {
		return err
	}
	if so == nil {
		w.logger.Warn("task share no longer exists", "task", t.ID, "share", item.ShareURI)
		return nil
	}

	ds, err := w.store.GetDataset(so.DatasetURI)
	if err != nil {
		return err
	}
	if ds == nil {
		return fmt.Errorf("dataset not found for share %s: %s", so.URI, so.DatasetURI)
	}

	g := grants.Grant{
		Principal:   so.PrincipalID,
		ResourceURI: item.ItemURI,
		AccountID:   ds.AwsAccountID,
		Region:      ds.Region,
	}

	var outcome string
	switch t.Type {
	case TypeGrant:
		outcome, err = w.processGrant(ctx, t, item.URI, item.Status, g)
	case TypeRevoke:
		outcome, err = w.processRevoke(ctx, t, item.URI, item.Status, g)
	default:
		w.logger.Error("unknown task type", "task", t.ID, "type", t.Type)
		return nil
	}
	if err != nil {
		return err
	}
	if outcome == "" {
		// Stale redelivery; the item already settled.
		return nil
	}

	shareStatus, err := w.store.RefreshShareStatus(item.ShareURI)
	if err != nil {
		return err
	}

	w.recorder.Record(audit.EventItemSync, workerActor, item.URI, map[string]string{
		"task":         t.ID,
		"type":         t.Type,
		"outcome":      outcome,
		"share":        item.ShareURI,
		"share_status": string(shareStatus),
	})
	w.logger.Info("synchronization task settled",
		"task", t.ID,
		"type", t.Type,
		"item", item.URI,
		"outcome", outcome,
		"share_status", string(shareStatus),
	)
	return nil
}

func (w *Worker) processGrant(ctx context.Context, t Task, itemURI string, status share.ItemStatus, g grants.Grant) (string, error) {
	if status != share.ItemShareApproved {
		return "", nil
	}
	if syncErr := w.client.Grant(ctx, g); syncErr != nil {
		msg := syncErr.Error()
		err := w.store.CompleteItemSync(itemURI, share.ItemShareApproved, share.ItemShareFailed, &msg, t.ID)
		return string(share.ItemShareFailed), ignoreStale(err)
	}
	err := w.store.CompleteItemSync(itemURI, share.ItemShareApproved, share.ItemShared, nil, t.ID)
	return string(share.ItemShared), ignoreStale(err)
}

func (w *Worker) processRevoke(ctx context.Context, t Task, itemURI string, status share.ItemStatus, g grants.Grant) (string, error) {
	// Claim the item before touching the substrate so a concurrent worker
	// observes it in-flight. A redelivered task may find the claim already
	// held from a previous attempt that died mid-revoke; re-running the
	// revoke is safe.
	ok, err := w.store.UpdateItemStatus(itemURI, share.ItemPendingApproveRevoke, share.ItemRevokeApproved)
	if err != nil {
		return "", err
	}
	if !ok && status != share.ItemRevokeApproved {
		return "", nil
	}

	if syncErr := w.client.Revoke(ctx, g); syncErr != nil {
		msg := syncErr.Error()
		err := w.store.CompleteItemSync(itemURI, share.ItemRevokeApproved, share.ItemRevokeFailed, &msg, t.ID)
		return string(share.ItemRevokeFailed), ignoreStale(err)
	}
	err = w.store.CompleteItemSync(itemURI, share.ItemRevokeApproved, share.ItemRevoked, nil, t.ID)
	return string(share.ItemRevoked), ignoreStale(err)
}

// ignoreStale drops lost-race errors from outcome recording: another worker
// settled the item first, which is a valid end state under at-least-once
// delivery.
func ignoreStale(err error) error {
	if errors.Is(err, store.ErrStaleStatus) {
		return nil
	}
	return err
}
