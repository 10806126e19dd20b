// Package broker implements the share broker's operations: dataset
// registration, the share request lifecycle, per-item grant management, and
// stewardship transfer. Every mutating operation takes the acting principal
// explicitly, is gated through the authorization guard, and records an audit
// event with its outcome.
package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/authz"
	"github.com/lakefabric/sharegate/pkg/grants"
	"github.com/lakefabric/sharegate/pkg/principal"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
	"github.com/lakefabric/sharegate/pkg/task"
)

// Broker coordinates the persistent state, the authorization guard, the task
// queue, and the external grant substrate.
type Broker struct {
	store    *store.Store
	guard    *authz.Guard
	queue    task.Queue
	client   grants.Client
	resolver principal.Resolver
	recorder *audit.Recorder
	logger   *slog.Logger

	maxReapplyAttempts int
}

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = l
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(r *audit.Recorder) Option {
	return func(b *Broker) {
		b.recorder = r
	}
}

// WithMaxReapplyAttempts bounds reapply retries per item before the item is
// flagged for manual review.
func WithMaxReapplyAttempts(n int) Option {
	return func(b *Broker) {
		b.maxReapplyAttempts = n
	}
}

// New creates a broker over the given store, queue, grant substrate, and
// principal resolver.
func New(st *store.Store, q task.Queue, c grants.Client, r principal.Resolver, opts ...Option) *Broker {
	b := &Broker{
		store:              st,
		queue:              q,
		client:             c,
		resolver:           r,
		logger:             slog.Default(),
		maxReapplyAttempts: 3,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.recorder == nil {
		b.recorder = audit.NewRecorder(b.logger)
	}
	b.guard = authz.NewGuard(st, authz.WithLogger(b.logger))
	return b
}

// Store exposes the underlying store for read-only queries by the CLI.
func (b *Broker) Store() *store.Store {
	return b.store
}

// require gates an operation through the guard and audits denials.
func (b *Broker) require(actor share.Actor, resourceURI, action string) error {
	err := b.guard.Require(actor, resourceURI, action)
	if share.IsUnauthorized(err) {
		b.recorder.Record(audit.EventAuthzDenied, actor.Username, resourceURI, map[string]string{
			"action": action,
		})
	}
	return err
}

// publishTasks hands committed task records to the queue. Publish failures do
// not undo the decision; the task rows stay pending and can be re-published.
func (b *Broker) publishTasks(ctx context.Context, records []*store.TaskRecord) error {
	for _, rec := range records {
		t := task.Task{
			ID:        rec.ID,
			Type:      rec.TaskType,
			TargetURI: rec.TargetURI,
			ShareURI:  rec.ShareURI,
		}
		if err := b.queue.Enqueue(ctx, t); err != nil {
			return fmt.Errorf("failed to enqueue task %s: %w", rec.ID, err)
		}
	}
	return nil
}
