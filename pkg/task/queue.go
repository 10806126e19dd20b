// Package task carries synchronization work from the request path to the
// worker. Approving or revoking a share records task rows inside the deciding
// transaction; the task bodies are published to a Queue only after commit, so
// the worker never observes work for a decision that rolled back.
package task

import "context"

// Task types understood by the worker.
const (
	TypeGrant  = "share.grant"
	TypeRevoke = "share.revoke"
)

// Task is one unit of synchronization work addressed at a share item row.
// ID matches the task record persisted with the decision.
type Task struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	TargetURI string `json:"target_uri"`
	ShareURI  string `json:"share_uri"`

	ack func() error
}

// WithAck returns a copy of the task carrying an acknowledgement callback.
// Transports that deliver at-least-once use it to hold redelivery until the
// worker has finished processing.
func (t Task) WithAck(ack func() error) Task {
	t.ack = ack
	return t
}

// Ack acknowledges the task with its transport. Tasks without an
// acknowledgement callback treat Ack as a no-op.
func (t Task) Ack() error {
	if t.ack == nil {
		return nil
	}
	return t.ack()
}

// Queue transports tasks between the request path and the worker with
// at-least-once delivery. Consumers must Ack each task after processing;
// unacked tasks are redelivered, so processing must be idempotent.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	Consume(ctx context.Context) (<-chan Task, error)
	Close() error
}
