// Package audit defines structured audit events for the share broker and an
// emitter that fans them out to one or more backends. Audit failures are
// logged, never propagated: recording must not block the operation it records.
package audit

import (
	"log/slog"
)

// EventEmitter accepts structured audit events for recording.
type EventEmitter interface {
	Emit(Event) error
}

// NopEmitter discards all events. Use when no audit backend is configured.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) error { return nil }

// Recorder forwards events to its backends and swallows backend errors.
type Recorder struct {
	backends []EventEmitter
	logger   *slog.Logger
}

// NewRecorder creates a recorder that forwards events to the given backends.
// If logger is nil, slog.Default() is used for error reporting.
func NewRecorder(logger *slog.Logger, backends ...EventEmitter) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		backends: backends,
		logger:   logger,
	}
}

// Record creates an event and writes it to all backends.
func (r *Recorder) Record(et EventType, actor, target string, details map[string]string) {
	ev := NewEvent(et, actor, target, details)
	for _, b := range r.backends {
		if err := b.Emit(ev); err != nil {
			r.logger.Error("audit emit failed", "event", string(et), "error", err)
		}
	}
}
