// This file contains methods for the persisted audit log and the
// audit.EventEmitter backend that writes to it.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lakefabric/sharegate/pkg/audit"
)

// AppendAudit persists one audit record.
func (s *Store) AppendAudit(rec *AuditRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (timestamp, event_type, severity, actor, target, details) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Unix(), rec.EventType, rec.Severity, rec.Actor, rec.Target, rec.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit records, newest first.
func (s *Store) ListAudit(limit int) ([]*AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, timestamp, event_type, severity, actor, target, details
		 FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &ts, &rec.EventType, &rec.Severity, &rec.Actor, &rec.Target, &rec.Details); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Timestamp = time.Unix(ts, 0)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// AuditBackend adapts the store into an audit.EventEmitter backend.
type AuditBackend struct {
	store *Store
}

// NewAuditBackend returns an EventEmitter backend writing to the audit_log
// table.
func NewAuditBackend(s *Store) *AuditBackend {
	return &AuditBackend{store: s}
}

// Emit persists the event. Details are serialized as JSON.
func (b *AuditBackend) Emit(ev audit.Event) error {
	details := ""
	if len(ev.Details) > 0 {
		raw, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = string(raw)
	}
	return b.store.AppendAudit(&AuditRecord{
		Timestamp: ev.Timestamp,
		EventType: string(ev.Type),
		Severity:  ev.Severity.String(),
		Actor:     ev.Actor,
		Target:    ev.Target,
		Details:   details,
	})
}
