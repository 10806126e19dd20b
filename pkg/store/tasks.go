// This file contains methods for synchronization task records.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetTaskRecord retrieves a task record by ID. Returns nil when not found.
func (s *Store) GetTaskRecord(id string) (*TaskRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, task_type, target_uri, share_uri, payload, status, error, created_at, completed_at
		 FROM share_tasks WHERE id = ?`,
		id,
	)
	t, err := scanTaskRecordFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task record: %w", err)
	}
	return t, nil
}

// ListTasksByShare returns every task recorded against a share.
func (s *Store) ListTasksByShare(shareURI string) ([]*TaskRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, task_type, target_uri, share_uri, payload, status, error, created_at, completed_at
		 FROM share_tasks WHERE share_uri = ? ORDER BY created_at, id`,
		shareURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRecords(rows)
}

// ListTasksByTarget returns every task recorded against one item row.
func (s *Store) ListTasksByTarget(targetURI string) ([]*TaskRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, task_type, target_uri, share_uri, payload, status, error, created_at, completed_at
		 FROM share_tasks WHERE target_uri = ? ORDER BY created_at, id`,
		targetURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRecords(rows)
}

// ----- Helper methods -----

func scanTaskRecordFrom(row rowScanner) (*TaskRecord, error) {
	var t TaskRecord
	var taskErr sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	err := row.Scan(&t.ID, &t.TaskType, &t.TargetURI, &t.ShareURI, &t.Payload,
		&t.Status, &taskErr, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Error = nullableString(taskErr)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.CompletedAt = nullableTime(completedAt)
	return &t, nil
}

func scanTaskRecords(rows *sql.Rows) ([]*TaskRecord, error) {
	var tasks []*TaskRecord
	for rows.Next() {
		t, err := scanTaskRecordFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
