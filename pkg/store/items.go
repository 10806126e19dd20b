// This file contains methods for share object items.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lakefabric/sharegate/pkg/share"
)

// AddShareItem inserts an item into a share.
func (s *Store) AddShareItem(it *ShareObjectItem) error {
	_, err := s.db.Exec(
		`INSERT INTO share_items (uri, share_uri, item_uri, item_type, item_name, status, health_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.URI, it.ShareURI, it.ItemURI, it.ItemType, it.ItemName, string(it.Status), string(it.HealthStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to add share item: %w", err)
	}
	return nil
}

// GetShareItem retrieves an item row by its URI. Returns nil when not found.
func (s *Store) GetShareItem(uri string) (*ShareObjectItem, error) {
	row := s.db.QueryRow(
		`SELECT uri, share_uri, item_uri, item_type, item_name, status, health_status,
		        last_sync_error, last_verification_at, reapply_attempts, created_at
		 FROM share_items WHERE uri = ?`,
		uri,
	)
	it, err := scanShareItemFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share item: %w", err)
	}
	return it, nil
}

// FindShareItem retrieves the item row for a catalog object within a share.
// Returns nil when the object is not part of the share.
func (s *Store) FindShareItem(shareURI, itemURI string) (*ShareObjectItem, error) {
	row := s.db.QueryRow(
		`SELECT uri, share_uri, item_uri, item_type, item_name, status, health_status,
		        last_sync_error, last_verification_at, reapply_attempts, created_at
		 FROM share_items WHERE share_uri = ? AND item_uri = ?`,
		shareURI, itemURI,
	)
	it, err := scanShareItemFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share item: %w", err)
	}
	return it, nil
}

// ListShareItems returns every item of a share ordered by creation.
func (s *Store) ListShareItems(shareURI string) ([]*ShareObjectItem, error) {
	rows, err := s.db.Query(
		`SELECT uri, share_uri, item_uri, item_type, item_name, status, health_status,
		        last_sync_error, last_verification_at, reapply_attempts, created_at
		 FROM share_items WHERE share_uri = ? ORDER BY created_at, uri`,
		shareURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list share items: %w", err)
	}
	defer rows.Close()
	return scanShareItems(rows)
}

// ListShareItemsInStatus returns the items of a share in any of the given
// statuses.
func (s *Store) ListShareItemsInStatus(shareURI string, statuses ...share.ItemStatus) ([]*ShareObjectItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT uri, share_uri, item_uri, item_type, item_name, status, health_status,
	                 last_sync_error, last_verification_at, reapply_attempts, created_at
	 FROM share_items WHERE share_uri = ? AND status IN (` + placeholders(len(statuses)) + `) ORDER BY created_at, uri`

	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, shareURI)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list share items by status: %w", err)
	}
	defer rows.Close()
	return scanShareItems(rows)
}

// CountItemsInStatus counts a share's items in any of the given statuses.
func (s *Store) CountItemsInStatus(shareURI string, statuses ...share.ItemStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM share_items WHERE share_uri = ? AND status IN (` + placeholders(len(statuses)) + `)`
	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, shareURI)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count share items: %w", err)
	}
	return count, nil
}

// CountItems counts every item of a share.
func (s *Store) CountItems(shareURI string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM share_items WHERE share_uri = ?`, shareURI).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count share items: %w", err)
	}
	return count, nil
}

// UpdateItemStatus moves an item from one status to another atomically.
// Returns false if the item was not in the expected status.
func (s *Store) UpdateItemStatus(uri string, from, to share.ItemStatus) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE share_items SET status = ? WHERE uri = ? AND status = ?`,
		string(to), uri, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update item status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rows > 0, nil
}

// RemoveShareItem deletes an item row if its status is one of the allowed
// removable statuses. Returns false if the row was missing or in another
// status.
func (s *Store) RemoveShareItem(uri string, removable ...share.ItemStatus) (bool, error) {
	if len(removable) == 0 {
		return false, nil
	}
	query := `DELETE FROM share_items WHERE uri = ? AND status IN (` + placeholders(len(removable)) + `)`
	args := make([]interface{}, 0, len(removable)+1)
	args = append(args, uri)
	for _, st := range removable {
		args = append(args, string(st))
	}
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to remove share item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rows > 0, nil
}

// UpdateItemHealth records the outcome of a drift verification.
func (s *Store) UpdateItemHealth(uri string, health share.HealthStatus, verifiedAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE share_items SET health_status = ?, last_verification_at = ? WHERE uri = ?`,
		string(health), verifiedAt.Unix(), uri,
	)
	if err != nil {
		return fmt.Errorf("failed to update item health: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("share item not found: %s", uri)
	}
	return nil
}

// ----- Helper methods -----

func scanShareItemFrom(row rowScanner) (*ShareObjectItem, error) {
	var it ShareObjectItem
	var status, health string
	var syncErr sql.NullString
	var verifiedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&it.URI, &it.ShareURI, &it.ItemURI, &it.ItemType, &it.ItemName,
		&status, &health, &syncErr, &verifiedAt, &it.ReapplyAttempts, &createdAt)
	if err != nil {
		return nil, err
	}
	it.Status = share.ItemStatus(status)
	it.HealthStatus = share.HealthStatus(health)
	it.LastSyncError = nullableString(syncErr)
	it.LastVerificationAt = nullableTime(verifiedAt)
	it.CreatedAt = time.Unix(createdAt, 0)
	return &it, nil
}

func scanShareItems(rows *sql.Rows) ([]*ShareObjectItem, error) {
	var items []*ShareObjectItem
	for rows.Next() {
		it, err := scanShareItemFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
