// This file contains methods for share objects. Status writes use
// compare-and-swap updates (UPDATE ... WHERE status = ?) so concurrent
// transitions serialize instead of losing updates.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lakefabric/sharegate/pkg/share"
)

// PolicyAttachment describes one policy to attach alongside a share mutation.
type PolicyAttachment struct {
	Group        string
	ResourceURI  string
	ResourceType string
	Permissions  []string
}

// CreateShareObject inserts a share and attaches its initial resource
// policies (requester and approver capabilities) in one transaction.
func (s *Store) CreateShareObject(so *ShareObject, policies []PolicyAttachment) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO share_objects (uri, dataset_uri, environment_uri, group_uri, principal_id, principal_type, owner, status, request_purpose)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			so.URI, so.DatasetURI, so.EnvironmentURI, so.GroupURI, so.PrincipalID,
			string(so.PrincipalType), so.Owner, string(so.Status), so.RequestPurpose,
		)
		if err != nil {
			return fmt.Errorf("failed to create share object: %w", err)
		}
		for _, p := range policies {
			if err := attachResourcePolicyTx(tx, p.Group, p.ResourceURI, p.ResourceType, p.Permissions); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetShareObject retrieves a share by URI. Soft-deleted shares are not
// returned. Returns nil when not found.
func (s *Store) GetShareObject(uri string) (*ShareObject, error) {
	row := s.db.QueryRow(
		`SELECT uri, dataset_uri, environment_uri, group_uri, principal_id, principal_type, owner,
		        status, request_purpose, reject_purpose, created_at, updated_at, deleted_at
		 FROM share_objects WHERE uri = ? AND deleted_at IS NULL`,
		uri,
	)
	return scanShareObject(row)
}

// FindOpenShare returns the active share for (dataset, principal), or nil.
// A share counts as open until it is soft-deleted; this is what prevents a
// second ShareObject from being created for the same pair.
func (s *Store) FindOpenShare(datasetURI, principalID string) (*ShareObject, error) {
	row := s.db.QueryRow(
		`SELECT uri, dataset_uri, environment_uri, group_uri, principal_id, principal_type, owner,
		        status, request_purpose, reject_purpose, created_at, updated_at, deleted_at
		 FROM share_objects WHERE dataset_uri = ? AND principal_id = ? AND deleted_at IS NULL`,
		datasetURI, principalID,
	)
	so, err := scanShareObject(row)
	if err != nil {
		return nil, err
	}
	return so, nil
}

// UpdateShareStatus moves a share from one status to another atomically.
// Returns false if the share was not in the expected status, so a lost race
// surfaces as a state error instead of a silent overwrite.
func (s *Store) UpdateShareStatus(uri string, from, to share.Status) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE share_objects SET status = ?, updated_at = strftime('%s', 'now')
		 WHERE uri = ? AND status = ? AND deleted_at IS NULL`,
		string(to), uri, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update share status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rows > 0, nil
}

// UpdateRequestPurpose sets the requester's stated purpose.
func (s *Store) UpdateRequestPurpose(uri, purpose string) error {
	result, err := s.db.Exec(
		`UPDATE share_objects SET request_purpose = ?, updated_at = strftime('%s', 'now')
		 WHERE uri = ? AND deleted_at IS NULL`,
		purpose, uri,
	)
	if err != nil {
		return fmt.Errorf("failed to update request purpose: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("share object not found: %s", uri)
	}
	return nil
}

// UpdateRejectPurpose sets the approver's rejection reason.
func (s *Store) UpdateRejectPurpose(uri, purpose string) error {
	result, err := s.db.Exec(
		`UPDATE share_objects SET reject_purpose = ?, updated_at = strftime('%s', 'now')
		 WHERE uri = ? AND deleted_at IS NULL`,
		purpose, uri,
	)
	if err != nil {
		return fmt.Errorf("failed to update reject purpose: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("share object not found: %s", uri)
	}
	return nil
}

// SoftDeleteShare marks a share Deleted and detaches every policy attached
// to it, in one transaction. Item rows must already be gone; the schema's
// RESTRICT reference makes violations fail loudly.
func (s *Store) SoftDeleteShare(uri string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM resource_policies WHERE resource_uri = ?`, uri); err != nil {
			return fmt.Errorf("failed to detach share policies: %w", err)
		}
		result, err := tx.Exec(
			`UPDATE share_objects SET status = ?, deleted_at = strftime('%s', 'now'), updated_at = strftime('%s', 'now')
			 WHERE uri = ? AND deleted_at IS NULL`,
			string(share.StatusDeleted), uri,
		)
		if err != nil {
			return fmt.Errorf("failed to soft-delete share: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("share object not found: %s", uri)
		}
		return nil
	})
}

// ListSharesByDataset returns all active shares referencing a dataset.
func (s *Store) ListSharesByDataset(datasetURI string) ([]*ShareObject, error) {
	rows, err := s.db.Query(
		`SELECT uri, dataset_uri, environment_uri, group_uri, principal_id, principal_type, owner,
		        status, request_purpose, reject_purpose, created_at, updated_at, deleted_at
		 FROM share_objects WHERE dataset_uri = ? AND deleted_at IS NULL ORDER BY created_at`,
		datasetURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()
	return scanShareObjects(rows)
}

// ListSharesInbox returns shares on datasets owned or stewarded by any of
// the given groups: the shares the caller is asked to approve.
func (s *Store) ListSharesInbox(groups []string) ([]*ShareObject, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	ph := placeholders(len(groups))
	query := `SELECT so.uri, so.dataset_uri, so.environment_uri, so.group_uri, so.principal_id, so.principal_type, so.owner,
	                 so.status, so.request_purpose, so.reject_purpose, so.created_at, so.updated_at, so.deleted_at
	 FROM share_objects so
	 INNER JOIN datasets d ON so.dataset_uri = d.uri
	 WHERE so.deleted_at IS NULL AND (d.admin_group IN (` + ph + `) OR d.stewards IN (` + ph + `))
	 ORDER BY so.created_at DESC`

	args := make([]interface{}, 0, 2*len(groups))
	for _, g := range groups {
		args = append(args, g)
	}
	for _, g := range groups {
		args = append(args, g)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox shares: %w", err)
	}
	defer rows.Close()
	return scanShareObjects(rows)
}

// ListSharesOutbox returns shares requested by the user or any of their
// groups: the requests the caller has sent.
func (s *Store) ListSharesOutbox(username string, groups []string) ([]*ShareObject, error) {
	ph := placeholders(len(groups))
	query := `SELECT uri, dataset_uri, environment_uri, group_uri, principal_id, principal_type, owner,
	                 status, request_purpose, reject_purpose, created_at, updated_at, deleted_at
	 FROM share_objects WHERE deleted_at IS NULL AND (owner = ?`
	args := []interface{}{username}
	if len(groups) > 0 {
		query += ` OR group_uri IN (` + ph + `)`
		for _, g := range groups {
			args = append(args, g)
		}
	}
	query += `) ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox shares: %w", err)
	}
	defer rows.Close()
	return scanShareObjects(rows)
}

// ShareStatistics counts a share's items by lifecycle bucket.
type ShareStatistics struct {
	TotalItems int
	Pending    int
	Shared     int
	Failed     int
	Revoked    int
}

// GetShareStatistics aggregates item counts for a share.
func (s *Store) GetShareStatistics(shareURI string) (*ShareStatistics, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM share_items WHERE share_uri = ? GROUP BY status`, shareURI)
	if err != nil {
		return nil, fmt.Errorf("failed to get share statistics: %w", err)
	}
	defer rows.Close()

	stats := &ShareStatistics{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan share statistics: %w", err)
		}
		stats.TotalItems += count
		switch share.ItemStatus(status) {
		case share.ItemPendingApproval, share.ItemShareApproved, share.ItemPendingApproveRevoke, share.ItemRevokeApproved:
			stats.Pending += count
		case share.ItemShared:
			stats.Shared += count
		case share.ItemShareFailed, share.ItemRevokeFailed:
			stats.Failed += count
		case share.ItemRevoked:
			stats.Revoked += count
		}
	}
	return stats, rows.Err()
}

// ----- Helper methods -----

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShareObjectFrom(row rowScanner) (*ShareObject, error) {
	var so ShareObject
	var principalType, status string
	var createdAt, updatedAt int64
	var deletedAt sql.NullInt64

	err := row.Scan(&so.URI, &so.DatasetURI, &so.EnvironmentURI, &so.GroupURI, &so.PrincipalID,
		&principalType, &so.Owner, &status, &so.RequestPurpose, &so.RejectPurpose,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	so.PrincipalType = share.PrincipalType(principalType)
	so.Status = share.Status(status)
	so.CreatedAt = time.Unix(createdAt, 0)
	so.UpdatedAt = time.Unix(updatedAt, 0)
	so.DeletedAt = nullableTime(deletedAt)
	return &so, nil
}

func scanShareObject(row *sql.Row) (*ShareObject, error) {
	so, err := scanShareObjectFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share object: %w", err)
	}
	return so, nil
}

func scanShareObjects(rows *sql.Rows) ([]*ShareObject, error) {
	var shares []*ShareObject
	for rows.Next() {
		so, err := scanShareObjectFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share object: %w", err)
		}
		shares = append(shares, so)
	}
	return shares, rows.Err()
}
