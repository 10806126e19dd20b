// This file contains the composite lifecycle transactions: share submission,
// approval, rejection, item revocation, and reapply. Each runs as a single
// transaction over share_objects + share_items + share_tasks so a decision
// and its bookkeeping commit or roll back together.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lakefabric/sharegate/pkg/share"
)

// Store-level sentinel errors the broker maps onto its domain taxonomy.
var (
	// ErrNoSubmittableItems is returned by SubmitShare when the share has no
	// items awaiting approval.
	ErrNoSubmittableItems = errors.New("share has no items in a submittable state")

	// ErrStaleStatus is returned when a compare-and-swap status update found
	// the row in a different state than expected (a concurrent transition won).
	ErrStaleStatus = errors.New("share or item status changed concurrently")
)

// ItemNotEligibleError reports an item that blocked an all-or-nothing bulk
// operation, naming the offender so callers can surface it.
type ItemNotEligibleError struct {
	ItemURI string
	Status  share.ItemStatus
}

func (e *ItemNotEligibleError) Error() string {
	return fmt.Sprintf("item %s is not eligible in status %s", e.ItemURI, e.Status)
}

// ItemsBlockDeletionError reports items whose grant state blocks deleting a
// share or dataset; they must be revoked first.
type ItemsBlockDeletionError struct {
	ItemURIs []string
}

func (e *ItemsBlockDeletionError) Error() string {
	return fmt.Sprintf("%d item(s) hold or await grants and block deletion", len(e.ItemURIs))
}

// SubmitShare moves a share from Draft or Rejected to PendingApproval,
// verifying inside the same transaction that at least one item awaits
// approval.
func (s *Store) SubmitShare(shareURI string, from share.Status) error {
	return s.withTx(func(tx *sql.Tx) error {
		var submittable int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM share_items WHERE share_uri = ? AND status = ?`,
			shareURI, string(share.ItemPendingApproval),
		).Scan(&submittable)
		if err != nil {
			return fmt.Errorf("failed to count submittable items: %w", err)
		}
		if submittable == 0 {
			return ErrNoSubmittableItems
		}

		result, err := tx.Exec(
			`UPDATE share_objects SET status = ?, updated_at = strftime('%s', 'now')
			 WHERE uri = ? AND status = ? AND deleted_at IS NULL`,
			string(share.StatusPendingApproval), shareURI, string(from),
		)
		if err != nil {
			return fmt.Errorf("failed to submit share: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrStaleStatus
		}
		return nil
	})
}

// ApproveShare moves a share from PendingApproval to Approved, marks every
// pending item ShareApproved, and records one grant task per item. The
// returned task records are what the caller publishes to the queue after the
// transaction commits.
func (s *Store) ApproveShare(shareURI, grantTaskType string) ([]*TaskRecord, error) {
	var tasks []*TaskRecord
	err := s.withTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE share_objects SET status = ?, updated_at = strftime('%s', 'now')
			 WHERE uri = ? AND status = ? AND deleted_at IS NULL`,
			string(share.StatusApproved), shareURI, string(share.StatusPendingApproval),
		)
		if err != nil {
			return fmt.Errorf("failed to approve share: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrStaleStatus
		}

		itemRows, err := tx.Query(
			`SELECT uri FROM share_items WHERE share_uri = ? AND status = ? ORDER BY created_at, uri`,
			shareURI, string(share.ItemPendingApproval),
		)
		if err != nil {
			return fmt.Errorf("failed to list pending items: %w", err)
		}
		var itemURIs []string
		for itemRows.Next() {
			var uri string
			if err := itemRows.Scan(&uri); err != nil {
				itemRows.Close()
				return fmt.Errorf("failed to scan item: %w", err)
			}
			itemURIs = append(itemURIs, uri)
		}
		if err := itemRows.Err(); err != nil {
			itemRows.Close()
			return err
		}
		itemRows.Close()

		for _, itemURI := range itemURIs {
			if _, err := tx.Exec(
				`UPDATE share_items SET status = ? WHERE uri = ? AND status = ?`,
				string(share.ItemShareApproved), itemURI, string(share.ItemPendingApproval),
			); err != nil {
				return fmt.Errorf("failed to mark item approved: %w", err)
			}
			task, err := createTaskTx(tx, grantTaskType, itemURI, shareURI)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// RejectShare moves a share from PendingApproval to Rejected, records the
// rejection reason, and marks pending items ShareRejected. No external
// synchronization is involved.
func (s *Store) RejectShare(shareURI, rejectPurpose string) error {
	return s.withTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE share_objects SET status = ?, reject_purpose = ?, updated_at = strftime('%s', 'now')
			 WHERE uri = ? AND status = ? AND deleted_at IS NULL`,
			string(share.StatusRejected), rejectPurpose, shareURI, string(share.StatusPendingApproval),
		)
		if err != nil {
			return fmt.Errorf("failed to reject share: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrStaleStatus
		}

		if _, err := tx.Exec(
			`UPDATE share_items SET status = ? WHERE share_uri = ? AND status = ?`,
			string(share.ItemShareRejected), shareURI, string(share.ItemPendingApproval),
		); err != nil {
			return fmt.Errorf("failed to mark items rejected: %w", err)
		}
		return nil
	})
}

// RevokeItems moves each named item from Shared to PendingApproveRevoke and
// records one revoke task per item, all-or-nothing: any ineligible item
// rolls the whole request back. When no Shared items remain afterwards the
// share row moves from Processed to PendingApproveRevoke; partial revokes
// leave the share in Processed.
func (s *Store) RevokeItems(shareURI string, itemURIs []string, revokeTaskType string) ([]*TaskRecord, error) {
	var tasks []*TaskRecord
	err := s.withTx(func(tx *sql.Tx) error {
		for _, itemURI := range itemURIs {
			result, err := tx.Exec(
				`UPDATE share_items SET status = ? WHERE uri = ? AND share_uri = ? AND status = ?`,
				string(share.ItemPendingApproveRevoke), itemURI, shareURI, string(share.ItemShared),
			)
			if err != nil {
				return fmt.Errorf("failed to mark item for revoke: %w", err)
			}
			rows, _ := result.RowsAffected()
			if rows == 0 {
				var status sql.NullString
				_ = tx.QueryRow(`SELECT status FROM share_items WHERE uri = ? AND share_uri = ?`, itemURI, shareURI).Scan(&status)
				return &ItemNotEligibleError{ItemURI: itemURI, Status: share.ItemStatus(status.String)}
			}
			task, err := createTaskTx(tx, revokeTaskType, itemURI, shareURI)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}

		var stillShared int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM share_items WHERE share_uri = ? AND status = ?`,
			shareURI, string(share.ItemShared),
		).Scan(&stillShared); err != nil {
			return fmt.Errorf("failed to count shared items: %w", err)
		}
		if stillShared == 0 {
			if _, err := tx.Exec(
				`UPDATE share_objects SET status = ?, updated_at = strftime('%s', 'now')
				 WHERE uri = ? AND status = ? AND deleted_at IS NULL`,
				string(share.StatusPendingApproveRevoke), shareURI, string(share.StatusProcessed),
			); err != nil {
				return fmt.Errorf("failed to mark share revoking: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// DeleteShare removes a share's remaining item rows, detaches every policy
// attached to the share, and marks the share Deleted, all in one transaction.
// Any item in one of the blocking statuses aborts the whole operation with an
// ItemsBlockDeletionError naming the offenders.
func (s *Store) DeleteShare(shareURI string, blocking []share.ItemStatus) error {
	return s.withTx(func(tx *sql.Tx) error {
		if len(blocking) > 0 {
			query := `SELECT uri FROM share_items WHERE share_uri = ? AND status IN (` +
				placeholders(len(blocking)) + `) ORDER BY uri`
			args := make([]interface{}, 0, len(blocking)+1)
			args = append(args, shareURI)
			for _, st := range blocking {
				args = append(args, string(st))
			}
			rows, err := tx.Query(query, args...)
			if err != nil {
				return fmt.Errorf("failed to list blocking items: %w", err)
			}
			var blockers []string
			for rows.Next() {
				var uri string
				if err := rows.Scan(&uri); err != nil {
					rows.Close()
					return fmt.Errorf("failed to scan blocking item: %w", err)
				}
				blockers = append(blockers, uri)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()
			if len(blockers) > 0 {
				return &ItemsBlockDeletionError{ItemURIs: blockers}
			}
		}

		if _, err := tx.Exec(`DELETE FROM share_items WHERE share_uri = ?`, shareURI); err != nil {
			return fmt.Errorf("failed to delete share items: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM resource_policies WHERE resource_uri = ?`, shareURI); err != nil {
			return fmt.Errorf("failed to detach share policies: %w", err)
		}

		result, err := tx.Exec(
			`UPDATE share_objects SET status = ?, deleted_at = strftime('%s', 'now'), updated_at = strftime('%s', 'now')
			 WHERE uri = ? AND deleted_at IS NULL`,
			string(share.StatusDeleted), shareURI,
		)
		if err != nil {
			return fmt.Errorf("failed to soft-delete share: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("share object not found: %s", shareURI)
		}
		return nil
	})
}

// ReapplyResult reports what a reapply request did per item.
type ReapplyResult struct {
	Tasks   []*TaskRecord // re-enqueued synchronization work
	Flagged []string      // items past the attempt limit, left for manual review
}

// ReapplyItems re-issues synchronization for items in a failed state only.
// Items already Shared or Revoked are rejected, not skipped, so callers
// cannot accidentally re-run settled grants. Items that have exhausted
// maxAttempts are flagged Unhealthy for manual review instead of being
// re-enqueued.
func (s *Store) ReapplyItems(shareURI string, itemURIs []string, grantTaskType, revokeTaskType string, maxAttempts int) (*ReapplyResult, error) {
	res := &ReapplyResult{}
	err := s.withTx(func(tx *sql.Tx) error {
		for _, itemURI := range itemURIs {
			var status string
			var attempts int
			err := tx.QueryRow(
				`SELECT status, reapply_attempts FROM share_items WHERE uri = ? AND share_uri = ?`,
				itemURI, shareURI,
			).Scan(&status, &attempts)
			if err == sql.ErrNoRows {
				return &ItemNotEligibleError{ItemURI: itemURI}
			}
			if err != nil {
				return fmt.Errorf("failed to read item: %w", err)
			}

			itemStatus := share.ItemStatus(status)
			if !share.IsItemFailed(itemStatus) {
				return &ItemNotEligibleError{ItemURI: itemURI, Status: itemStatus}
			}

			if attempts >= maxAttempts {
				if _, err := tx.Exec(
					`UPDATE share_items SET health_status = ? WHERE uri = ?`,
					string(share.HealthUnhealthy), itemURI,
				); err != nil {
					return fmt.Errorf("failed to flag item for review: %w", err)
				}
				res.Flagged = append(res.Flagged, itemURI)
				continue
			}

			var next share.ItemStatus
			var taskType string
			if itemStatus == share.ItemShareFailed {
				next = share.ItemShareApproved
				taskType = grantTaskType
			} else {
				next = share.ItemPendingApproveRevoke
				taskType = revokeTaskType
			}

			if _, err := tx.Exec(
				`UPDATE share_items SET status = ?, reapply_attempts = reapply_attempts + 1, last_sync_error = NULL WHERE uri = ?`,
				string(next), itemURI,
			); err != nil {
				return fmt.Errorf("failed to reset item for reapply: %w", err)
			}
			task, err := createTaskTx(tx, taskType, itemURI, shareURI)
			if err != nil {
				return err
			}
			res.Tasks = append(res.Tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CompleteItemSync records a synchronization outcome for an item: the status
// transition, the sync error if any, the item's health, and the task record
// closure, in one transaction. Returns ErrStaleStatus when the item left the
// expected state in the meantime.
func (s *Store) CompleteItemSync(itemURI string, from, to share.ItemStatus, syncErr *string, taskID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		health := share.HealthHealthy
		if syncErr != nil {
			health = share.HealthUnhealthy
		}
		result, err := tx.Exec(
			`UPDATE share_items SET status = ?, last_sync_error = ?, health_status = ? WHERE uri = ? AND status = ?`,
			string(to), syncErr, string(health), itemURI, string(from),
		)
		if err != nil {
			return fmt.Errorf("failed to record sync outcome: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrStaleStatus
		}

		taskStatus := "completed"
		if syncErr != nil {
			taskStatus = "failed"
		}
		if _, err := tx.Exec(
			`UPDATE share_tasks SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
			taskStatus, syncErr, time.Now().Unix(), taskID,
		); err != nil {
			return fmt.Errorf("failed to close task record: %w", err)
		}
		return nil
	})
}

// RefreshShareStatus re-derives the share-level status from its items after
// a synchronization outcome: Approved shares become Processed once every
// item has settled, and revoking shares become Revoked once no item remains
// outside Revoked. Returns the share's (possibly unchanged) status.
func (s *Store) RefreshShareStatus(shareURI string) (share.Status, error) {
	var final share.Status
	err := s.withTx(func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRow(
			`SELECT status FROM share_objects WHERE uri = ? AND deleted_at IS NULL`, shareURI,
		).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("share object not found: %s", shareURI)
		}
		if err != nil {
			return fmt.Errorf("failed to read share status: %w", err)
		}
		current := share.Status(status)
		final = current

		var inFlight, notRevoked, total int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM share_items WHERE share_uri = ? AND status IN (?, ?, ?, ?)`,
			shareURI,
			string(share.ItemPendingApproval), string(share.ItemShareApproved),
			string(share.ItemPendingApproveRevoke), string(share.ItemRevokeApproved),
		).Scan(&inFlight); err != nil {
			return fmt.Errorf("failed to count in-flight items: %w", err)
		}
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM share_items WHERE share_uri = ? AND status != ?`,
			shareURI, string(share.ItemRevoked),
		).Scan(&notRevoked); err != nil {
			return fmt.Errorf("failed to count unrevoked items: %w", err)
		}
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM share_items WHERE share_uri = ?`, shareURI,
		).Scan(&total); err != nil {
			return fmt.Errorf("failed to count items: %w", err)
		}

		var next share.Status
		switch {
		case current == share.StatusApproved && inFlight == 0:
			next = share.StatusProcessed
		case current == share.StatusPendingApproveRevoke && total > 0 && notRevoked == 0:
			next = share.StatusRevoked
		case current == share.StatusProcessed && total > 0 && notRevoked == 0:
			next = share.StatusRevoked
		case current == share.StatusPendingApproveRevoke && inFlight == 0 && notRevoked > 0:
			// Revocation settled but some items failed or stayed granted.
			next = share.StatusProcessed
		default:
			return nil
		}

		if _, err := tx.Exec(
			`UPDATE share_objects SET status = ?, updated_at = strftime('%s', 'now')
			 WHERE uri = ? AND status = ? AND deleted_at IS NULL`,
			string(next), shareURI, string(current),
		); err != nil {
			return fmt.Errorf("failed to refresh share status: %w", err)
		}
		final = next
		return nil
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

func createTaskTx(tx *sql.Tx, taskType, targetURI, shareURI string) (*TaskRecord, error) {
	task := &TaskRecord{
		ID:        "tsk_" + uuid.NewString(),
		TaskType:  taskType,
		TargetURI: targetURI,
		ShareURI:  shareURI,
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	if _, err := tx.Exec(
		`INSERT INTO share_tasks (id, task_type, target_uri, share_uri, status) VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.TaskType, task.TargetURI, task.ShareURI, task.Status,
	); err != nil {
		return nil, fmt.Errorf("failed to record task: %w", err)
	}
	return task, nil
}
