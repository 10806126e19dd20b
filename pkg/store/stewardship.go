// This file contains the stewardship transfer transaction: reassigning the
// delegated steward group's policies across a dataset, its tables, and all
// open shares, all-or-nothing. The owning group's capabilities are permanent
// and are never detached, even when the owner had been acting as steward.
package store

import (
	"database/sql"
	"fmt"
)

// StewardshipGrants names the permission sets attached to the incoming
// steward at each scope.
type StewardshipGrants struct {
	DatasetPermissions  []string
	TablePermissions    []string
	ApproverPermissions []string
}

// TransferStewardship atomically moves steward policies from the dataset's
// current steward group to newStewards. Transferring to the owning group
// degenerates to removing the old steward's policies: the owner's rights
// already exist and are independent of stewardship.
func (s *Store) TransferStewardship(datasetURI, newStewards string, grants StewardshipGrants) error {
	return s.withTx(func(tx *sql.Tx) error {
		var adminGroup, oldStewards string
		err := tx.QueryRow(
			`SELECT admin_group, stewards FROM datasets WHERE uri = ?`, datasetURI,
		).Scan(&adminGroup, &oldStewards)
		if err == sql.ErrNoRows {
			return fmt.Errorf("dataset not found: %s", datasetURI)
		}
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}

		toOwners := newStewards == adminGroup

		// Dataset scope.
		if oldStewards != adminGroup {
			if err := detachResourcePolicyTx(tx, oldStewards, datasetURI, nil); err != nil {
				return err
			}
		}
		if !toOwners {
			if err := attachResourcePolicyTx(tx, newStewards, datasetURI, "Dataset", grants.DatasetPermissions); err != nil {
				return err
			}
		}

		// Catalog table scope.
		tableRows, err := tx.Query(`SELECT uri FROM dataset_tables WHERE dataset_uri = ?`, datasetURI)
		if err != nil {
			return fmt.Errorf("failed to list dataset tables: %w", err)
		}
		var tableURIs []string
		for tableRows.Next() {
			var uri string
			if err := tableRows.Scan(&uri); err != nil {
				tableRows.Close()
				return fmt.Errorf("failed to scan table: %w", err)
			}
			tableURIs = append(tableURIs, uri)
		}
		if err := tableRows.Err(); err != nil {
			tableRows.Close()
			return err
		}
		tableRows.Close()

		for _, tableURI := range tableURIs {
			if oldStewards != adminGroup {
				if err := detachResourcePolicyTx(tx, oldStewards, tableURI, nil); err != nil {
					return err
				}
			}
			if !toOwners {
				if err := attachResourcePolicyTx(tx, newStewards, tableURI, "DatasetTable", grants.TablePermissions); err != nil {
					return err
				}
			}
		}

		if s.transferHook != nil {
			if err := s.transferHook("tables"); err != nil {
				return err
			}
		}

		// Open share scope.
		shareRows, err := tx.Query(
			`SELECT uri FROM share_objects WHERE dataset_uri = ? AND deleted_at IS NULL`, datasetURI,
		)
		if err != nil {
			return fmt.Errorf("failed to list dataset shares: %w", err)
		}
		var shareURIs []string
		for shareRows.Next() {
			var uri string
			if err := shareRows.Scan(&uri); err != nil {
				shareRows.Close()
				return fmt.Errorf("failed to scan share: %w", err)
			}
			shareURIs = append(shareURIs, uri)
		}
		if err := shareRows.Err(); err != nil {
			shareRows.Close()
			return err
		}
		shareRows.Close()

		for _, shareURI := range shareURIs {
			if !toOwners {
				if err := attachResourcePolicyTx(tx, newStewards, shareURI, "ShareObject", grants.ApproverPermissions); err != nil {
					return err
				}
			}
			if oldStewards != adminGroup {
				if err := detachResourcePolicyTx(tx, oldStewards, shareURI, nil); err != nil {
					return err
				}
			}
		}

		if _, err := tx.Exec(
			`UPDATE datasets SET stewards = ? WHERE uri = ?`, newStewards, datasetURI,
		); err != nil {
			return fmt.Errorf("failed to update dataset stewards: %w", err)
		}
		return nil
	})
}
