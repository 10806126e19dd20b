// This file contains methods for datasets and their catalog tables.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lakefabric/sharegate/pkg/share"
)

// CreateDataset inserts a dataset row and attaches its initial resource
// policies (owner and steward capabilities) in one transaction.
func (s *Store) CreateDataset(d *Dataset, policies []PolicyAttachment) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO datasets (uri, name, environment_uri, aws_account_id, region, admin_group, stewards, owner)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.URI, d.Name, d.EnvironmentURI, d.AwsAccountID, d.Region, d.AdminGroup, d.Stewards, d.Owner,
		)
		if err != nil {
			return fmt.Errorf("failed to create dataset: %w", err)
		}
		for _, p := range policies {
			if err := attachResourcePolicyTx(tx, p.Group, p.ResourceURI, p.ResourceType, p.Permissions); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDataset retrieves a dataset by URI. Returns nil when not found.
func (s *Store) GetDataset(uri string) (*Dataset, error) {
	row := s.db.QueryRow(
		`SELECT uri, name, environment_uri, aws_account_id, region, admin_group, stewards, owner, created_at
		 FROM datasets WHERE uri = ?`,
		uri,
	)

	var d Dataset
	var createdAt int64
	err := row.Scan(&d.URI, &d.Name, &d.EnvironmentURI, &d.AwsAccountID, &d.Region,
		&d.AdminGroup, &d.Stewards, &d.Owner, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	return &d, nil
}

// ListDatasets returns all datasets ordered by name.
func (s *Store) ListDatasets() ([]*Dataset, error) {
	rows, err := s.db.Query(
		`SELECT uri, name, environment_uri, aws_account_id, region, admin_group, stewards, owner, created_at
		 FROM datasets ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*Dataset
	for rows.Next() {
		var d Dataset
		var createdAt int64
		if err := rows.Scan(&d.URI, &d.Name, &d.EnvironmentURI, &d.AwsAccountID, &d.Region,
			&d.AdminGroup, &d.Stewards, &d.Owner, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		datasets = append(datasets, &d)
	}
	return datasets, rows.Err()
}

// AddDatasetTable inserts a catalog table owned by a dataset.
func (s *Store) AddDatasetTable(t *DatasetTable) error {
	_, err := s.db.Exec(
		`INSERT INTO dataset_tables (uri, dataset_uri, name) VALUES (?, ?, ?)`,
		t.URI, t.DatasetURI, t.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to add dataset table: %w", err)
	}
	return nil
}

// ListDatasetTables returns the catalog tables owned by a dataset.
func (s *Store) ListDatasetTables(datasetURI string) ([]*DatasetTable, error) {
	rows, err := s.db.Query(
		`SELECT uri, dataset_uri, name, created_at FROM dataset_tables WHERE dataset_uri = ? ORDER BY name`,
		datasetURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset tables: %w", err)
	}
	defer rows.Close()

	var tables []*DatasetTable
	for rows.Next() {
		var t DatasetTable
		var createdAt int64
		if err := rows.Scan(&t.URI, &t.DatasetURI, &t.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset table: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		tables = append(tables, &t)
	}
	return tables, rows.Err()
}

// GetDatasetTable retrieves one catalog table by URI. Returns nil when not found.
func (s *Store) GetDatasetTable(uri string) (*DatasetTable, error) {
	row := s.db.QueryRow(
		`SELECT uri, dataset_uri, name, created_at FROM dataset_tables WHERE uri = ?`, uri,
	)
	var t DatasetTable
	var createdAt int64
	err := row.Scan(&t.URI, &t.DatasetURI, &t.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset table: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// ListDatasetItemsInStatus returns items of any active share of the dataset
// whose status is in the given set. Used to check for live grants before a
// dataset is deleted.
func (s *Store) ListDatasetItemsInStatus(datasetURI string, statuses ...share.ItemStatus) ([]*ShareObjectItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT si.uri, si.share_uri, si.item_uri, si.item_type, si.item_name, si.status, si.health_status,
	                 si.last_sync_error, si.last_verification_at, si.reapply_attempts, si.created_at
	 FROM share_items si
	 INNER JOIN share_objects so ON si.share_uri = so.uri
	 WHERE so.dataset_uri = ? AND so.deleted_at IS NULL AND si.status IN (` + placeholders(len(statuses)) + `)
	 ORDER BY si.created_at, si.uri`

	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, datasetURI)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset items by status: %w", err)
	}
	defer rows.Close()
	return scanShareItems(rows)
}

// DeleteDatasetCascade removes a dataset and everything hanging off it in
// dependency order: policies on tables, policies on the dataset and its
// shares, share items, shares, tables, then the dataset row. The caller is
// responsible for verifying that no share item remains in a granted state.
// The whole cascade is one transaction.
func (s *Store) DeleteDatasetCascade(datasetURI string) error {
	return s.withTx(func(tx *sql.Tx) error {
		// Policies on catalog tables.
		if _, err := tx.Exec(
			`DELETE FROM resource_policies WHERE resource_uri IN
			 (SELECT uri FROM dataset_tables WHERE dataset_uri = ?)`,
			datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete table policies: %w", err)
		}

		// Policies on shares of this dataset.
		if _, err := tx.Exec(
			`DELETE FROM resource_policies WHERE resource_uri IN
			 (SELECT uri FROM share_objects WHERE dataset_uri = ?)`,
			datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete share policies: %w", err)
		}

		// Policies on the dataset itself.
		if _, err := tx.Exec(
			`DELETE FROM resource_policies WHERE resource_uri = ?`, datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete dataset policies: %w", err)
		}

		// Items before shares: share_items references share_objects with
		// ON DELETE RESTRICT so orphaned items are impossible.
		if _, err := tx.Exec(
			`DELETE FROM share_items WHERE share_uri IN
			 (SELECT uri FROM share_objects WHERE dataset_uri = ?)`,
			datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete share items: %w", err)
		}

		if _, err := tx.Exec(
			`DELETE FROM share_tasks WHERE share_uri IN
			 (SELECT uri FROM share_objects WHERE dataset_uri = ?)`,
			datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete share tasks: %w", err)
		}

		if _, err := tx.Exec(
			`DELETE FROM share_objects WHERE dataset_uri = ?`, datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete shares: %w", err)
		}

		if _, err := tx.Exec(
			`DELETE FROM dataset_tables WHERE dataset_uri = ?`, datasetURI,
		); err != nil {
			return fmt.Errorf("failed to delete dataset tables: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM datasets WHERE uri = ?`, datasetURI)
		if err != nil {
			return fmt.Errorf("failed to delete dataset: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("dataset not found: %s", datasetURI)
		}
		return nil
	})
}
