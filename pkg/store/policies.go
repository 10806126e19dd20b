// This file contains methods for the resource policy ledger: one row per
// (group, resource) pair, permissions union-merged into it. Unexported Tx
// variants compose into larger units of work (share creation, stewardship
// transfer, cascade deletes).
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttachResourcePolicy union-merges permissions into the policy row for
// (group, resourceURI), creating the row if absent. Attaching the same
// permissions twice is a no-op after the first call.
func (s *Store) AttachResourcePolicy(group, resourceURI, resourceType string, permissions []string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return attachResourcePolicyTx(tx, group, resourceURI, resourceType, permissions)
	})
}

// DetachResourcePolicy removes the named permissions for (group, resourceURI).
// A nil permissions slice removes the whole row. Detaching a policy that does
// not exist is a no-op, not an error.
func (s *Store) DetachResourcePolicy(group, resourceURI string, permissions []string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return detachResourcePolicyTx(tx, group, resourceURI, permissions)
	})
}

// CheckResourcePermission reports whether any group in the caller's group set
// holds the permission on the resource.
func (s *Store) CheckResourcePermission(groups []string, resourceURI, permission string) (bool, error) {
	if len(groups) == 0 {
		return false, nil
	}

	query := `SELECT COUNT(*) FROM resource_policies p
	 INNER JOIN resource_policy_permissions pp ON p.id = pp.policy_id
	 WHERE p.resource_uri = ? AND pp.permission = ? AND p.group_name IN (` + placeholders(len(groups)) + `)`

	args := make([]interface{}, 0, len(groups)+2)
	args = append(args, resourceURI, permission)
	for _, g := range groups {
		args = append(args, g)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check resource permission: %w", err)
	}
	return count > 0, nil
}

// GetResourcePolicy retrieves the policy row for (group, resourceURI) with
// its permission set. Returns sql.ErrNoRows wrapped if none exists.
func (s *Store) GetResourcePolicy(group, resourceURI string) (*ResourcePolicy, error) {
	row := s.db.QueryRow(
		`SELECT id, group_name, resource_uri, resource_type, created_at
		 FROM resource_policies WHERE group_name = ? AND resource_uri = ?`,
		group, resourceURI,
	)

	var p ResourcePolicy
	var createdAt int64
	err := row.Scan(&p.ID, &p.GroupName, &p.ResourceURI, &p.ResourceType, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resource policy not found for %s on %s", group, resourceURI)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource policy: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0)

	rows, err := s.db.Query(`SELECT permission FROM resource_policy_permissions WHERE policy_id = ? ORDER BY permission`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get policy permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Permissions = append(p.Permissions, perm)
	}
	return &p, rows.Err()
}

// ListResourcePolicies returns every policy attached to a resource.
func (s *Store) ListResourcePolicies(resourceURI string) ([]*ResourcePolicy, error) {
	rows, err := s.db.Query(
		`SELECT id, group_name, resource_uri, resource_type, created_at
		 FROM resource_policies WHERE resource_uri = ? ORDER BY group_name`,
		resourceURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource policies: %w", err)
	}
	defer rows.Close()

	// Scan all rows first to release the connection before sub-queries.
	var policies []*ResourcePolicy
	for rows.Next() {
		var p ResourcePolicy
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.GroupName, &p.ResourceURI, &p.ResourceType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource policy: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		policies = append(policies, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, p := range policies {
		perms, err := s.db.Query(`SELECT permission FROM resource_policy_permissions WHERE policy_id = ? ORDER BY permission`, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get policy permissions: %w", err)
		}
		for perms.Next() {
			var perm string
			if err := perms.Scan(&perm); err != nil {
				perms.Close()
				return nil, fmt.Errorf("failed to scan permission: %w", err)
			}
			p.Permissions = append(p.Permissions, perm)
		}
		if err := perms.Err(); err != nil {
			perms.Close()
			return nil, err
		}
		perms.Close()
	}
	return policies, nil
}

// ----- Tx variants -----

func attachResourcePolicyTx(tx *sql.Tx, group, resourceURI, resourceType string, permissions []string) error {
	var policyID string
	err := tx.QueryRow(
		`SELECT id FROM resource_policies WHERE group_name = ? AND resource_uri = ?`,
		group, resourceURI,
	).Scan(&policyID)
	if err == sql.ErrNoRows {
		policyID = "rp_" + uuid.NewString()
		if _, err := tx.Exec(
			`INSERT INTO resource_policies (id, group_name, resource_uri, resource_type) VALUES (?, ?, ?, ?)`,
			policyID, group, resourceURI, resourceType,
		); err != nil {
			return fmt.Errorf("failed to create resource policy: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up resource policy: %w", err)
	}

	for _, perm := range permissions {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO resource_policy_permissions (policy_id, permission) VALUES (?, ?)`,
			policyID, perm,
		); err != nil {
			return fmt.Errorf("failed to attach permission %s: %w", perm, err)
		}
	}
	return nil
}

func detachResourcePolicyTx(tx *sql.Tx, group, resourceURI string, permissions []string) error {
	var policyID string
	err := tx.QueryRow(
		`SELECT id FROM resource_policies WHERE group_name = ? AND resource_uri = ?`,
		group, resourceURI,
	).Scan(&policyID)
	if err == sql.ErrNoRows {
		return nil // detaching a non-existent policy is a no-op
	}
	if err != nil {
		return fmt.Errorf("failed to look up resource policy: %w", err)
	}

	if permissions == nil {
		if _, err := tx.Exec(`DELETE FROM resource_policies WHERE id = ?`, policyID); err != nil {
			return fmt.Errorf("failed to delete resource policy: %w", err)
		}
		return nil
	}

	for _, perm := range permissions {
		if _, err := tx.Exec(
			`DELETE FROM resource_policy_permissions WHERE policy_id = ? AND permission = ?`,
			policyID, perm,
		); err != nil {
			return fmt.Errorf("failed to detach permission %s: %w", perm, err)
		}
	}

	// A policy with no permissions left is meaningless; drop the row.
	var remaining int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM resource_policy_permissions WHERE policy_id = ?`, policyID,
	).Scan(&remaining); err != nil {
		return fmt.Errorf("failed to count remaining permissions: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.Exec(`DELETE FROM resource_policies WHERE id = ?`, policyID); err != nil {
			return fmt.Errorf("failed to delete empty resource policy: %w", err)
		}
	}
	return nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
