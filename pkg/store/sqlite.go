package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lakefabric/sharegate/pkg/share"
)

// cliName is the name of the CLI using the store, used for state directory
// paths. Call SetCLIName at startup to isolate state between tools.
var cliName = "sharegate"

// SetCLIName sets the CLI name used for state directory paths.
func SetCLIName(name string) {
	cliName = name
}

// Dataset is a catalogued data asset with an owning group and an optional
// delegated steward group. Stewardship is a relation expressed through
// resource policies; the stewards column only names the current steward.
type Dataset struct {
	URI            string
	Name           string
	EnvironmentURI string
	AwsAccountID   string
	Region         string
	AdminGroup     string // owning group; its capabilities are permanent
	Stewards       string // delegated approver group, may equal AdminGroup
	Owner          string // creator identity
	CreatedAt      time.Time
}

// DatasetTable is one catalog object (table) owned by a dataset.
type DatasetTable struct {
	URI        string
	DatasetURI string
	Name       string
	CreatedAt  time.Time
}

// ShareObject is a request by one principal to access items of a dataset
// owned by another group.
type ShareObject struct {
	URI            string
	DatasetURI     string
	EnvironmentURI string
	GroupURI       string // requesting principal-group
	PrincipalID    string
	PrincipalType  share.PrincipalType
	Owner          string // creator identity
	Status         share.Status
	RequestPurpose string
	RejectPurpose  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// ShareObjectItem is one catalog object within a share, with its own grant
// lifecycle. ItemURI addresses the catalog object; URI identifies the row.
type ShareObjectItem struct {
	URI                string
	ShareURI           string
	ItemURI            string
	ItemType           string
	ItemName           string
	Status             share.ItemStatus
	HealthStatus       share.HealthStatus
	LastSyncError      *string
	LastVerificationAt *time.Time
	ReapplyAttempts    int
	CreatedAt          time.Time
}

// ResourcePolicy is the capability-set grant recording that a group may
// perform certain actions on a resource. Exactly one row exists per
// (group, resource) pair; permissions union-merge into it.
type ResourcePolicy struct {
	ID           string
	GroupName    string
	ResourceURI  string
	ResourceType string
	Permissions  []string
	CreatedAt    time.Time
}

// TaskRecord tracks one enqueued synchronization task and its outcome.
type TaskRecord struct {
	ID          string
	TaskType    string
	TargetURI   string // item row URI the task synchronizes
	ShareURI    string
	Payload     string
	Status      string // pending, completed, failed
	Error       *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// AuditRecord is one persisted audit event.
type AuditRecord struct {
	ID        int64
	Timestamp time.Time
	EventType string
	Severity  string
	Actor     string
	Target    string
	Details   string
}

// Store provides SQLite-backed persistence for the share broker.
type Store struct {
	db *sql.DB

	// transferHook, when set, runs between the scopes of a stewardship
	// transfer, inside the transaction. Tests use it to inject failures.
	transferHook func(scope string) error
}

// DefaultPath returns the default database path following the XDG spec.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, cliName, cliName+".db")
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys enforce the share -> item ownership invariant.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// WAL mode lets the worker read committed decisions while the request
	// path writes new ones.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Without a busy timeout, concurrent writes immediately return
	// SQLITE_BUSY instead of serializing.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		uri TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		environment_uri TEXT NOT NULL,
		aws_account_id TEXT DEFAULT '',
		region TEXT DEFAULT '',
		admin_group TEXT NOT NULL,
		stewards TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_admin_group ON datasets(admin_group);
	CREATE INDEX IF NOT EXISTS idx_datasets_stewards ON datasets(stewards);

	CREATE TABLE IF NOT EXISTS dataset_tables (
		uri TEXT PRIMARY KEY,
		dataset_uri TEXT NOT NULL REFERENCES datasets(uri) ON DELETE CASCADE,
		name TEXT NOT NULL,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_dataset_tables_dataset ON dataset_tables(dataset_uri);

	CREATE TABLE IF NOT EXISTS share_objects (
		uri TEXT PRIMARY KEY,
		dataset_uri TEXT NOT NULL REFERENCES datasets(uri),
		environment_uri TEXT NOT NULL,
		group_uri TEXT NOT NULL,
		principal_id TEXT NOT NULL,
		principal_type TEXT NOT NULL,
		owner TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Draft',
		request_purpose TEXT DEFAULT '',
		reject_purpose TEXT DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		deleted_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_share_objects_dataset ON share_objects(dataset_uri);
	CREATE INDEX IF NOT EXISTS idx_share_objects_group ON share_objects(group_uri);
	CREATE INDEX IF NOT EXISTS idx_share_objects_principal ON share_objects(principal_id);
	CREATE INDEX IF NOT EXISTS idx_share_objects_status ON share_objects(status);

	CREATE TABLE IF NOT EXISTS share_items (
		uri TEXT PRIMARY KEY,
		share_uri TEXT NOT NULL REFERENCES share_objects(uri) ON DELETE RESTRICT,
		item_uri TEXT NOT NULL,
		item_type TEXT NOT NULL,
		item_name TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PendingApproval',
		health_status TEXT NOT NULL DEFAULT 'PendingVerify',
		last_sync_error TEXT,
		last_verification_at INTEGER,
		reapply_attempts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		UNIQUE (share_uri, item_uri)
	);
	CREATE INDEX IF NOT EXISTS idx_share_items_share ON share_items(share_uri);
	CREATE INDEX IF NOT EXISTS idx_share_items_status ON share_items(status);

	CREATE TABLE IF NOT EXISTS resource_policies (
		id TEXT PRIMARY KEY,
		group_name TEXT NOT NULL,
		resource_uri TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		UNIQUE (group_name, resource_uri)
	);
	CREATE INDEX IF NOT EXISTS idx_resource_policies_resource ON resource_policies(resource_uri);
	CREATE INDEX IF NOT EXISTS idx_resource_policies_group ON resource_policies(group_name);

	CREATE TABLE IF NOT EXISTS resource_policy_permissions (
		policy_id TEXT NOT NULL REFERENCES resource_policies(id) ON DELETE CASCADE,
		permission TEXT NOT NULL,
		PRIMARY KEY (policy_id, permission)
	);

	CREATE TABLE IF NOT EXISTS share_tasks (
		id TEXT PRIMARY KEY,
		task_type TEXT NOT NULL,
		target_uri TEXT NOT NULL,
		share_uri TEXT NOT NULL,
		payload TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_share_tasks_target ON share_tasks(target_uri);
	CREATE INDEX IF NOT EXISTS idx_share_tasks_share ON share_tasks(share_uri);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		actor TEXT DEFAULT '',
		target TEXT DEFAULT '',
		details TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_log_event ON audit_log(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_log_target ON audit_log(target);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullableTime converts an optional unix-seconds column to *time.Time.
func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// nullableString converts an optional text column to *string.
func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
