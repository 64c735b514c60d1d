// ABOUTME: SQLite store shared by the mock management API and the console's logs.
// ABOUTME: Opens the database, applies pragmas, and runs versioned migrations.

package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type migration struct {
	version     int
	description string
	statements  []string
}

// migrations are applied in order, each in its own transaction. Append only.
var migrations = []migration{
	{
		version:     1,
		description: "Create request_logs table and indexes",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS request_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				resource TEXT DEFAULT '',
				method TEXT NOT NULL,
				path TEXT NOT NULL,
				status_code INTEGER,
				duration_ms INTEGER,
				user_id TEXT,
				ip_address TEXT,
				user_agent TEXT,
				request_body TEXT,
				response_body TEXT,
				error TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_request_logs_path ON request_logs(path)`,
			`CREATE INDEX IF NOT EXISTS idx_request_logs_status ON request_logs(status_code)`,
			`CREATE INDEX IF NOT EXISTS idx_request_logs_resource ON request_logs(resource)`,
		},
	},
	{
		version:     2,
		description: "Add composite indexes for dashboard and log filters",
		statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_request_logs_path_count ON request_logs(path, status_code)",
			"CREATE INDEX IF NOT EXISTS idx_request_logs_resource_timestamp ON request_logs(resource, timestamp DESC)",
			"CREATE INDEX IF NOT EXISTS idx_request_logs_resource_method_status ON request_logs(resource, method, status_code)",
			"CREATE INDEX IF NOT EXISTS idx_request_logs_user_id ON request_logs(user_id) WHERE user_id != ''",
			"CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp_status ON request_logs(timestamp DESC, status_code)",
		},
	},
	{
		version:     3,
		description: "Create clusters, hosts, and events tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS clusters (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				allocation_state TEXT NOT NULL DEFAULT 'Enabled',
				cluster_type TEXT NOT NULL DEFAULT 'CloudManaged',
				managed_state TEXT NOT NULL DEFAULT 'Managed',
				arch TEXT NOT NULL DEFAULT 'x86_64',
				hypervisor_type TEXT NOT NULL,
				pod_id TEXT NOT NULL,
				pod_name TEXT NOT NULL,
				zone_id TEXT NOT NULL,
				zone_name TEXT NOT NULL,
				oobm_enabled INTEGER NOT NULL DEFAULT 0,
				ha_enabled INTEGER NOT NULL DEFAULT 0,
				drs_imbalance REAL NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS hosts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				cluster_id TEXT NOT NULL REFERENCES clusters(id) ON DELETE RESTRICT,
				state TEXT NOT NULL DEFAULT 'Up',
				resource_state TEXT NOT NULL DEFAULT 'Enabled',
				type TEXT NOT NULL DEFAULT 'Routing',
				ip_address TEXT NOT NULL DEFAULT '',
				hypervisor TEXT NOT NULL,
				cpu_total_mhz INTEGER NOT NULL DEFAULT 0,
				cpu_used_mhz INTEGER NOT NULL DEFAULT 0,
				cpu_allocated_mhz INTEGER NOT NULL DEFAULT 0,
				memory_total_mb INTEGER NOT NULL DEFAULT 0,
				memory_used_mb INTEGER NOT NULL DEFAULT 0,
				memory_allocated_mb INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				level TEXT NOT NULL DEFAULT 'INFO',
				description TEXT NOT NULL,
				resource_type TEXT NOT NULL DEFAULT '',
				resource_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_hosts_cluster ON hosts(cluster_id)`,
			`CREATE INDEX IF NOT EXISTS idx_events_resource ON events(resource_id, created_at DESC)`,
		},
	},
	{
		version:     4,
		description: "Create dispatch_logs and async_jobs tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS dispatch_logs (
				id TEXT PRIMARY KEY,
				timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				resource TEXT NOT NULL,
				action TEXT NOT NULL,
				label TEXT NOT NULL DEFAULT '',
				record_id TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '{}',
				job_id TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				duration_ms INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS async_jobs (
				id TEXT PRIMARY KEY,
				command TEXT NOT NULL,
				status INTEGER NOT NULL DEFAULT 0,
				result TEXT NOT NULL DEFAULT '{}',
				instance_type TEXT NOT NULL DEFAULT '',
				instance_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_dispatch_logs_timestamp ON dispatch_logs(timestamp DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_dispatch_logs_resource ON dispatch_logs(resource, record_id)`,
		},
	},
}

// CurrentSchemaVersion is the version a freshly migrated database reports.
var CurrentSchemaVersion = migrations[len(migrations)-1].version

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := s.getCurrentMigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	zap.L().Debug("database schema", zap.Int("version", current), zap.Int("target", CurrentSchemaVersion))

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
		zap.L().Info("applied migration", zap.Int("version", m.version), zap.String("description", m.description))
	}
	return nil
}

func (s *Store) apply(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`, m.version, m.description); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) getCurrentMigrationVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	return version, err
}
