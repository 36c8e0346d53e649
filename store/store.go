// Package store persists benchmark reports in a local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cnnbench/cnnbench/envconfig"
)

// currentSchemaVersion is bumped whenever a migration is added.
const currentSchemaVersion = 2

var ErrRunNotFound = errors.New("store: run not found")

// Store wraps the SQLite connection. SQLite serialises writers itself and
// WAL mode lets readers proceed alongside them, so no extra locking is
// needed here.
type Store struct {
	conn *sql.DB
}

// DefaultPath is results.db in the state directory.
func DefaultPath() string {
	return filepath.Join(envconfig.Home(), "results.db")
}

// Open opens or creates the database at path and migrates it to the
// current schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return s.conn.Close()
}

func (s *Store) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		os TEXT NOT NULL DEFAULT '',
		arch TEXT NOT NULL DEFAULT '',
		cpu_cores INTEGER NOT NULL DEFAULT 0,
		go_version TEXT NOT NULL DEFAULT '',
		hostname TEXT NOT NULL DEFAULT '',
		cpu_features TEXT NOT NULL DEFAULT '',
		input TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		model TEXT NOT NULL,
		batch_size INTEGER NOT NULL,
		image_size INTEGER NOT NULL,
		data_format TEXT NOT NULL,
		dtype TEXT NOT NULL,
		threads INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		dry_run BOOLEAN NOT NULL DEFAULT 0,
		params INTEGER NOT NULL,
		flops INTEGER NOT NULL,
		param_bytes INTEGER NOT NULL DEFAULT 0,
		activation_bytes INTEGER NOT NULL DEFAULT 0,
		total_ns INTEGER NOT NULL DEFAULT 0,
		avg_ns INTEGER NOT NULL DEFAULT 0,
		min_ns INTEGER NOT NULL DEFAULT 0,
		max_ns INTEGER NOT NULL DEFAULT 0,
		p50_ns INTEGER NOT NULL DEFAULT 0,
		p95_ns INTEGER NOT NULL DEFAULT 0,
		stddev_ns INTEGER NOT NULL DEFAULT 0,
		throughput REAL NOT NULL DEFAULT 0,
		gflops REAL NOT NULL DEFAULT 0,
		alloc_per_pass INTEGER NOT NULL DEFAULT 0,
		loss REAL NOT NULL DEFAULT 0,
		layers TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_model ON results(model);
	`, currentSchemaVersion)

	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// per-layer timings and the model index
			if err := s.migrateV1ToV2(); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		default:
			return fmt.Errorf("unknown schema version %d", version)
		}
	}

	return s.setSchemaVersion(version)
}

func (s *Store) migrateV1ToV2() error {
	hasLayers, err := s.columnExists("results", "layers")
	if err != nil {
		return err
	}
	if !hasLayers {
		if _, err := s.conn.Exec(`ALTER TABLE results ADD COLUMN layers TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add layers column: %w", err)
		}
	}

	_, err = s.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_results_model ON results(model)`)
	return err
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.conn.QueryRow(`SELECT schema_version FROM meta WHERE id = 1`).Scan(&version)
	return version, err
}

func (s *Store) setSchemaVersion(version int) error {
	_, err := s.conn.Exec(`UPDATE meta SET schema_version = ? WHERE id = 1`, version)
	return err
}

func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}
