package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"

	_ "modernc.org/sqlite"
)

// busyTimeoutMillis bounds how long a writer waits on the sqlite lock.
const busyTimeoutMillis = 5000

// DB is the sqlite handle behind the persistent job store.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the job history database at dbPath.
func NewDB(dbPath string, maxConns int) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn, err := buildSQLiteDSN(dbPath)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 4
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", dbPath, err)
	}

	return &DB{DB: conn, path: dbPath}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func buildSQLiteDSN(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	absPath = strings.ReplaceAll(absPath, "\\", "/")

	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis),
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
	}
	query := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		query = append(query, "_pragma="+p)
	}
	return "file:" + absPath + "?" + strings.Join(query, "&"), nil
}

// Migrate applies every migration not yet recorded and returns how many ran.
func (db *DB) Migrate() (int, error) {
	logger := logging.Component("database")

	if err := db.createMigrationsTable(); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}
	applied, err := db.appliedVersions()
	if err != nil {
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	ran := 0
	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := db.apply(migration); err != nil {
			return ran, err
		}
		ran++
		logger.Info("applied migration", "version", migration.Version, "path", db.path)
	}
	return ran, nil
}

// SchemaVersion returns the newest applied migration, or "" on a fresh database.
func (db *DB) SchemaVersion() (string, error) {
	var version sql.NullString
	err := db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&version)
	if err != nil {
		return "", err
	}
	return version.String, nil
}

func (db *DB) apply(migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Up); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version, applied_at) VALUES (?, datetime('now'))", migration.Version); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
	}
	return nil
}

func (db *DB) createMigrationsTable() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func (db *DB) appliedVersions() (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
