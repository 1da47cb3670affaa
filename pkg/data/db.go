package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DataFileName = "data.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	dirMode = 0700
)

var (
	//go:embed sql/*.sql
	migrationFS embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	createVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`

	selectVersion = `SELECT COALESCE(MAX(version), 0) FROM schema_version`
	insertVersion = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`
)

// IsPostgres reports whether dsn addresses a PostgreSQL server rather than
// a SQLite file.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Init creates or upgrades the run-history schema.
func Init(dsn string) error {
	if dsn == "" {
		return errors.New("dsn not specified")
	}

	if !IsPostgres(dsn) {
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, dirMode); err != nil {
				return fmt.Errorf("creating database dir %s: %w", dir, err)
			}
		}
	}

	db, err := GetDB(dsn)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// GetDB opens the database. PostgreSQL DSNs use lib/pq, everything else is
// treated as a SQLite file path.
func GetDB(dsn string) (*sql.DB, error) {
	driver := driverSQLite
	if IsPostgres(dsn) {
		driver = driverPostgres
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(createVersionTable); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := db.QueryRow(selectVersion).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	files, err := fs.Glob(migrationFS, "sql/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		version, err := migrationVersion(f)
		if err != nil {
			return err
		}
		if version <= current {
			continue
		}

		b, err := migrationFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", f, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec(rebind(db, insertVersion), version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
		slog.Debug("applied migration", "version", version, "file", f)
	}

	return nil
}

// 001_run.sql -> 1
func migrationVersion(path string) (int, error) {
	base := filepath.Base(path)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s has no version prefix", base)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %s has invalid version: %w", base, err)
	}
	return v, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL connections.
func rebind(db *sql.DB, query string) string {
	if _, ok := db.Driver().(*pq.Driver); !ok {
		return query
	}
	return sqlx.Rebind(sqlx.DOLLAR, query)
}
