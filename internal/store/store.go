// Package store implements durable persistence for the gateway's domain
// entities over SQLite: a single-writer pragma string and a
// flock-guarded migration sequence applied once at startup.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the gateway's persistence layer: one SQLite connection,
// opened with single-writer pragmas, migrated at construction time.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

type options struct {
	dbFile string
	fs     fs.FS
	path   string
}

// Option configures Open.
type Option func(*options)

// WithDatabaseFile overrides the default database path.
func WithDatabaseFile(path string) Option {
	return func(o *options) { o.dbFile = path }
}

// WithMigrations overrides the embedded migration source, used by tests
// that want a scratch migration set.
func WithMigrations(filesystem fs.FS, path string) Option {
	return func(o *options) { o.fs, o.path = filesystem, path }
}

// Open opens (creating if necessary) the gateway database and runs any
// pending migrations under a cross-process file lock.
func Open(ctx context.Context, log *zap.Logger, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.dbFile == "" {
		var err error
		if o.dbFile, err = DefaultDatabaseFile(); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(o.dbFile), 0o755); err != nil {
		return nil, fmt.Errorf("store: creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", "file:"+o.dbFile+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	migFS := o.fs
	if migFS == nil {
		migFS = migrationsFS
	}
	migPath := o.path
	if migPath == "" {
		migPath = "migrations"
	}

	if err := runMigrations(ctx, log, o.dbFile, sqlDB, migFS, migPath); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Store{db: sqlx.NewDb(sqlDB, "sqlite"), log: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DefaultDatabaseFile returns the per-user default database path,
// scoped to this project's own data directory.
func DefaultDatabaseFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mcpmux", "gateway.db"), nil
}

func runMigrations(ctx context.Context, log *zap.Logger, dbFile string, db *sql.DB, migFS fs.FS, path string) error {
	srcDriver, err := iofs.New(migFS, path)
	if err != nil {
		return fmt.Errorf("store: loading embedded migrations: %w", err)
	}
	defer srcDriver.Close()

	dbDriver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: wrapping migration driver: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", srcDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("store: building migrator: %w", err)
	}

	lockPath := filepath.Join(filepath.Dir(dbFile), ".mcpmux-gateway-migration.lock")
	fileLock := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("store: acquiring migration lock: %w", err)
	}
	if !locked {
		return errors.New("store: timeout waiting for migration lock")
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Warn("failed to release migration lock", zap.Error(err))
		}
	}()

	version, dirty, err := mig.Version()
	fresh := errors.Is(err, migrate.ErrNilVersion)
	if err != nil && !fresh {
		return fmt.Errorf("store: reading migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("store: database is in a dirty state at version %d, manual intervention required", version)
	}
	if !fresh {
		if _, _, err := srcDriver.ReadUp(version); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: database version %d is ahead of this build of the gateway", version)
		} else if err != nil {
			return fmt.Errorf("store: reading migration for version %d: %w", version, err)
		}
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: applying migrations: %w", err)
	}
	return nil
}
