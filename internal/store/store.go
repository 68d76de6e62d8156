package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	// SQLite driver.
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

type Options struct {
	Driver string
	DSN    string
	// Actor is recorded as the author of every change log entry.
	Actor string
}

// Database is the downstream account, contact and team store.
type Database struct {
	db     *sql.DB
	driver string
	actor  string
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Database, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		dsn     string
		dialect goose.Dialect
		err     error
	)
	switch driver {
	case DriverSQLite:
		path := opts.DSN
		if path == "" {
			path = defaultSQLitePath
		}
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(path)
		dialect = goose.DialectSQLite3
	case DriverMySQL:
		dsn, err = mysqlDSN(opts.DSN)
		if err != nil {
			return nil, err
		}
		dialect = goose.DialectMySQL
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate(ctx, db, dialect, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	// SQLite runs on a single connection.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Database{db: db, driver: driver, actor: opts.Actor}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, driver string) error {
	migrations, err := fs.Sub(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

const defaultSQLitePath = "data/support-feed.sqlite"

func ensureDir(path string) error {
	if strings.HasPrefix(path, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if path == "" {
		path = defaultSQLitePath
	}

	values := url.Values{}
	values.Add("_pragma", "foreign_keys(ON)")
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	return fmt.Sprintf("file:%s?%s", path, values.Encode())
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Driver() string {
	return d.driver
}

// Begin opens a transaction. Exactly one of Commit or Rollback must follow.
func (d *Database) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, actor: d.actor}, nil
}

// WithTx runs fn within a transaction, committing when it returns nil.
func (d *Database) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	return tx.Commit()
}

// FeatureEnabled reports a feature flag. Unknown flags are disabled.
func (d *Database) FeatureEnabled(ctx context.Context, name string) (bool, error) {
	var enabled int64
	err := d.db.QueryRowContext(ctx, `SELECT enabled FROM feature_flags WHERE name = ?`, name).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read feature flag %s: %w", name, err)
	}
	return enabled != 0, nil
}

func (d *Database) SetFeature(ctx context.Context, name string, enabled bool) error {
	value := int64(0)
	if enabled {
		value = 1
	}

	query := `INSERT INTO feature_flags (name, enabled) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled`
	if d.driver == DriverMySQL {
		query = `INSERT INTO feature_flags (name, enabled) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE enabled = VALUES(enabled)`
	}
	if _, err := d.db.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("write feature flag %s: %w", name, err)
	}
	return nil
}
