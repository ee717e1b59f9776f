package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB owns the connection pool and hands out transactional sessions.
type DB struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialect, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite && source != ":memory:" {
		if dir := filepath.Dir(source); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(dialect.DriverName(), source)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection also keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			logger.Warn("could not set WAL mode", zap.Error(err))
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database %s: %w", dialect, redact(dsn), err)
	}

	logger.Info("database connected", zap.String("dialect", string(dialect)), zap.String("dsn", redact(dsn)))
	return &DB{db: db, dialect: dialect, logger: logger}, nil
}

// Dialect reports the SQL flavour of the connection.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Migrate creates weather_table and its indexes if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	script, err := schemaFS.ReadFile("schema/" + string(d.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("read %s schema: %w", d.dialect, err)
	}
	for _, stmt := range strings.Split(string(script), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", d.dialect, err)
		}
	}
	d.logger.Info("database schema ready", zap.String("dialect", string(d.dialect)))
	return nil
}

// NewSession begins a transaction. Callers own the session and must Close it.
func (d *DB) NewSession(ctx context.Context) (Session, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &txSession{tx: tx, dialect: d.dialect}, nil
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.db.Close()
}
