// Package postgres is the PostgreSQL Store adapter: a pgxpool-backed
// connection pool for CRUD/claim operations plus a dedicated pgx.Conn for
// LISTEN/NOTIFY (§4.1, §6).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/distask/scheduler/pkg/infrastructure/config"
	"github.com/distask/scheduler/pkg/infrastructure/logging"
)

// DatabaseConfig mirrors the connection pool tunables exposed in
// config.DatabaseConfig, kept separate so the adapter doesn't import the
// application config package for its zero-value defaults.
type DatabaseConfig struct {
	ConnString      string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FromAppConfig builds a DatabaseConfig from the application config.
func FromAppConfig(c config.DatabaseConfig) DatabaseConfig {
	return DatabaseConfig{
		ConnString:      c.ConnString(),
		MaxConns:        c.MaxConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

// Store is the PostgreSQL-backed implementation of store.Store.
type Store struct {
	pool   *pgxpool.Pool
	log    *logging.Logger
	config DatabaseConfig
}

// New opens a connection pool and pins every pooled connection's
// transaction isolation level to read committed, the precondition §4.1
// names for the claim CAS to be correct.
func New(ctx context.Context, cfg DatabaseConfig, log *logging.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET default_transaction_isolation TO 'read committed'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if log == nil {
		log = logging.GetGlobalLogger()
	}

	return &Store{pool: pool, log: log.WithComponent("store"), config: cfg}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// MigrateToLatest applies all pending migrations from migrationsPath
// (a "file://" source directory) using database/sql + lib/pq as the
// migration driver, exactly as the teacher's ComplianceDatabase does.
func MigrateToLatest(connString, migrationsPath string) error {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: load migrations: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: apply migrations: %w", err)
	}

	return nil
}
