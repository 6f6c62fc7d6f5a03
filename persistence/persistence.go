package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	bunpersistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"
	"github.com/uptrace/bun/schema"
)

const pgxDriverName = "pgx"

type Config interface {
	GetDriver() string
	GetDSN() string
	GetDebug() bool
	GetServer() string
	GetDatabase() string
	GetOtelIdentifier() string
	GetMaxOpenConns() int
	GetMaxIdleConns() int
	GetConnMaxLifetime() time.Duration
	GetPingTimeout() time.Duration
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Store owns the database connection and its migrations
type Store struct {
	client *bunpersistence.Client
	sqldb  *sql.DB
	db     *bun.DB
	driver string
}

// Open connects to the configured database and returns a Store using
// the matching dialect.
func Open(ctx context.Context, cfg Config, logger Logger) (*Store, error) {
	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		err     error
	)

	switch cfg.GetDriver() {
	case "sqlite":
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return nil, wrapOpenError(err, cfg)
		}
		// SQLite serializes writers, a single connection keeps the
		// borrow transaction from hitting SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	case "postgres":
		sqldb, err = sql.Open(pgxDriverName, cfg.GetDSN())
		if err != nil {
			return nil, wrapOpenError(err, cfg)
		}
		if n := cfg.GetMaxOpenConns(); n > 0 {
			sqldb.SetMaxOpenConns(n)
		}
		if n := cfg.GetMaxIdleConns(); n > 0 {
			sqldb.SetMaxIdleConns(n)
		}
		if d := cfg.GetConnMaxLifetime(); d > 0 {
			sqldb.SetConnMaxLifetime(d)
		}
		dialect = pgdialect.New()
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": cfg.GetDriver()})
	}

	client, err := bunpersistence.New(cfg, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, wrapOpenError(err, cfg)
	}

	if logger != nil {
		client.SetLogger(func(format string, a ...any) {
			logger.Debug(strings.TrimSpace(fmt.Sprintf(format, a...)))
		})
	}

	db, ok := client.DB().(*bun.DB)
	if !ok {
		_ = sqldb.Close()
		return nil, goerrors.New("persistence client returned an unexpected handle", goerrors.CategoryInternal)
	}

	if cfg.GetDriver() == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = sqldb.Close()
			return nil, wrapOpenError(err, cfg)
		}
	}

	if logger != nil {
		logger.Info("database connected",
			"driver", cfg.GetDriver(),
			"server", cfg.GetServer(),
			"database", cfg.GetDatabase(),
			"dialect", db.Dialect().Name().String(),
		)
	}

	return &Store{
		client: client,
		sqldb:  sqldb,
		db:     db,
		driver: cfg.GetDriver(),
	}, nil
}

// DB returns the bun handle
func (s *Store) DB() *bun.DB {
	return s.db
}

// RegisterMigrations adds SQL migration directories. Each directory must hold
// bun style files at its root. Register a directory once, every call appends.
func (s *Store) RegisterMigrations(dirs ...fs.FS) *Store {
	s.client.RegisterSQLMigrations(dirs...)
	return s
}

// Migrate applies pending migrations. Running it again is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "migration failed").
			WithMetadata(map[string]any{"driver": s.driver})
	}
	return nil
}

// Rollback reverts the last applied migration group
func (s *Store) Rollback(ctx context.Context) error {
	if err := s.client.Rollback(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "rollback failed").
			WithMetadata(map[string]any{"driver": s.driver})
	}
	return nil
}

// Report describes the last migration group applied or rolled back, nil
// when nothing ran.
func (s *Store) Report() *migrate.MigrationGroup {
	return s.client.Report()
}

func (s *Store) Close() error {
	return s.sqldb.Close()
}

func wrapOpenError(err error, cfg Config) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("unable to open %s database", cfg.GetDriver())).
		WithCode(goerrors.CodeInternal)
}
