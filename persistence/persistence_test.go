package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-library"
	"github.com/goliatone/go-library/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
)

type testConfig struct {
	driver string
	dsn    string
}

func (c testConfig) GetDriver() string                 { return c.driver }
func (c testConfig) GetDSN() string                    { return c.dsn }
func (c testConfig) GetDebug() bool                    { return false }
func (c testConfig) GetServer() string                 { return "" }
func (c testConfig) GetDatabase() string               { return ":memory:" }
func (c testConfig) GetOtelIdentifier() string         { return "" }
func (c testConfig) GetMaxOpenConns() int              { return 0 }
func (c testConfig) GetMaxIdleConns() int              { return 0 }
func (c testConfig) GetConnMaxLifetime() time.Duration { return 0 }
func (c testConfig) GetPingTimeout() time.Duration     { return time.Second }

type recordingLogger struct {
	debug []string
	info  []string
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.debug = append(l.debug, msg) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.info = append(l.info, msg) }

func openSQLite(t *testing.T, logger persistence.Logger) *persistence.Store {
	t.Helper()

	store, err := persistence.Open(context.Background(), testConfig{driver: "sqlite", dsn: "file::memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func tableExists(t *testing.T, store *persistence.Store, name string) bool {
	t.Helper()

	var count int
	err := store.DB().QueryRowContext(context.Background(),
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t, nil)
	db := store.DB()

	assert.Equal(t, dialect.SQLite, db.Dialect().Name())
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	var enabled int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := persistence.Open(context.Background(), testConfig{driver: "oracle", dsn: "x"}, nil)
	assert.Error(t, err)
}

func TestStore_MigrateRollback(t *testing.T) {
	ctx := context.Background()
	logger := &recordingLogger{}
	store := openSQLite(t, logger)

	migrations, err := library.MigrationsFor(store.DB().Dialect().Name())
	require.NoError(t, err)
	store.RegisterMigrations(migrations)

	require.NoError(t, store.Migrate(ctx))
	require.NotNil(t, store.Report())
	assert.False(t, store.Report().IsZero())
	assert.NotEmpty(t, logger.debug, "migration progress goes to the debug log")
	assert.Contains(t, logger.info, "database connected")

	for _, table := range []string{"users", "books", "borrows"} {
		assert.True(t, tableExists(t, store, table), table)
	}

	// nothing left to apply
	require.NoError(t, store.Migrate(ctx))
	assert.True(t, store.Report().IsZero())

	require.NoError(t, store.Rollback(ctx))
	for _, table := range []string{"users", "books", "borrows"} {
		assert.False(t, tableExists(t, store, table), table)
	}
}

func TestStore_MigrateWithoutMigrations(t *testing.T) {
	store := openSQLite(t, nil)
	assert.NoError(t, store.Migrate(context.Background()))
}
