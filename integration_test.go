//go:build integration
// +build integration

package library_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-library"
	"github.com/goliatone/go-library/config"
	"github.com/goliatone/go-library/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresRepo(t *testing.T) library.RepositoryManager {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("library"),
		postgres.WithUsername("library"),
		postgres.WithPassword("library"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := persistence.Open(ctx, config.Persistence{
		Driver:                config.DriverPostgres,
		DSN:                   dsn,
		MaxOpenConns:          16,
		PingTimeoutExpression: "10s",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	migrations, err := library.MigrationsFor(store.DB().Dialect().Name())
	require.NoError(t, err)
	store.RegisterMigrations(migrations)

	require.NoError(t, store.Migrate(ctx))
	// a second run must be a no-op
	require.NoError(t, store.Migrate(ctx))

	return library.NewRepositoryManager(store.DB())
}

func TestPostgres_ConcurrentBorrow(t *testing.T) {
	ctx := context.Background()
	repo := setupPostgresRepo(t)
	ledger := library.NewLedger(repo)

	book := seedBook(t, repo, "Contested", "999")

	const readers = 12
	ids := make([]int64, readers)
	for i := range ids {
		ids[i] = seedUser(t, repo, "pg-reader-"+string(rune('a'+i)), library.RoleMember).ID
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-start
			_, err := ledger.Borrow(ctx, book.ID, userID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, library.ErrBookUnavailable) {
				t.Errorf("unexpected borrow error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)

	got := loadBook(t, repo, book.ID)
	assert.False(t, got.Available)
}

func TestPostgres_UniqueConstraintsMapToDomainErrors(t *testing.T) {
	ctx := context.Background()
	repo := setupPostgresRepo(t)

	seedBook(t, repo, "First", "111")
	_, err := library.NewCatalog(repo).Create(ctx, library.BookPayload{Title: "Dup", Author: "A", ISBN: "111"})
	assert.ErrorIs(t, err, library.ErrISBNExists)

	seedUser(t, repo, "pg-ada", library.RoleMember)
	_, err = library.NewRegisterUserHandler(repo).Execute(ctx, library.RegisterUserMessage{
		Username: "pg-ada",
		Email:    "fresh@example.com",
		Password: "x",
	})
	assert.ErrorIs(t, err, library.ErrUsernameTaken)
}
