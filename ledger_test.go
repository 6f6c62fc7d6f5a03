package library_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goliatone/go-library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestLedger_BorrowReturnCycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	clock := &fixedClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	ledger := library.NewLedger(repo, library.WithLedgerClock(clock.Now)).WithActivitySink(sink)

	alice := seedUser(t, repo, "alice", library.RoleMember)
	bob := seedUser(t, repo, "bob", library.RoleMember)
	book := seedBook(t, repo, "Dune", "1111111111111")

	borrow, err := ledger.Borrow(ctx, book.ID, alice.ID)
	require.NoError(t, err)
	assert.NotZero(t, borrow.ID)
	assert.Equal(t, alice.ID, borrow.UserID)
	assert.Equal(t, book.ID, borrow.BookID)
	assert.Equal(t, clock.t, borrow.BorrowedAt.UTC())
	assert.True(t, borrow.IsOpen())

	got := loadBook(t, repo, book.ID)
	assert.False(t, got.Available)

	_, err = ledger.Borrow(ctx, book.ID, alice.ID)
	assert.ErrorIs(t, err, library.ErrBookUnavailable)

	_, err = ledger.Borrow(ctx, book.ID, bob.ID)
	assert.ErrorIs(t, err, library.ErrBookUnavailable)

	_, err = ledger.Return(ctx, book.ID, bob.ID)
	assert.ErrorIs(t, err, library.ErrNoActiveBorrow, "only the holder can return")

	clock.Advance(48 * time.Hour)
	returned, err := ledger.Return(ctx, book.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnedAt)
	assert.Equal(t, clock.t, returned.ReturnedAt.UTC())
	assert.False(t, returned.IsOpen())

	got = loadBook(t, repo, book.ID)
	assert.True(t, got.Available)

	_, err = ledger.Return(ctx, book.ID, alice.ID)
	assert.ErrorIs(t, err, library.ErrNoActiveBorrow)

	_, err = ledger.Borrow(ctx, book.ID, bob.ID)
	require.NoError(t, err)

	history, err := ledger.History(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.NotNil(t, history[0].ReturnedAt)

	assert.Equal(t, []library.ActivityEventType{
		library.ActivityEventBookStateChanged,
		library.ActivityEventBookBorrowed,
		library.ActivityEventBookStateChanged,
		library.ActivityEventBookReturned,
		library.ActivityEventBookStateChanged,
		library.ActivityEventBookBorrowed,
	}, sink.Types())
}

func TestLedger_MissingBook(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ledger := library.NewLedger(repo)
	user := seedUser(t, repo, "carol", library.RoleMember)

	_, err := ledger.Borrow(ctx, 404, user.ID)
	assert.ErrorIs(t, err, library.ErrBookNotFound)

	_, err = ledger.Return(ctx, 404, user.ID)
	assert.ErrorIs(t, err, library.ErrBookNotFound)

	book := seedBook(t, repo, "Never lent", "42")
	_, err = ledger.Return(ctx, book.ID, user.ID)
	assert.ErrorIs(t, err, library.ErrNoActiveBorrow)
}

func TestLedger_EmptyHistory(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "dave", library.RoleMember)

	history, err := library.NewLedger(repo).History(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestLedger_ConcurrentBorrowSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	ledger := library.NewLedger(repo)
	book := seedBook(t, repo, "Contested", "777")

	const readers = 8
	users := make([]*library.User, readers)
	for i := range users {
		users[i] = seedUser(t, repo, "reader"+string(rune('a'+i)), library.RoleMember)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)

	for _, u := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := ledger.Borrow(ctx, book.ID, userID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, library.ErrBookUnavailable):
				rejected++
			default:
				t.Errorf("unexpected borrow error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, readers-1, rejected)

	open, err := repo.Borrows().HasOpenForBookTx(ctx, repo.DB(), book.ID)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestLedger_BorrowRollsBackOnInsertFailure(t *testing.T) {
	sqldb, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()

	db := bun.NewDB(sqldb, sqlitedialect.New())
	repo := library.NewRepositoryManager(db)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(`SELECT .* FROM "books"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "author", "isbn", "available"}).
			AddRow(int64(1), "Dune", "Herbert", "1111111111111", true))
	dbMock.ExpectQuery(`INSERT INTO "borrows"`).
		WillReturnError(errors.New("disk I/O error"))
	dbMock.ExpectRollback()

	logger := &MockLogger{}
	logger.On("Error", "borrow failed", mock.Anything).Once()

	_, err = library.NewLedger(repo).WithLogger(logger).Borrow(context.Background(), 1, 2)
	require.Error(t, err)
	assert.NotErrorIs(t, err, library.ErrBookUnavailable)

	assert.NoError(t, dbMock.ExpectationsWereMet())
	logger.AssertExpectations(t)
}
