package library_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload library.BookPayload
		wantMsg string
	}{
		{"empty title", library.BookPayload{Title: " ", Author: "a", ISBN: "1"}, "Title cannot be empty"},
		{"empty author", library.BookPayload{Title: "t", ISBN: "1"}, "Author cannot be empty"},
		{"title reported first", library.BookPayload{ISBN: "x"}, "Title cannot be empty"},
		{"non numeric isbn", library.BookPayload{Title: "t", Author: "a", ISBN: "978-0"}, "ISBN must be numeric"},
		{"empty isbn", library.BookPayload{Title: "t", Author: "a"}, "ISBN must be numeric"},
		{"padded isbn", library.BookPayload{Title: "t", Author: "a", ISBN: " 123 "}, "ISBN must be numeric"},
		{"blank isbn", library.BookPayload{Title: "t", Author: "a", ISBN: "   "}, "ISBN must be numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, tt.wantMsg, richErr.Message)
			assert.Equal(t, 400, library.StatusFor(richErr))
		})
	}

	assert.NoError(t, library.BookPayload{Title: " t ", Author: " a ", ISBN: "0123"}.Validate())
}

func TestCatalog_CreateAndDuplicateISBN(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	sink := &recordingSink{}
	catalog := library.NewCatalog(repo).WithActivitySink(sink)

	book, err := catalog.Create(ctx, library.BookPayload{Title: " Dune ", Author: "Herbert", ISBN: "1111111111111"})
	require.NoError(t, err)
	assert.NotZero(t, book.ID)
	assert.Equal(t, "Dune", book.Title)
	assert.True(t, book.Available)

	_, err = catalog.Create(ctx, library.BookPayload{Title: "Other", Author: "Someone", ISBN: "1111111111111"})
	assert.ErrorIs(t, err, library.ErrISBNExists)

	_, err = catalog.Create(ctx, library.BookPayload{Title: "Padded", Author: "Someone", ISBN: " 123 "})
	assert.True(t, goerrors.IsValidation(err), "isbn whitespace is not trimmed")

	assert.Equal(t, []library.ActivityEventType{library.ActivityEventBookCreated}, sink.Types())
	assert.Equal(t, book.ID, sink.Last().BookID)
}

func TestCatalog_Update(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	catalog := library.NewCatalog(repo)

	first := seedBook(t, repo, "First", "100")
	seedBook(t, repo, "Second", "200")

	updated, err := catalog.Update(ctx, first.ID, library.BookPayload{Title: "First, revised", Author: "Someone", ISBN: "100"})
	require.NoError(t, err)
	assert.Equal(t, "First, revised", updated.Title)
	assert.Equal(t, "100", updated.ISBN)

	_, err = catalog.Update(ctx, first.ID, library.BookPayload{Title: "First", Author: "Someone", ISBN: "200"})
	assert.ErrorIs(t, err, library.ErrISBNExists)

	_, err = catalog.Update(ctx, 999, library.BookPayload{})
	assert.ErrorIs(t, err, library.ErrBookNotFound, "missing book is reported before validation")

	got, err := catalog.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First, revised", got.Title)
}

func TestCatalog_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	catalog := library.NewCatalog(repo)
	ledger := library.NewLedger(repo)

	member := seedUser(t, repo, "reader", library.RoleMember)
	book := seedBook(t, repo, "Loaned", "300")

	_, err := ledger.Borrow(ctx, book.ID, member.ID)
	require.NoError(t, err)

	err = catalog.Delete(ctx, book.ID)
	assert.ErrorIs(t, err, library.ErrBookOnLoan)

	_, err = ledger.Return(ctx, book.ID, member.ID)
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(ctx, book.ID))

	_, err = catalog.Get(ctx, book.ID)
	assert.ErrorIs(t, err, library.ErrBookNotFound)

	err = catalog.Delete(ctx, book.ID)
	assert.ErrorIs(t, err, library.ErrBookNotFound)

	// the isbn of a deleted book can be reused
	_, err = catalog.Create(ctx, library.BookPayload{Title: "Reprint", Author: "A", ISBN: "300"})
	assert.NoError(t, err)
}

func TestCatalog_ListAndBrowse(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	catalog := library.NewCatalog(repo)

	_, err := catalog.List(ctx)
	assert.ErrorIs(t, err, library.ErrNoBooks)

	books, err := catalog.Browse(ctx)
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)

	a := seedBook(t, repo, "A", "1")
	b := seedBook(t, repo, "B", "2")

	books, err = catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, a.ID, books[0].ID)
	assert.Equal(t, b.ID, books[1].ID)
}
