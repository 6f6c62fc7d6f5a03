package library

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Books() Books
	Borrows() Borrows
	DB() *bun.DB
}

type mngr struct {
	db      *bun.DB
	users   Users
	books   Books
	borrows Borrows
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:      db,
		users:   NewUsersRepository(db),
		books:   NewBooksRepository(db),
		borrows: NewBorrowsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database handle")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.books == nil {
		return errors.New("repository books should be initialized")
	}

	if m.borrows == nil {
		return errors.New("repository borrows should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Books() Books {
	return m.books
}

func (m mngr) Borrows() Borrows {
	return m.borrows
}

func (m mngr) DB() *bun.DB {
	return m.db
}
