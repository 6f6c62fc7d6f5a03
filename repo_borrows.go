package library

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Borrows interface {
	repository.Repository[*Borrow]

	GetOpenTx(ctx context.Context, tx bun.IDB, bookID, userID int64) (*Borrow, error)
	HasOpenForBookTx(ctx context.Context, tx bun.IDB, bookID int64) (bool, error)
	CloseTx(ctx context.Context, tx bun.IDB, record *Borrow, at time.Time) error
	ListByUser(ctx context.Context, userID int64) ([]*Borrow, error)
	ListByUserTx(ctx context.Context, tx bun.IDB, userID int64) ([]*Borrow, error)
}

type borrows struct {
	repository.Repository[*Borrow]
	db *bun.DB
}

var (
	_ Borrows                        = (*borrows)(nil)
	_ repository.Repository[*Borrow] = (*borrows)(nil)
)

func NewBorrowsRepository(db *bun.DB) Borrows {
	repo := repository.NewRepository[*Borrow](db, repository.ModelHandlers[*Borrow]{
		NewRecord: func() *Borrow { return &Borrow{} },
		GetID:     func(*Borrow) uuid.UUID { return uuid.Nil },
		SetID:     func(*Borrow, uuid.UUID) {},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &borrows{Repository: repo, db: db}
}

func openBorrow() repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.returned_at IS NULL")
	})
}

// GetOpenTx returns the open borrow of bookID held by userID
func (r *borrows) GetOpenTx(ctx context.Context, tx bun.IDB, bookID, userID int64) (*Borrow, error) {
	return r.GetTx(ctx, tx,
		repository.SelectBy("book_id", "=", formatID(bookID)),
		repository.SelectBy("user_id", "=", formatID(userID)),
		openBorrow(),
		repository.SelectOrderDesc("id"),
	)
}

func (r *borrows) HasOpenForBookTx(ctx context.Context, tx bun.IDB, bookID int64) (bool, error) {
	return tx.NewSelect().
		Model((*Borrow)(nil)).
		Apply(
			repository.SelectBy("book_id", "=", formatID(bookID)),
			openBorrow(),
		).
		Exists(ctx)
}

// CloseTx stamps returned_at on an open borrow. Closing an already closed
// borrow fails with repository.ErrSQLExpectedCountViolation.
func (r *borrows) CloseTx(ctx context.Context, tx bun.IDB, record *Borrow, at time.Time) error {
	res, err := tx.NewUpdate().
		Model(&Borrow{}).
		Apply(
			repository.UpdateSetColumn("returned_at", at),
			repository.UpdateByID(formatID(record.ID)),
			repository.UpdateRawProcessor(func(q *bun.UpdateQuery) *bun.UpdateQuery {
				return q.Where("?TableAlias.returned_at IS NULL")
			}),
		).
		Exec(ctx)
	if err != nil {
		return err
	}

	if err := repository.SQLExpectedCount(res, 1); err != nil {
		return err
	}

	record.ReturnedAt = &at
	return nil
}

func (r *borrows) ListByUser(ctx context.Context, userID int64) ([]*Borrow, error) {
	return r.ListByUserTx(ctx, r.db, userID)
}

func (r *borrows) ListByUserTx(ctx context.Context, tx bun.IDB, userID int64) ([]*Borrow, error) {
	records, _, err := r.ListTx(ctx, tx,
		repository.Paginate(0, 0),
		repository.SelectBy("user_id", "=", formatID(userID)),
		repository.SelectOrderAsc("id"),
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}
