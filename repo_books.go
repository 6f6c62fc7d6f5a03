package library

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type Books interface {
	repository.Repository[*Book]

	LockByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Book, error)
	ListAll(ctx context.Context) ([]*Book, error)
	ListAllTx(ctx context.Context, tx bun.IDB) ([]*Book, error)
	ExistsByISBNTx(ctx context.Context, tx bun.IDB, isbn string, excludeID int64) (bool, error)
	SetAvailableTx(ctx context.Context, tx bun.IDB, id int64, available bool) error
}

type books struct {
	repository.Repository[*Book]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Books                        = (*books)(nil)
	_ repository.Repository[*Book] = (*books)(nil)
)

func NewBooksRepository(db *bun.DB) Books {
	repo := repository.NewRepository[*Book](db, repository.ModelHandlers[*Book]{
		NewRecord: func() *Book { return &Book{} },
		// ids are assigned by the database
		GetID: func(*Book) uuid.UUID { return uuid.Nil },
		SetID: func(*Book, uuid.UUID) {},
		GetIdentifier: func() string {
			return "isbn"
		},
	})

	return &books{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

// LockByIDTx reads the book and, on Postgres, holds a row lock until the
// enclosing transaction ends.
func (r *books) LockByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Book, error) {
	return r.GetByIDTx(ctx, tx, formatID(id), repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		if tx.Dialect().Name() == dialect.PG {
			return q.For("UPDATE")
		}
		return q
	}))
}

// ListAll returns every live book ordered by id
func (r *books) ListAll(ctx context.Context) ([]*Book, error) {
	return r.ListAllTx(ctx, r.db)
}

func (r *books) ListAllTx(ctx context.Context, tx bun.IDB) ([]*Book, error) {
	records, _, err := r.ListTx(ctx, tx,
		repository.Paginate(0, 0),
		repository.SelectOrderAsc("id"),
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ExistsByISBNTx reports whether a live book other than excludeID uses isbn
func (r *books) ExistsByISBNTx(ctx context.Context, tx bun.IDB, isbn string, excludeID int64) (bool, error) {
	q := tx.NewSelect().
		Model((*Book)(nil)).
		Apply(repository.SelectBy("isbn", "=", isbn))

	if excludeID > 0 {
		q = q.Apply(repository.SelectBy("id", "<>", formatID(excludeID)))
	}

	return q.Exists(ctx)
}

// CreateTx stores a new book as available
func (r *books) CreateTx(ctx context.Context, tx bun.IDB, record *Book) (*Book, error) {
	now := r.now().UTC()
	record.Available = true
	record.CreatedAt = now
	record.UpdatedAt = now

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *books) Create(ctx context.Context, record *Book) (*Book, error) {
	return r.CreateTx(ctx, r.db, record)
}

// UpdateTx writes the descriptive columns. Availability only changes through
// SetAvailableTx.
func (r *books) UpdateTx(ctx context.Context, tx bun.IDB, record *Book, criteria ...repository.UpdateCriteria) (*Book, error) {
	record.UpdatedAt = r.now().UTC()

	criteria = append([]repository.UpdateCriteria{
		repository.UpdateColumns("title", "author", "isbn", "updated_at"),
	}, criteria...)

	return r.Repository.UpdateTx(ctx, tx, record, criteria...)
}

func (r *books) Update(ctx context.Context, record *Book, criteria ...repository.UpdateCriteria) (*Book, error) {
	return r.UpdateTx(ctx, r.db, record, criteria...)
}

// SetAvailableTx flips the available flag of a live book. The update only
// matches while the flag still holds the opposite value, so a concurrent flip
// surfaces as repository.ErrSQLExpectedCountViolation.
func (r *books) SetAvailableTx(ctx context.Context, tx bun.IDB, id int64, available bool) error {
	res, err := tx.NewUpdate().
		Model(&Book{}).
		Apply(
			repository.UpdateSetColumn("available", available),
			repository.UpdateSetColumn("updated_at", r.now().UTC()),
			repository.UpdateByID(formatID(id)),
			repository.UpdateRawProcessor(func(q *bun.UpdateQuery) *bun.UpdateQuery {
				return q.Where("?TableAlias.available = ?", !available)
			}),
		).
		Exec(ctx)
	if err != nil {
		return err
	}

	return repository.SQLExpectedCount(res, 1)
}
