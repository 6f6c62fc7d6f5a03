package library

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// BookPayload is the admin input for creating or replacing a book
type BookPayload struct {
	Title  string `json:"title" form:"title"`
	Author string `json:"author" form:"author"`
	ISBN   string `json:"isbn" form:"isbn"`
}

// normalize trims title and author. The ISBN is kept verbatim so that
// surrounding whitespace fails the digits check.
func (p BookPayload) normalize() BookPayload {
	return BookPayload{
		Title:  strings.TrimSpace(p.Title),
		Author: strings.TrimSpace(p.Author),
		ISBN:   p.ISBN,
	}
}

// Validate reports the first failing field in title, author, isbn order
func (p BookPayload) Validate() error {
	p = p.normalize()

	checks := []struct {
		field string
		err   error
	}{
		{"title", validation.Validate(p.Title, validation.Required.Error("Title cannot be empty"))},
		{"author", validation.Validate(p.Author, validation.Required.Error("Author cannot be empty"))},
		{"isbn", validation.Validate(p.ISBN,
			validation.Required.Error("ISBN must be numeric"),
			is.Digit.Error("ISBN must be numeric"),
		)},
	}

	for _, c := range checks {
		if c.err != nil {
			return NewValidationError(c.err.Error(), map[string]any{"field": c.field})
		}
	}

	return nil
}

// Catalog manages the book inventory
type Catalog struct {
	repo     RepositoryManager
	logger   Logger
	activity activityRecorder
}

func NewCatalog(repo RepositoryManager) *Catalog {
	return &Catalog{
		repo:     repo,
		logger:   defLogger{},
		activity: activityRecorder{sink: noopActivitySink{}, now: time.Now},
	}
}

func (c *Catalog) WithLogger(logger Logger) *Catalog {
	c.logger = normalizeLogger(logger)
	c.activity.logger = c.logger
	return c
}

func (c *Catalog) WithActivitySink(sink ActivitySink) *Catalog {
	c.activity.sink = normalizeActivitySink(sink)
	return c
}

// Create adds a new, available book
func (c *Catalog) Create(ctx context.Context, payload BookPayload) (*Book, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	payload = payload.normalize()

	book := &Book{
		Title:  payload.Title,
		Author: payload.Author,
		ISBN:   payload.ISBN,
	}

	err := c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := c.repo.Books().ExistsByISBNTx(ctx, tx, book.ISBN, 0)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check isbn")
		}
		if taken {
			return ErrISBNExists
		}

		if _, err := c.repo.Books().CreateTx(ctx, tx, book); err != nil {
			if isUniqueViolation(err) {
				return ErrISBNExists
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create book")
		}
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "create book transaction failed")
	}

	c.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventBookCreated,
		BookID:    book.ID,
		Metadata:  map[string]any{"isbn": book.ISBN},
	})

	return book, nil
}

// Update replaces title, author and isbn of an existing book
func (c *Catalog) Update(ctx context.Context, id int64, payload BookPayload) (*Book, error) {
	var book *Book

	err := c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if book, err = c.repo.Books().LockByIDTx(ctx, tx, id); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrBookNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load book")
		}

		if err := payload.Validate(); err != nil {
			return err
		}
		payload = payload.normalize()

		taken, err := c.repo.Books().ExistsByISBNTx(ctx, tx, payload.ISBN, id)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check isbn")
		}
		if taken {
			return ErrISBNExists
		}

		book.Title = payload.Title
		book.Author = payload.Author
		book.ISBN = payload.ISBN

		if _, err := c.repo.Books().UpdateTx(ctx, tx, book); err != nil {
			if isUniqueViolation(err) {
				return ErrISBNExists
			}
			if repository.IsRecordNotFound(err) {
				return ErrBookNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update book")
		}
		return nil
	})
	if err != nil {
		return nil, wrapInternal(err, "update book transaction failed")
	}

	c.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventBookUpdated,
		BookID:    book.ID,
	})

	return book, nil
}

// Delete removes a book that is not on loan
func (c *Catalog) Delete(ctx context.Context, id int64) error {
	err := c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		book, err := c.repo.Books().LockByIDTx(ctx, tx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrBookNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load book")
		}

		onLoan, err := c.repo.Borrows().HasOpenForBookTx(ctx, tx, id)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check open borrows")
		}
		if onLoan || !book.Available {
			return ErrBookOnLoan
		}

		if err := c.repo.Books().DeleteTx(ctx, tx, book); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrBookNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete book")
		}
		return nil
	})
	if err != nil {
		return wrapInternal(err, "delete book transaction failed")
	}

	c.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventBookDeleted,
		BookID:    id,
	})

	return nil
}

func (c *Catalog) Get(ctx context.Context, id int64) (*Book, error) {
	book, err := c.repo.Books().GetByID(ctx, formatID(id))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrBookNotFound
		}
		return nil, wrapInternal(err, "failed to load book")
	}
	return book, nil
}

// List is the admin listing. An empty catalog is reported as ErrNoBooks.
func (c *Catalog) List(ctx context.Context) ([]*Book, error) {
	books, err := c.Browse(ctx)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, ErrNoBooks
	}
	return books, nil
}

// Browse is the public listing and may return an empty slice
func (c *Catalog) Browse(ctx context.Context) ([]*Book, error) {
	books, err := c.repo.Books().ListAll(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list books")
	}
	return books, nil
}
