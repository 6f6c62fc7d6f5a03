package library

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	ExistsByUsernameTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID:     func(*User) uuid.UUID { return uuid.Nil },
		SetID:     func(*User, uuid.UUID) {},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{Repository: repo, db: db}
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx looks a user up by email when the identifier parses as an
// address and falls back to username.
func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	var lastErr error = repository.ErrRecordNotFound

	for _, opt := range resolveUserIdentifier(identifier) {
		selectors := append([]repository.SelectCriteria{
			repository.SelectBy(opt.column, "=", opt.value),
		}, criteria...)

		record, err := a.GetTx(ctx, tx, selectors...)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, lastErr
}

func (a *users) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return a.exists(ctx, tx, "email", email)
}

func (a *users) ExistsByUsernameTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return a.exists(ctx, tx, "username", username)
}

func (a *users) exists(ctx context.Context, tx bun.IDB, column, value string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Apply(repository.SelectBy(column, "=", value)).
		Exists(ctx)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleMember
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	record.Email = strings.TrimSpace(record.Email)
	record.Username = strings.TrimSpace(record.Username)
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
