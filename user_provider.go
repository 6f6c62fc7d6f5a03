package library

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// UserStore is the lookup surface UserProvider needs
type UserStore interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
}

// UserProvider handles users
type UserProvider struct {
	store     UserStore
	Validator func(*User) error
	logger    Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserStore) *UserProvider {
	return &UserProvider{
		store:     store,
		logger:    defLogger{},
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// VerifyIdentity will find the user, compare to the password, and return identity.
// Unknown identifiers and wrong passwords both yield ErrMismatchedHashAndPassword.
func (u UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// spend the same bcrypt time as a real comparison
			_ = ComparePasswordAndHash(password, placeholderHash())
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		normalizeLogger(u.logger).Debug("password verification failed", "user_id", user.ID)
		return nil, ErrMismatchedHashAndPassword
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return NewIdentity(user), nil
}

// FindUserByID resolves the user behind a token subject
func (u UserProvider) FindUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := u.store.GetByID(ctx, formatID(id))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return user, nil
}

var (
	_ IdentityProvider = UserProvider{}
	_ UserStore        = (Users)(nil)
)

func defaultValidator(u *User) error {
	if u == nil {
		return ErrIdentityNotFound
	}
	if !u.Role.IsValid() {
		return goerrors.New("user has an unknown or invalid role", goerrors.CategoryAuth).
			WithTextCode("INVALID_ROLE").
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"role": u.Role, "user_id": u.ID})
	}
	return nil
}

var (
	placeholderOnce sync.Once
	placeholder     string
)

func placeholderHash() string {
	placeholderOnce.Do(func() {
		placeholder, _ = HashPassword("placeholder-password")
	})
	return placeholder
}
