package library

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Role     string `json:"role" form:"role"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the payload. Empty fields are reported first, one at a
// time, followed by format errors for email and role.
func (e RegisterUserMessage) Validate() error {
	required := []struct {
		value   string
		message string
	}{
		{e.Username, "Username cannot be empty"},
		{e.Email, "Email cannot be empty"},
		{e.Password, "Password cannot be empty"},
	}

	for _, field := range required {
		if err := validation.Validate(strings.TrimSpace(field.value), validation.Required.Error(field.message)); err != nil {
			return NewValidationError(err.Error())
		}
	}

	err := validation.ValidateStruct(&e,
		validation.Field(&e.Email, is.Email.Error("value is not a valid email address")),
		validation.Field(&e.Role, validation.By(func(value any) error {
			if _, ok := ParseRole(value.(string)); !ok {
				return errors.New("role must be admin or member")
			}
			return nil
		})),
	)
	if err != nil {
		fields := map[string]any{}
		if errs, ok := err.(validation.Errors); ok {
			for k, v := range errs {
				fields[k] = v.Error()
			}
		}
		return NewBadInputError("Invalid signup payload", fields)
	}

	return nil
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	logger   Logger
	activity activityRecorder
}

func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		logger:   defLogger{},
		activity: activityRecorder{sink: noopActivitySink{}, now: time.Now},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	h.activity.logger = h.logger
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity.sink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	role, _ := ParseRole(event.Role)

	hash, err := HashPassword(event.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     strings.TrimSpace(event.Username),
		Email:        strings.TrimSpace(event.Email),
		PasswordHash: hash,
		Role:         role,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := h.repo.Users().ExistsByEmailTx(ctx, tx, user.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
		}
		if exists {
			return ErrEmailRegistered
		}

		exists, err = h.repo.Users().ExistsByUsernameTx(ctx, tx, user.Username)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username")
		}
		if exists {
			return ErrUsernameTaken
		}

		if _, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			if isUniqueViolation(err) {
				if strings.Contains(violatedConstraint(err), "email") {
					return ErrEmailRegistered
				}
				return ErrUsernameTaken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		return nil
	})

	if err != nil {
		return nil, wrapInternal(err, "user registration transaction failed")
	}

	h.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	h.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     actorFromUser(user),
		UserID:    actorFromUser(user).ID,
	})

	return user, nil
}
