package library

import (
	"context"
	"reflect"
	"time"
)

type Auther struct {
	provider     IdentityProvider
	cfg          Config
	logger       Logger
	tokenService TokenService
	ownsTokens   bool
	activity     activityRecorder
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	return &Auther{
		provider:     provider,
		cfg:          opts,
		logger:       defLogger{},
		tokenService: NewTokenServiceFromConfig(opts, defLogger{}),
		ownsTokens:   true,
		activity:     activityRecorder{sink: noopActivitySink{}, now: time.Now},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.activity.logger = s.logger
	if s.ownsTokens {
		s.tokenService = NewTokenServiceFromConfig(s.cfg, s.logger)
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity.sink = normalizeActivitySink(sink)
	return s
}

// WithTokenService replaces the token service, e.g. one with a custom clock
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
		s.ownsTokens = false
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and returns a signed access token
func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.activity.emit(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata: map[string]any{
				"identifier": identifier,
				"error":      err.Error(),
			},
		})
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.activity.emit(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata:  map[string]any{"identifier": identifier},
		})
		return "", ErrMismatchedHashAndPassword
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.logger.Error("Login failed to generate token", "error", err)
		return "", err
	}

	s.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: identity.ID(), Type: identity.Role()},
		UserID:    identity.ID(),
		Metadata:  map[string]any{"identifier": identifier},
	})

	return token, nil
}

// Refresh issues a new token with the same subject and role. The subject is
// not checked against the user store, so a token for a deleted user can be
// refreshed until it expires.
func (s *Auther) Refresh(ctx context.Context, token string) (string, error) {
	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return "", err
	}

	fresh, err := s.tokenService.Issue(claims.UserID(), claims.Role(), 0)
	if err != nil {
		return "", err
	}

	s.activity.emit(ctx, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		Actor:     ActorRef{ID: claims.UserID(), Type: claims.Role()},
		UserID:    claims.UserID(),
	})

	return fresh, nil
}

// Authenticate validates a bearer token and loads the user it names
func (s *Auther) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return nil, err
	}
	return s.UserFromClaims(ctx, claims)
}

// UserFromClaims loads the user named by already validated claims
func (s *Auther) UserFromClaims(ctx context.Context, claims AuthClaims) (*User, error) {
	id, err := ParseUserID(claims)
	if err != nil {
		return nil, err
	}

	user, err := s.provider.FindUserByID(ctx, id)
	if err != nil {
		s.logger.Debug("token subject could not be resolved", "subject", claims.Subject(), "error", err)
		return nil, err
	}

	return user, nil
}

// RequireAdmin fails with ErrAdminOnly unless user is an admin
func RequireAdmin(user *User) (*User, error) {
	if !user.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return user, nil
}
