package library

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is the access token lifetime used when none is configured
const DefaultTokenExpiration = 30 * time.Minute

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	signingMethod   jwt.SigningMethod
	tokenExpiration time.Duration
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
	now             func() time.Time
	decorator       ClaimsDecorator
}

// TokenServiceOption customizes a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock injects a custom clock used to stamp and check tokens
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithSigningMethod selects one of the HMAC algorithms (HS256, HS384, HS512)
func WithSigningMethod(alg string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); ok {
			ts.signingMethod = m
		}
	}
}

// WithClaimsDecorator registers a hook that may add extension claims to
// every issued token
func WithClaimsDecorator(decorator ClaimsDecorator) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.decorator = decorator
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, tokenExpiration time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger, opts ...TokenServiceOption) *TokenServiceImpl {
	if tokenExpiration <= 0 {
		tokenExpiration = DefaultTokenExpiration
	}

	ts := &TokenServiceImpl{
		signingKey:      signingKey,
		signingMethod:   jwt.SigningMethodHS256,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          normalizeLogger(logger),
		now:             time.Now,
		decorator:       noopClaimsDecorator{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	ts.decorator = normalizeClaimsDecorator(ts.decorator)

	return ts
}

// NewTokenServiceFromConfig builds a TokenService from auth options
func NewTokenServiceFromConfig(cfg Config, logger Logger, opts ...TokenServiceOption) *TokenServiceImpl {
	opts = append([]TokenServiceOption{WithSigningMethod(cfg.GetSigningMethod())}, opts...)
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
		opts...,
	)
}

// TokenExpiration returns the configured access token lifetime
func (ts *TokenServiceImpl) TokenExpiration() time.Duration {
	return ts.tokenExpiration
}

// Generate creates a JWT token for the given identity
func (ts *TokenServiceImpl) Generate(identity Identity) (string, error) {
	if identity == nil {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}
	return ts.Issue(identity.ID(), identity.Role(), ts.tokenExpiration)
}

// Issue signs a token for subject and role valid for ttl
func (ts *TokenServiceImpl) Issue(subject, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", goerrors.New("token subject is required", goerrors.CategoryBadInput)
	}

	if ttl < 0 {
		return "", goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	if ttl == 0 {
		ttl = ts.tokenExpiration
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:      subject,
		UserRole: role,
	}

	ensureTokenID(&claims.RegisteredClaims)

	snapshot := captureImmutableClaims(claims)
	if err := ts.decorator.Decorate(claims); err != nil {
		ts.logger.Error("TokenService claims decorator failed", "error", err)
		return "", err
	}
	if err := snapshot.validate(claims); err != nil {
		ts.logger.Error("TokenService claims decorator mutated a protected claim", "error", err)
		return "", err
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(ts.signingMethod, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrUnableToMapClaims
}

// Refresh validates tokenString and issues a fresh token for the same
// subject and role. The user store is not consulted.
func (ts *TokenServiceImpl) Refresh(tokenString string) (string, error) {
	claims, err := ts.Validate(tokenString)
	if err != nil {
		return "", err
	}
	return ts.Issue(claims.UserID(), claims.Role(), ts.tokenExpiration)
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil || claims.ID != "" {
		return
	}
	claims.ID = uuid.NewString()
}
