package library_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(clock *fixedClock) *library.TokenServiceImpl {
	logger := &MockLogger{}
	logger.On("Error", mock.Anything, mock.Anything).Maybe()

	return library.NewTokenService(
		[]byte("test-signing-key"),
		30*time.Minute,
		"librarian-test",
		nil,
		logger,
		library.WithTokenClock(clock.Now),
	)
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	ts := newTestTokenService(clock)

	token, err := ts.Issue("42", "admin", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, "42", claims.Subject())
	assert.Equal(t, "42", claims.UserID())
	assert.Equal(t, "admin", claims.Role())
	assert.True(t, claims.HasRole("admin"))
	assert.True(t, claims.IsAtLeast("member"))
	assert.Equal(t, clock.t.Add(30*time.Minute), claims.Expires().UTC())
	assert.Equal(t, clock.t, claims.IssuedAt().UTC())
}

func TestTokenService_Generate(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	ts := newTestTokenService(clock)

	user := &library.User{ID: 7, Username: "ada", Email: "ada@example.com", Role: library.RoleMember}

	token, err := ts.Generate(library.NewIdentity(user))
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	id, err := library.ParseUserID(claims)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "member", claims.Role())
}

func TestTokenService_Expired(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	ts := newTestTokenService(clock)

	token, err := ts.Issue("1", "member", time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = ts.Validate(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, library.ErrTokenExpired)
	assert.True(t, library.IsTokenExpiredError(err))
}

func TestTokenService_Rejects(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	ts := newTestTokenService(clock)

	valid, err := ts.Issue("1", "member", 0)
	require.NoError(t, err)

	other := library.NewTokenService([]byte("another-key"), time.Minute, "librarian-test", nil, nil)
	foreign, err := other.Issue("1", "admin", 0)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"iss": "librarian-test",
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"tampered payload", valid[:len(valid)-2] + "xx"},
		{"wrong key", foreign},
		{"alg none", none},
		{"missing exp", noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(tt.token)
			assert.ErrorIs(t, err, library.ErrTokenMalformed)
			assert.True(t, library.IsMalformedError(err))
		})
	}
}

func TestTokenService_Issue_InvalidInput(t *testing.T) {
	ts := newTestTokenService(&fixedClock{t: time.Now()})

	_, err := ts.Issue("", "member", 0)
	assert.Error(t, err)

	_, err = ts.Issue("1", "member", -time.Second)
	assert.Error(t, err)

	_, err = ts.Generate(nil)
	assert.Error(t, err)
}

func TestTokenService_Refresh(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	ts := newTestTokenService(clock)

	token, err := ts.Issue("5", "admin", 0)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	fresh, err := ts.Refresh(token)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)

	claims, err := ts.Validate(fresh)
	require.NoError(t, err)
	assert.Equal(t, "5", claims.Subject())
	assert.Equal(t, "admin", claims.Role())
	assert.Equal(t, clock.t.Add(30*time.Minute), claims.Expires().UTC())

	clock.Advance(time.Hour)
	_, err = ts.Refresh(fresh)
	assert.ErrorIs(t, err, library.ErrTokenExpired)
}

func TestTokenService_SigningMethod(t *testing.T) {
	ts := library.NewTokenService([]byte("k3y-for-hs512"), 0, "", nil, nil, library.WithSigningMethod("HS512"))
	assert.Equal(t, library.DefaultTokenExpiration, ts.TokenExpiration())

	token, err := ts.Issue("9", "member", 0)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS512", parsed.Method.Alg())

	_, err = ts.Validate(token)
	assert.NoError(t, err)
}

func TestTokenService_UniqueTokenIDs(t *testing.T) {
	ts := newTestTokenService(&fixedClock{t: time.Now()})

	a, err := ts.Issue("1", "member", 0)
	require.NoError(t, err)
	b, err := ts.Issue("1", "member", 0)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func newDecoratedTokenService(decorator library.ClaimsDecorator) *library.TokenServiceImpl {
	logger := &MockLogger{}
	logger.On("Error", mock.Anything, mock.Anything).Maybe()

	return library.NewTokenService(
		[]byte("test-signing-key"),
		30*time.Minute,
		"librarian-test",
		nil,
		logger,
		library.WithClaimsDecorator(decorator),
	)
}

func TestTokenService_ClaimsDecorator(t *testing.T) {
	ts := newDecoratedTokenService(library.ClaimsDecoratorFunc(func(claims *library.JWTClaims) error {
		claims.Metadata = map[string]any{"branch": "central"}
		return nil
	}))

	token, err := ts.Issue("3", "member", 0)
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	jwtClaims, ok := claims.(*library.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "central", jwtClaims.Metadata["branch"])

	refreshed, err := ts.Refresh(token)
	require.NoError(t, err)
	claims, err = ts.Validate(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "central", claims.(*library.JWTClaims).Metadata["branch"])
}

func TestTokenService_ClaimsDecorator_ProtectedClaims(t *testing.T) {
	cases := map[string]func(*library.JWTClaims){
		"role": func(c *library.JWTClaims) { c.UserRole = "admin" },
		"sub":  func(c *library.JWTClaims) { c.RegisteredClaims.Subject = "99" },
		"exp": func(c *library.JWTClaims) {
			c.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(24 * time.Hour))
		},
		"aud": func(c *library.JWTClaims) { c.RegisteredClaims.Audience = jwt.ClaimStrings{"other"} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ts := newDecoratedTokenService(library.ClaimsDecoratorFunc(func(claims *library.JWTClaims) error {
				mutate(claims)
				return nil
			}))

			token, err := ts.Issue("3", "member", 0)
			require.Error(t, err)
			assert.Empty(t, token)

			var richErr *goerrors.Error
			require.ErrorAs(t, err, &richErr)
			assert.Equal(t, library.TextCodeImmutableClaim, richErr.TextCode)
			assert.Equal(t, name, richErr.Metadata["claim"])
		})
	}
}

func TestTokenService_ClaimsDecorator_Error(t *testing.T) {
	ts := newDecoratedTokenService(library.ClaimsDecoratorFunc(func(*library.JWTClaims) error {
		return assert.AnError
	}))

	_, err := ts.Issue("3", "member", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTokenService_Audience(t *testing.T) {
	newService := func(audience jwt.ClaimStrings) *library.TokenServiceImpl {
		logger := &MockLogger{}
		logger.On("Error", mock.Anything, mock.Anything).Maybe()
		return library.NewTokenService([]byte("test-signing-key"), 30*time.Minute, "librarian-test", audience, logger)
	}

	api := newService(jwt.ClaimStrings{"librarian-api"})

	token, err := api.Issue("12", "member", 0)
	require.NoError(t, err)

	claims, err := api.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "12", claims.Subject())

	_, err = newService(jwt.ClaimStrings{"reporting"}).Validate(token)
	assert.ErrorIs(t, err, library.ErrTokenMalformed)

	unscoped, err := newService(nil).Issue("12", "member", 0)
	require.NoError(t, err)
	_, err = api.Validate(unscoped)
	assert.ErrorIs(t, err, library.ErrTokenMalformed)
}
