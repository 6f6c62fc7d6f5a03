package library

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the logging contract used across the package. It matches the
// shape of glog.Logger so a go-logger instance can be passed directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated account
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
}

// TokenService issues and validates access tokens
type TokenService interface {
	Generate(identity Identity) (string, error)
	Issue(subject, role string, ttl time.Duration) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	Refresh(tokenString string) (string, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] LIBRARY " + formatLine(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] LIBRARY " + formatLine(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] LIBRARY " + formatLine(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] LIBRARY " + formatLine(msg, args...))
}

// formatLine renders slog style key/value pairs after the message
func formatLine(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(msg, "\n"))
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteByte('\n')
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
