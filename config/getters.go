package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

func (a BaseConfig) GetServer() Server {
	return a.Server
}

func (a BaseConfig) GetPersistence() Persistence {
	return a.Persistence
}

func (a BaseConfig) GetAuth() Auth {
	return a.Auth
}

func (a BaseConfig) GetLogging() Logging {
	return a.Logging
}

func (s Server) GetAddr() string {
	return s.Addr
}

func (s Server) GetShutdownTimeout() time.Duration {
	return mustDuration(s.ShutdownTimeoutExpr, 10*time.Second)
}

func (s Server) GetReadTimeout() time.Duration {
	return mustDuration(s.ReadTimeoutExpression, 0)
}

func (s Server) GetWriteTimeout() time.Duration {
	return mustDuration(s.WriteTimeoutExpression, 0)
}

func (p Persistence) GetDriver() string {
	return p.Driver
}

func (p Persistence) GetDSN() string {
	return p.DSN
}

func (p Persistence) GetDebug() bool {
	return p.Debug
}

// GetServer returns the host part of the DSN, empty for file databases
func (p Persistence) GetServer() string {
	if u, err := url.Parse(p.DSN); err == nil && u.Host != "" {
		return u.Host
	}
	return dsnField(p.DSN, "host")
}

// GetDatabase returns the database name, or the file for SQLite
func (p Persistence) GetDatabase() string {
	u, err := url.Parse(p.DSN)
	if err == nil {
		switch {
		case u.Host != "":
			return strings.TrimPrefix(u.Path, "/")
		case u.Opaque != "":
			return u.Opaque
		}
	}
	if name := dsnField(p.DSN, "dbname"); name != "" {
		return name
	}
	if err == nil {
		return u.Path
	}
	return ""
}

func (p Persistence) GetOtelIdentifier() string {
	return p.OtelIdentifier
}

func (p Persistence) GetMaxOpenConns() int {
	return p.MaxOpenConns
}

func (p Persistence) GetMaxIdleConns() int {
	return p.MaxIdleConns
}

func (p Persistence) GetConnMaxLifetime() time.Duration {
	return mustDuration(p.ConnMaxLifetimeExpr, 0)
}

func (p Persistence) GetPingTimeout() time.Duration {
	return mustDuration(p.PingTimeoutExpression, 5*time.Second)
}

func (a Auth) GetSigningKey() string {
	return a.SigningKey
}

func (a Auth) GetSigningMethod() string {
	return a.SigningMethod
}

func (a Auth) GetContextKey() string {
	return a.ContextKey
}

func (a Auth) GetTokenExpiration() time.Duration {
	return mustDuration(a.TokenExpirationExpr, 30*time.Minute)
}

func (a Auth) GetTokenLookup() string {
	return a.TokenLookup
}

func (a Auth) GetAuthScheme() string {
	return a.AuthScheme
}

func (a Auth) GetIssuer() string {
	return a.Issuer
}

func (a Auth) GetAudience() []string {
	return a.Audience
}

func (a Auth) GetPasswordCost() int {
	return a.PasswordCost
}

// dsnField reads a key from a "host=x dbname=y" style DSN
func dsnField(dsn, key string) string {
	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}

func mustDuration(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}
