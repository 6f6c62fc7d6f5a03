package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goconfig "github.com/goliatone/go-config/config"
	"github.com/knadh/koanf/v2"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	EnvPrefix = "LIBRARY_"

	defaultSigningKey = "change-me-in-production"
	envDelimiter      = "__"
	databaseURLEnv    = "DATABASE_URL"
)

// file first, then LIBRARY_* variables, then DATABASE_URL
const (
	orderFile        = 10
	orderEnv         = 20
	orderDatabaseURL = 30
)

type BaseConfig struct {
	Server      Server      `koanf:"server" json:"server"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Auth        Auth        `koanf:"auth" json:"auth"`
	Logging     Logging     `koanf:"logging" json:"logging"`
}

type Server struct {
	Addr                   string `koanf:"addr" json:"addr"`
	ShutdownTimeoutExpr    string `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	RequestLogging         bool   `koanf:"request_logging" json:"request_logging"`
	ReadTimeoutExpression  string `koanf:"read_timeout" json:"read_timeout"`
	WriteTimeoutExpression string `koanf:"write_timeout" json:"write_timeout"`
}

type Persistence struct {
	Driver                string `koanf:"driver" json:"driver"`
	DSN                   string `koanf:"dsn" json:"-"`
	Debug                 bool   `koanf:"debug" json:"debug"`
	AutoMigrate           bool   `koanf:"auto_migrate" json:"auto_migrate"`
	MaxOpenConns          int    `koanf:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns          int    `koanf:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeExpr   string `koanf:"conn_max_lifetime" json:"conn_max_lifetime"`
	PingTimeoutExpression string `koanf:"ping_timeout" json:"ping_timeout"`
	OtelIdentifier        string `koanf:"otel_identifier" json:"otel_identifier"`
}

type Auth struct {
	SigningKey          string   `koanf:"signing_key" json:"-"`
	SigningMethod       string   `koanf:"signing_method" json:"signing_method"`
	ContextKey          string   `koanf:"context_key" json:"context_key"`
	TokenExpirationExpr string   `koanf:"token_expiration" json:"token_expiration"`
	TokenLookup         string   `koanf:"token_lookup" json:"token_lookup"`
	AuthScheme          string   `koanf:"auth_scheme" json:"auth_scheme"`
	Issuer              string   `koanf:"issuer" json:"issuer"`
	Audience            []string `koanf:"audience" json:"audience"`
	PasswordCost        int      `koanf:"password_cost" json:"password_cost"`
}

type Logging struct {
	Level string `koanf:"level" json:"level"`
}

// Defaults returns a configuration that runs against a local SQLite file
func Defaults() *BaseConfig {
	return &BaseConfig{
		Server: Server{
			Addr:                   ":8000",
			ShutdownTimeoutExpr:    "10s",
			ReadTimeoutExpression:  "15s",
			WriteTimeoutExpression: "15s",
			RequestLogging:         true,
		},
		Persistence: Persistence{
			Driver:                DriverSQLite,
			DSN:                   "file:library.db?cache=shared",
			AutoMigrate:           true,
			MaxOpenConns:          10,
			MaxIdleConns:          5,
			ConnMaxLifetimeExpr:   "5m",
			PingTimeoutExpression: "5s",
		},
		Auth: Auth{
			SigningKey:          defaultSigningKey,
			SigningMethod:       "HS256",
			ContextKey:          "user",
			TokenExpirationExpr: "30m",
			TokenLookup:         "header:Authorization",
			AuthScheme:          "Bearer",
			Issuer:              "librarian",
			PasswordCost:        12,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, then validates it. Environment keys use the
// LIBRARY_ prefix and a double underscore between sections, for example
// LIBRARY_AUTH__SIGNING_KEY. DATABASE_URL is honoured as the DSN.
func Load(path string) (*BaseConfig, error) {
	return LoadContext(context.Background(), path)
}

// LoadContext is Load bounded by ctx
func LoadContext(ctx context.Context, path string) (*BaseConfig, error) {
	loaders := []goconfig.LoaderBuilder[*BaseConfig]{}
	if path != "" {
		loaders = append(loaders, goconfig.FileProvider[*BaseConfig](path, orderFile))
	}
	loaders = append(loaders,
		goconfig.EnvProvider[*BaseConfig](EnvPrefix, envDelimiter, orderEnv),
		DatabaseURLProvider(os.LookupEnv),
	)

	container, err := goconfig.New(Defaults(),
		goconfig.WithoutDefualtConfigPath[*BaseConfig](),
		goconfig.WithLoader(loaders...),
	)
	if err != nil {
		return nil, err
	}

	if err := container.Load(ctx); err != nil {
		return nil, err
	}

	return container.Raw(), nil
}

// DatabaseURLProvider maps DATABASE_URL onto the persistence DSN and selects
// the postgres driver when the URL uses a postgres scheme.
func DatabaseURLProvider(lookup func(string) (string, bool)) goconfig.LoaderBuilder[*BaseConfig] {
	return func(*goconfig.Container[*BaseConfig]) (goconfig.Loader, error) {
		return goconfig.Loader{
			Type:  goconfig.LoaderTypeEnv,
			Order: orderDatabaseURL,
			Load: func(_ context.Context, k *koanf.Koanf) error {
				v, ok := lookup(databaseURLEnv)
				if !ok || v == "" {
					return nil
				}
				if err := k.Set("persistence.dsn", v); err != nil {
					return err
				}
				if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
					return k.Set("persistence.driver", DriverPostgres)
				}
				return nil
			},
		}, nil
	}
}

func (a BaseConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Server),
		validation.Field(&a.Persistence),
		validation.Field(&a.Auth),
		validation.Field(&a.Logging),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.ShutdownTimeoutExpr, validation.By(durationRule)),
		validation.Field(&s.ReadTimeoutExpression, validation.By(durationRule)),
		validation.Field(&s.WriteTimeoutExpression, validation.By(durationRule)),
	)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&p.DSN, validation.Required),
		validation.Field(&p.MaxOpenConns, validation.Min(0)),
		validation.Field(&p.ConnMaxLifetimeExpr, validation.By(durationRule)),
		validation.Field(&p.PingTimeoutExpression, validation.By(durationRule)),
	)
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(8, 0)),
		validation.Field(&a.SigningMethod, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&a.ContextKey, validation.Required, is.Alphanumeric),
		validation.Field(&a.TokenExpirationExpr, validation.Required, validation.By(durationRule)),
		validation.Field(&a.TokenLookup, validation.Required),
		validation.Field(&a.PasswordCost, validation.Min(4), validation.Max(31)),
	)
}

func (l Logging) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "error")),
	)
}

func durationRule(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	return nil
}

// UsesDefaultSigningKey reports whether the signing key was never overridden
func (a BaseConfig) UsesDefaultSigningKey() bool {
	return a.Auth.SigningKey == defaultSigningKey
}
