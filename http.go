package library

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-library/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the body written for every failed request
type ErrorResponse struct {
	Detail   string `json:"detail"`
	TextCode string `json:"text_code,omitempty"`
}

// MessageResponse is the body for operations that only acknowledge success
type MessageResponse struct {
	Message string `json:"message"`
}

// NewApp returns a fiber app using jsoniter and the JSON error envelope
func NewApp(logger Logger, configure ...func(*fiber.Config)) *fiber.App {
	cfg := fiber.Config{
		AppName:               "librarian",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          ErrorHandler(logger),
	}

	for _, fn := range configure {
		if fn != nil {
			fn(&cfg)
		}
	}

	app := fiber.New(cfg)
	app.Use(recover.New())
	app.Use(requestid.New())

	return app
}

// NewServer wraps the app returned by NewApp in a go-router server. Routes are
// registered through server.Router().
func NewServer(logger Logger, configure ...func(*fiber.Config)) router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return NewApp(logger, configure...)
	})
}

// ErrorHandler renders errors as {"detail": ...}. *goerrors.Error values use
// their code, falling back to a status derived from the category.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Detail: fiberErr.Message})
		}

		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
				WithCode(goerrors.CodeInternal)
		}

		status := StatusFor(richErr)
		detail := richErr.Message

		if status >= http.StatusInternalServerError {
			logger.Error(
				"request failed",
				"path", c.Path(),
				"method", c.Method(),
				"error", err,
				"category", richErr.Category,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
			detail = "Internal server error"
		} else {
			logger.Debug(
				"request rejected",
				"path", c.Path(),
				"status", status,
				"error", richErr.Message,
				"text_code", richErr.TextCode,
			)
		}

		return c.Status(status).JSON(ErrorResponse{
			Detail:   detail,
			TextCode: richErr.TextCode,
		})
	}
}

// StatusFor maps an error to an HTTP status
func StatusFor(err *goerrors.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	if err.Code >= 400 && err.Code < 600 {
		return err.Code
	}

	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryConflict:
		return http.StatusBadRequest
	case goerrors.CategoryBadInput:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ProtectedRoute validates the bearer token and stores its claims under
// cfg.GetContextKey().
func ProtectedRoute(tokens TokenService, cfg Config) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		TokenValidator: claimsValidator{tokens: tokens},
		ContextKey:     cfg.GetContextKey(),
		TokenLookup:    cfg.GetTokenLookup(),
		AuthScheme:     cfg.GetAuthScheme(),
		ErrorHandler:   authErrorHandler,
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			if ac, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, ac)
			}
			return ctx
		},
	})
}

// LoadUser resolves the user named by the token claims. It must run after
// ProtectedRoute.
func LoadUser(auther *Auther, contextKey string) router.MiddlewareFunc {
	return func(_ router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			claims, ok := GetRouterClaims(c, contextKey)
			if !ok {
				return ErrNotAuthenticated
			}

			user, err := auther.UserFromClaims(c.Context(), claims)
			if err != nil {
				return err
			}

			c.Locals(LocalsUserKey, user)
			c.SetContext(WithContext(c.Context(), user))

			return c.Next()
		}
	}
}

// AdminOnly rejects members. It must run after LoadUser.
func AdminOnly() router.MiddlewareFunc {
	return func(_ router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return ErrNotAuthenticated
			}

			if _, err := RequireAdmin(user); err != nil {
				return err
			}

			return c.Next()
		}
	}
}

func authErrorHandler(_ router.Context, err error) error {
	switch {
	case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
		return ErrNotAuthenticated
	case errors.Is(err, jwtware.ErrRoleDenied):
		return ErrAdminOnly
	case IsTokenExpiredError(err):
		return ErrTokenExpired
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return ErrTokenMalformed
}

type claimsValidator struct {
	tokens TokenService
}

func (v claimsValidator) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := v.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
