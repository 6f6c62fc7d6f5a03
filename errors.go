package library

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeNotAuthenticated    = "NOT_AUTHENTICATED"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeAdminOnly           = "ADMIN_ONLY"
	TextCodeEmailRegistered     = "EMAIL_REGISTERED"
	TextCodeUsernameTaken       = "USERNAME_TAKEN"
	TextCodeBookNotFound        = "BOOK_NOT_FOUND"
	TextCodeNoBooks             = "NO_BOOKS"
	TextCodeISBNExists          = "ISBN_EXISTS"
	TextCodeBookUnavailable     = "BOOK_UNAVAILABLE"
	TextCodeNoActiveBorrow      = "NO_ACTIVE_BORROW"
	TextCodeBookOnLoan          = "BOOK_ON_LOAN"
	TextCodeValidation          = "VALIDATION_FAILED"
	TextCodeInvalidPayload      = "INVALID_PAYLOAD"
	TextCodeInvalidTransition   = "INVALID_BOOK_STATE_TRANSITION"
	TextCodeUnexpectedSignature = "UNEXPECTED_SIGNING_METHOD"
	TextCodeImmutableClaim      = "IMMUTABLE_CLAIM_MUTATION"
)

// ErrTokenExpired is returned when the token exp claim is in the past
var ErrTokenExpired = goerrors.New("Invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed covers bad signatures, wrong algorithms and garbage input
var ErrTokenMalformed = goerrors.New("Invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotAuthenticated is returned when a protected route gets no bearer token
var ErrNotAuthenticated = goerrors.New("Not authenticated", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned for unknown identifiers and wrong
// passwords alike
var ErrMismatchedHashAndPassword = goerrors.New("Invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("Password cannot be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is the error we return when a token subject has no user
var ErrIdentityNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAdminOnly is returned when a member calls an admin operation
var ErrAdminOnly = goerrors.New("Access forbidden: Admins only", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAdminOnly).
	WithCode(http.StatusForbidden)

var ErrEmailRegistered = goerrors.New("Email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailRegistered).
	WithCode(goerrors.CodeBadRequest)

var ErrUsernameTaken = goerrors.New("Username already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeBadRequest)

var ErrBookNotFound = goerrors.New("Book not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeBookNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoBooks is returned by the admin listing when the catalog is empty
var ErrNoBooks = goerrors.New("No books found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoBooks).
	WithCode(goerrors.CodeNotFound)

var ErrISBNExists = goerrors.New("ISBN already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeISBNExists).
	WithCode(goerrors.CodeBadRequest)

// ErrBookUnavailable is returned when borrowing a book that is on loan
var ErrBookUnavailable = goerrors.New("Book is not available", goerrors.CategoryConflict).
	WithTextCode(TextCodeBookUnavailable).
	WithCode(goerrors.CodeBadRequest)

// ErrNoActiveBorrow is returned when returning a book the caller does not hold
var ErrNoActiveBorrow = goerrors.New("No active borrow record found for this book", goerrors.CategoryConflict).
	WithTextCode(TextCodeNoActiveBorrow).
	WithCode(goerrors.CodeBadRequest)

// ErrBookOnLoan is returned when deleting a book with an open borrow
var ErrBookOnLoan = goerrors.New("Book is currently borrowed", goerrors.CategoryConflict).
	WithTextCode(TextCodeBookOnLoan).
	WithCode(goerrors.CodeBadRequest)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// NewValidationError builds a 400 validation error with a client facing message
func NewValidationError(message string, metadata ...map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
	if len(metadata) > 0 && metadata[0] != nil {
		err = err.WithMetadata(metadata[0])
	}
	return err
}

// NewBadInputError builds a 422 error for payloads that cannot be processed
func NewBadInputError(message string, metadata ...map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidPayload).
		WithCode(http.StatusUnprocessableEntity)
	if len(metadata) > 0 && metadata[0] != nil {
		err = err.WithMetadata(metadata[0])
	}
	return err
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) || errors.Is(err, jwt.ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) || errors.Is(err, jwt.ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

func wrapInternal(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal)
}
