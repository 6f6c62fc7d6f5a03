package library

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

type immutableClaimsSnapshot struct {
	id        string
	subject   string
	issuer    string
	uid       string
	role      string
	audience  []string
	issuedAt  time.Time
	expiresAt time.Time
}

func captureImmutableClaims(claims *JWTClaims) immutableClaimsSnapshot {
	return immutableClaimsSnapshot{
		id:        claims.RegisteredClaims.ID,
		subject:   claims.RegisteredClaims.Subject,
		issuer:    claims.RegisteredClaims.Issuer,
		uid:       claims.UID,
		role:      claims.UserRole,
		audience:  slices.Clone([]string(claims.RegisteredClaims.Audience)),
		issuedAt:  numericDate(claims.RegisteredClaims.IssuedAt),
		expiresAt: numericDate(claims.RegisteredClaims.ExpiresAt),
	}
}

func (snap immutableClaimsSnapshot) validate(claims *JWTClaims) error {
	switch {
	case claims.RegisteredClaims.ID != snap.id:
		return immutableClaimViolation("jti")
	case claims.RegisteredClaims.Subject != snap.subject:
		return immutableClaimViolation("sub")
	case claims.RegisteredClaims.Issuer != snap.issuer:
		return immutableClaimViolation("iss")
	case claims.UID != snap.uid:
		return immutableClaimViolation("uid")
	case claims.UserRole != snap.role:
		return immutableClaimViolation("role")
	case !slices.Equal([]string(claims.RegisteredClaims.Audience), snap.audience):
		return immutableClaimViolation("aud")
	case !numericDate(claims.RegisteredClaims.IssuedAt).Equal(snap.issuedAt):
		return immutableClaimViolation("iat")
	case !numericDate(claims.RegisteredClaims.ExpiresAt).Equal(snap.expiresAt):
		return immutableClaimViolation("exp")
	}
	return nil
}

func numericDate(date *jwt.NumericDate) time.Time {
	if date == nil {
		return time.Time{}
	}
	return date.Time
}

func immutableClaimViolation(field string) error {
	return goerrors.New(fmt.Sprintf("immutable claim mutated: %s", field), goerrors.CategoryInternal).
		WithTextCode(TextCodeImmutableClaim).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"claim": field})
}
