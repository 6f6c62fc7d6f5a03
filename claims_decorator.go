package library

// ClaimsDecorator can attach extension claims before a token is signed.
// Implementations may only touch Metadata. Registered claims and the role
// are checked after decoration and any change fails the signing.
type ClaimsDecorator interface {
	Decorate(claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(claims *JWTClaims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(*JWTClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
