package identity

import (
	"errors"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenValidator validates bearer tokens without tying callers to a
// specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*IdentityClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*IdentityClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*IdentityClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// JWKSValidator validates tokens against a remote JWKS endpoint, for
// deployments where tokens are minted by another instance and only the
// published key set is shared.
type JWKSValidator struct {
	jwks   *keyfunc.JWKS
	issuer string
}

var _ TokenValidator = (*JWKSValidator)(nil)

// NewJWKSValidator fetches the key set from jwksURL. Pass issuer to
// enforce the iss claim, or empty to skip that check.
func NewJWKSValidator(jwksURL, issuer string) (*JWKSValidator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load JWKS")
	}
	return &JWKSValidator{jwks: jwks, issuer: issuer}, nil
}

// Validate satisfies the TokenValidator interface.
func (v *JWKSValidator) Validate(tokenString string) (*IdentityClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*IdentityClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrTokenMalformed
}

// Close stops the background key refresh.
func (v *JWKSValidator) Close() {
	v.jwks.EndBackground()
}

// MultiTokenValidator tries validators in order until one succeeds. A
// malformed-token result means "try next"; any other failure is final.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*IdentityClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if isTokenMalformed(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

func isTokenMalformed(err error) bool {
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == ErrTokenMalformed.TextCode
}
