package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// IdentityClaims are the claims carried by tokens this service mints.
type IdentityClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

// TokenService mints and validates RS256 bearer tokens and exposes the
// signing key's public half as a JWK so relying parties can verify
// tokens offline.
type TokenService struct {
	key             *rsa.PrivateKey
	keyID           string
	issuer          string
	audience        jwt.ClaimStrings
	tokenExpiration int
	now             Clock
	logger          Logger
}

var _ TokenIssuer = (*TokenService)(nil)

type TokenServiceOption func(*TokenService)

func WithTokenAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.audience = jwt.ClaimStrings(audience)
	}
}

func WithTokenClock(clock Clock) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a service signing with key. tokenExpiration is
// in hours.
func NewTokenService(key *rsa.PrivateKey, issuer string, tokenExpiration int, opts ...TokenServiceOption) (*TokenService, error) {
	if key == nil {
		return nil, goerrors.New("signing key is required", goerrors.CategoryInternal)
	}
	if tokenExpiration <= 0 {
		tokenExpiration = 24
	}

	ts := &TokenService{
		key:             key,
		keyID:           deriveKeyID(&key.PublicKey),
		issuer:          issuer,
		tokenExpiration: tokenExpiration,
		now:             time.Now,
		logger:          defLogger{},
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

// GenerateSigningKey creates a fresh 2048 bit RSA key, for deployments
// that do not load one from disk.
func GenerateSigningKey() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate signing key")
	}
	return key, nil
}

// Issue mints a token for the given subject id.
func (ts *TokenService) Issue(subjectID string) (string, error) {
	now := ts.now()
	claims := &IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subjectID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ts.tokenExpiration) * time.Hour)),
		},
		UID: subjectID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ts.keyID

	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Validate parses and validates a token string this service minted.
func (ts *TokenService) Validate(tokenString string) (*IdentityClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			ts.logger.Error("token validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &ts.key.PublicKey, nil
	}, parserOptions...)

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

// PublicJWK renders the verification key in JWK form for the discovery
// endpoint.
func (ts *TokenService) PublicJWK() (map[string]any, error) {
	pub := &ts.key.PublicKey
	return map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": ts.keyID,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}, nil
}

// KeyID exposes the derived kid, mostly for tests and logging.
func (ts *TokenService) KeyID() string {
	return ts.keyID
}

func deriveKeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return hex.EncodeToString(sum[:8])
}
