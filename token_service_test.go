package identity_test

import (
	"crypto/rsa"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey *rsa.PrivateKey

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	if testSigningKey == nil {
		key, err := identity.GenerateSigningKey()
		require.NoError(t, err)
		testSigningKey = key
	}
	return testSigningKey
}

func TestTokenServiceRoundTrip(t *testing.T) {
	svc, err := identity.NewTokenService(signingKey(t), "go-identity", 24)
	require.NoError(t, err)

	subject := uuid.NewString()
	token, err := svc.Issue(subject)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, subject, claims.UID)
	assert.Equal(t, "go-identity", claims.Issuer)
}

func TestTokenServiceRequiresKey(t *testing.T) {
	_, err := identity.NewTokenService(nil, "go-identity", 24)
	assert.Error(t, err)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	svc, err := identity.NewTokenService(signingKey(t), "go-identity", 1,
		identity.WithTokenClock(func() time.Time { return past }))
	require.NoError(t, err)

	token, err := svc.Issue(uuid.NewString())
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, identity.ErrTokenExpired)
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	svc, err := identity.NewTokenService(signingKey(t), "go-identity", 24)
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-jwt", "aaaa.bbbb.cccc"} {
		_, err := svc.Validate(token)
		assert.Error(t, err, token)
	}
}

func TestTokenServiceRejectsForeignIssuer(t *testing.T) {
	minter, err := identity.NewTokenService(signingKey(t), "somebody-else", 24)
	require.NoError(t, err)
	checker, err := identity.NewTokenService(signingKey(t), "go-identity", 24)
	require.NoError(t, err)

	token, err := minter.Issue(uuid.NewString())
	require.NoError(t, err)

	_, err = checker.Validate(token)
	assert.Error(t, err)
}

func TestTokenServiceAudience(t *testing.T) {
	svc, err := identity.NewTokenService(signingKey(t), "go-identity", 24,
		identity.WithTokenAudience("example-app"))
	require.NoError(t, err)

	token, err := svc.Issue(uuid.NewString())
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Contains(t, []string(claims.Audience), "example-app")
}

func TestTokenServicePublicJWK(t *testing.T) {
	svc, err := identity.NewTokenService(signingKey(t), "go-identity", 24)
	require.NoError(t, err)

	jwk, err := svc.PublicJWK()
	require.NoError(t, err)

	assert.Equal(t, "RSA", jwk["kty"])
	assert.Equal(t, "sig", jwk["use"])
	assert.Equal(t, "RS256", jwk["alg"])
	assert.Equal(t, svc.KeyID(), jwk["kid"])
	assert.NotEmpty(t, jwk["n"])
	assert.NotEmpty(t, jwk["e"])
}

func TestMultiTokenValidatorFallsThroughOnMalformed(t *testing.T) {
	svc, err := identity.NewTokenService(signingKey(t), "go-identity", 24)
	require.NoError(t, err)

	rejectAll := identity.TokenValidatorFunc(func(string) (*identity.IdentityClaims, error) {
		return nil, identity.ErrTokenMalformed
	})

	multi := identity.NewMultiTokenValidator(rejectAll, nil, svc)

	subject := uuid.NewString()
	token, err := svc.Issue(subject)
	require.NoError(t, err)

	claims, err := multi.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
}

func TestMultiTokenValidatorStopsOnFinalError(t *testing.T) {
	expired := identity.TokenValidatorFunc(func(string) (*identity.IdentityClaims, error) {
		return nil, identity.ErrTokenExpired
	})
	neverReached := identity.TokenValidatorFunc(func(string) (*identity.IdentityClaims, error) {
		return &identity.IdentityClaims{}, nil
	})

	multi := identity.NewMultiTokenValidator(expired, neverReached)

	_, err := multi.Validate("whatever")
	assert.ErrorIs(t, err, identity.ErrTokenExpired)
}

func TestMultiTokenValidatorEmpty(t *testing.T) {
	multi := identity.NewMultiTokenValidator()
	_, err := multi.Validate("whatever")
	assert.ErrorIs(t, err, identity.ErrTokenMalformed)
}
