package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock lets tests drive time-sensitive behavior (proof token windows,
// consent transaction expiry).
type Clock func() time.Time

// Config holds identity provider options
type Config interface {
	GetBaseURL() string
	GetIssuer() string
	GetTokenExpiration() int
	GetAuthorizationCodeTTL() time.Duration
	GetConsentTransactionTTL() time.Duration
	GetSessionTTL() time.Duration
}

// TokenIssuer mints bearer identity tokens and exposes the public key
// material advertised through discovery. Signing internals stay behind
// this boundary.
type TokenIssuer interface {
	Issue(subjectID string) (string, error)
	PublicJWK() (map[string]any, error)
}

// Mailer sends notification emails. Calls are fire-and-continue: the core
// waits for the call to return but never conditions its own success on
// delivery confirmation.
type Mailer interface {
	SendRegister(ctx context.Context, user *User, verifyURL string) error
	SendPostRegister(ctx context.Context, user *User) error
	SendResetPassword(ctx context.Context, user *User, resetURL string) error
	SendValidationEmail(ctx context.Context, user *User, email, validationURL string) error
	SendClaim(ctx context.Context, user *User, resetURL string) error
}

// ListResolver looks up the declared type and joinability of a list entity.
// Implementations may reach over the network, so callers wrap invocations
// with a timeout.
type ListResolver interface {
	ResolveList(ctx context.Context, id uuid.UUID) (*List, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
