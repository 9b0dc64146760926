package identity

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeProofMalformed marks proof tokens we could not decode.
	TextCodeProofMalformed = "PROOF_MALFORMED"
	// TextCodeProofExpired marks proof tokens outside the validity window.
	TextCodeProofExpired = "PROOF_EXPIRED"
	// TextCodeProofConsumed marks proofs that no longer match the subject's
	// secret material, usually because the link was already used.
	TextCodeProofConsumed = "PROOF_CONSUMED"
)

// ErrInvalidCredentials is returned for unknown users, deleted users and wrong
// passwords alike. The three cases share one message on purpose so responses
// do not disclose whether an account exists.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified is returned when a user logs in before confirming their
// address. Unlike the cases above this one is deliberately distinguishable.
var ErrEmailNotVerified = goerrors.New("please verify your email address", goerrors.CategoryAuth).
	WithTextCode("EMAIL_NOT_VERIFIED").
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingCredentials is returned when email or password are absent.
var ErrMissingCredentials = goerrors.New("email and password required", goerrors.CategoryValidation).
	WithTextCode("MISSING_CREDENTIALS").
	WithCode(goerrors.CodeBadRequest)

// ErrProofMalformed is returned when a proof token cannot be decoded.
var ErrProofMalformed = goerrors.New("malformed confirmation link", goerrors.CategoryAuth).
	WithTextCode(TextCodeProofMalformed).
	WithCode(goerrors.CodeBadRequest)

// ErrProofExpired is returned for proof tokens outside the 7 day window,
// including timestamps in the future.
var ErrProofExpired = goerrors.New("expired confirmation link", goerrors.CategoryAuth).
	WithTextCode(TextCodeProofExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrProofConsumed is returned when the embedded proof no longer matches the
// subject's current secret material.
var ErrProofConsumed = goerrors.New("this confirmation link has already been used", goerrors.CategoryAuth).
	WithTextCode(TextCodeProofConsumed).
	WithCode(goerrors.CodeBadRequest)

// ErrUnknownSubject is returned when a proof token references an email no
// user record carries.
var ErrUnknownSubject = goerrors.New("wrong user or wrong email in the confirmation link", goerrors.CategoryNotFound).
	WithTextCode("UNKNOWN_SUBJECT").
	WithCode(goerrors.CodeNotFound)

// ErrUnknownAffiliationKind is returned for checkin/checkout against an
// unrecognized collection.
var ErrUnknownAffiliationKind = goerrors.New("unknown affiliation kind", goerrors.CategoryNotFound).
	WithTextCode("UNKNOWN_AFFILIATION_KIND").
	WithCode(goerrors.CodeNotFound)

// ErrWrongListType is returned when the referenced list does not match the
// affiliation kind it was checked into.
var ErrWrongListType = goerrors.New("wrong list type", goerrors.CategoryValidation).
	WithTextCode("WRONG_LIST_TYPE").
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyCheckedIn is returned when an active affiliation for the same
// list already exists.
var ErrAlreadyCheckedIn = goerrors.New("user is already checked in", goerrors.CategoryConflict).
	WithTextCode("ALREADY_CHECKED_IN").
	WithCode(goerrors.CodeConflict)

// ErrWrongRedirectURI is returned when a client presents a redirect_uri that
// does not exactly match its registered one.
var ErrWrongRedirectURI = goerrors.New("wrong redirect uri", goerrors.CategoryAuth).
	WithTextCode("WRONG_REDIRECT_URI").
	WithCode(goerrors.CodeForbidden)

// ErrWrongAuthorizationCode is returned when a code cannot be resolved or was
// already exchanged.
var ErrWrongAuthorizationCode = goerrors.New("wrong authorization code", goerrors.CategoryValidation).
	WithTextCode("WRONG_AUTHORIZATION_CODE").
	WithCode(goerrors.CodeBadRequest)

// ErrMissingResponseType is returned when the authorize dialog is entered
// without a response_type.
var ErrMissingResponseType = goerrors.New("missing response_type", goerrors.CategoryValidation).
	WithTextCode("MISSING_RESPONSE_TYPE").
	WithCode(goerrors.CodeBadRequest)

// ErrUnknownConsentTransaction is returned for a decision on a transaction
// that expired or never existed.
var ErrUnknownConsentTransaction = goerrors.New("unknown or expired consent transaction", goerrors.CategoryNotFound).
	WithTextCode("UNKNOWN_CONSENT_TRANSACTION").
	WithCode(goerrors.CodeNotFound)

// ErrNoSession is returned when a protected flow is entered without an
// established session.
var ErrNoSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode("NO_SESSION").
	WithCode(goerrors.CodeUnauthorized)

// IsProofTokenError reports whether err carries one of the proof token text codes.
func IsProofTokenError(err error) bool {
	var rich *goerrors.Error
	if !errors.As(err, &rich) {
		return false
	}
	switch rich.TextCode {
	case TextCodeProofMalformed, TextCodeProofExpired, TextCodeProofConsumed:
		return true
	}
	return false
}

// ErrTokenExpired is returned for bearer tokens past their expiry.
var ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for bearer tokens that fail parsing or
// signature checks.
var ErrTokenMalformed = goerrors.New("malformed or invalid token", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrUnknownClient is returned when client credentials do not resolve to a
// registered client.
var ErrUnknownClient = goerrors.New("unknown client", goerrors.CategoryAuth).
	WithTextCode("UNKNOWN_CLIENT").
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingAuthorizationCode is returned when a token exchange arrives
// without a code.
var ErrMissingAuthorizationCode = goerrors.New("missing authorization code", goerrors.CategoryValidation).
	WithTextCode("MISSING_AUTHORIZATION_CODE").
	WithCode(goerrors.CodeBadRequest)
