package identity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// ProofWindow is how long a confirmation link stays valid.
const ProofWindow = 7 * 24 * time.Hour

// SubjectResolver finds the user owning an email address, secondary
// addresses included.
type SubjectResolver func(ctx context.Context, email string) (*User, error)

// ProofClaims are the values recovered from a decoded proof token.
type ProofClaims struct {
	Email    string
	IssuedAt time.Time
}

// ProofTokenService issues and validates self-verifying confirmation links
// for email verification and password reset. No token is ever stored: the
// proof is derived from the subject's current password hash, so rotating
// the password is the sole (and sufficient) revocation mechanism.
type ProofTokenService struct {
	window time.Duration
	now    Clock
	logger Logger
}

// ProofTokenOption configures a ProofTokenService.
type ProofTokenOption func(*ProofTokenService)

// WithProofClock injects a custom clock (useful for tests).
func WithProofClock(clock Clock) ProofTokenOption {
	return func(s *ProofTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithProofLogger overrides the logger.
func WithProofLogger(logger Logger) ProofTokenOption {
	return func(s *ProofTokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewProofTokenService creates a service with the standard 7 day window.
func NewProofTokenService(opts ...ProofTokenOption) *ProofTokenService {
	s := &ProofTokenService{
		window: ProofWindow,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate derives an opaque token binding email to the subject's current
// secret material. The email may be one of the subject's secondary
// addresses awaiting verification.
func (s *ProofTokenService) Generate(subject *User, email string) (string, error) {
	if subject == nil {
		return "", goerrors.New("subject is required", goerrors.CategoryBadInput)
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)

	proof, err := bcrypt.GenerateFromPassword(proofMaterial(subject, ts), passwordHashCost())
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive proof")
	}

	payload := email + "/" + ts + "/" + base64.StdEncoding.EncodeToString(proof)
	return base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// Validate decodes token, resolves its subject and checks the proof against
// the subject's current password hash. On success the resolved subject and
// the decoded claims are returned so callers can tell which address the
// link was issued for.
func (s *ProofTokenService) Validate(ctx context.Context, token string, resolve SubjectResolver) (*User, ProofClaims, error) {
	claims, proof, err := s.decode(token)
	if err != nil {
		return nil, ProofClaims{}, err
	}

	subject, err := resolve(ctx, claims.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, claims, ErrUnknownSubject
		}
		return nil, claims, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve proof subject")
	}

	if subject == nil || !subject.HasEmail(claims.Email) {
		return nil, claims, ErrUnknownSubject
	}

	now := s.now()
	if claims.IssuedAt.Before(now.Add(-s.window)) || claims.IssuedAt.After(now) {
		return nil, claims, ErrProofExpired
	}

	ts := strconv.FormatInt(claims.IssuedAt.UnixMilli(), 10)
	if err := bcrypt.CompareHashAndPassword(proof, proofMaterial(subject, ts)); err != nil {
		return nil, claims, ErrProofConsumed
	}

	return subject, claims, nil
}

// decode splits a token into claims and the raw proof bytes.
func (s *ProofTokenService) decode(token string) (ProofClaims, []byte, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return ProofClaims{}, nil, ErrProofMalformed
	}

	parts := strings.SplitN(string(raw), "/", 3)
	if len(parts) != 3 {
		return ProofClaims{}, nil, ErrProofMalformed
	}

	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ProofClaims{}, nil, ErrProofMalformed
	}

	proof, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return ProofClaims{}, nil, ErrProofMalformed
	}

	claims := ProofClaims{
		Email:    strings.ToLower(strings.TrimSpace(parts[0])),
		IssuedAt: time.UnixMilli(millis),
	}

	return claims, proof, nil
}

// proofMaterial is what the proof commits to: the current password hash,
// the issuance timestamp and the subject id. The concatenation is digested
// first because bcrypt rejects inputs over 72 bytes.
func proofMaterial(subject *User, ts string) []byte {
	sum := sha256.Sum256([]byte(subject.PasswordHash + ts + subject.ID.String()))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
