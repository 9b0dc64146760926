package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EmailVerifier is the slice of the users repository verification needs.
type EmailVerifier interface {
	GetByAnyEmail(ctx context.Context, email string) (*User, error)
	VerifyPrimaryEmail(ctx context.Context, id uuid.UUID) error
	VerifySecondaryEmail(ctx context.Context, userID uuid.UUID, email string) error
}

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(*User)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

// VerifyEmailHandler settles a confirmation link. A link for the primary
// address verifies the whole account and lifts the registration expiry;
// one for a secondary address only flips that record's verified flag.
type VerifyEmailHandler struct {
	users  EmailVerifier
	proofs *ProofTokenService
	mailer Mailer
	logger Logger
}

func NewVerifyEmailHandler(users EmailVerifier, proofs *ProofTokenService, mailer Mailer) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		users:  users,
		proofs: proofs,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	subject, claims, err := h.proofs.Validate(ctx, event.Token, h.users.GetByAnyEmail)
	if err != nil {
		return err
	}

	if claims.Email == subject.Email {
		if err := h.users.VerifyPrimaryEmail(ctx, subject.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account verified")
		}
		subject.EmailVerified = true
		subject.ExpiresAt = nil

		sendMail(ctx, h.logger, "post-register", func(ctx context.Context) error {
			return h.mailer.SendPostRegister(ctx, subject)
		})
	} else {
		if err := h.users.VerifySecondaryEmail(ctx, subject.ID, claims.Email); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark address verified")
		}
		if i := subject.EmailIndex(claims.Email); i != -1 {
			subject.Emails[i].Verified = true
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(subject)
	}

	return nil
}
