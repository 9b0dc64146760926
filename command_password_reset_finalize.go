package identity

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// PasswordRotator is the slice of the users repository reset completion
// needs.
type PasswordRotator interface {
	GetByAnyEmail(ctx context.Context, email string) (*User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

type FinalizePasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(*User)
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler settles a reset link. Swapping the hash
// both sets the new password and invalidates every outstanding proof
// token, reset and verification links alike. Completing a reset also
// proves mailbox control, so the account comes out verified.
type FinalizePasswordResetHandler struct {
	users  PasswordRotator
	proofs *ProofTokenService
	logger Logger
}

func NewFinalizePasswordResetHandler(users PasswordRotator, proofs *ProofTokenService) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		users:  users,
		proofs: proofs,
		logger: defLogger{},
	}
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password == "" {
		return goerrors.New("password is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	subject, _, err := h.proofs.Validate(ctx, event.Token, h.users.GetByAnyEmail)
	if err != nil {
		return err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if errors.As(err, &richErr) {
			return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := h.users.ResetPassword(ctx, subject.ID, hash); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset password")
	}

	subject.PasswordHash = hash
	subject.EmailVerified = true
	subject.ExpiresAt = nil

	if event.OnResponse != nil {
		event.OnResponse(subject)
	}

	return nil
}
