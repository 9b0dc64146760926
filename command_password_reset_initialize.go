package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// UserFinder resolves users by primary email.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type InitializePasswordResetMessage struct {
	Email string `json:"email"`
	// AppResetURL is where the link in the reset email points.
	AppResetURL string `json:"app_reset_url"`
	OnResponse  func(*User)
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetHandler mails a reset link to an existing
// account. The link is a stateless proof token, so nothing is written;
// issuing a new link does not invalidate older ones, only a completed
// reset does.
type InitializePasswordResetHandler struct {
	users  UserFinder
	proofs *ProofTokenService
	mailer Mailer
	logger Logger
}

func NewInitializePasswordResetHandler(users UserFinder, proofs *ProofTokenService, mailer Mailer) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		users:  users,
		proofs: proofs,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if normalizeEmail(event.Email) == "" {
		return goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if event.AppResetURL == "" {
		return goerrors.New("app reset url is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := h.users.GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUnknownSubject
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.proofs.Generate(user, user.Email)
	if err != nil {
		return err
	}

	sendMail(ctx, h.logger, "reset-password", func(ctx context.Context) error {
		return h.mailer.SendResetPassword(ctx, user, confirmationLink(event.AppResetURL, token))
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
