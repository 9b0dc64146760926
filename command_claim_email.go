package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ClaimEmailMessage struct {
	UserID uuid.UUID `json:"user_id"`
	// AppResetURL is where the claim link points; claiming an account is
	// completed through the password reset flow.
	AppResetURL string `json:"app_reset_url"`
}

func (e ClaimEmailMessage) Type() string { return "user.claim_email" }

// ClaimEmailHandler mails a claim link for an account created on the
// user's behalf, letting them take ownership by setting a password.
type ClaimEmailHandler struct {
	users  EmailManager
	proofs *ProofTokenService
	mailer Mailer
	logger Logger
}

func NewClaimEmailHandler(users EmailManager, proofs *ProofTokenService, mailer Mailer) *ClaimEmailHandler {
	return &ClaimEmailHandler{
		users:  users,
		proofs: proofs,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *ClaimEmailHandler) WithLogger(logger Logger) *ClaimEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ClaimEmailHandler) Execute(ctx context.Context, event ClaimEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account claim",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ClaimEmailHandler) execute(ctx context.Context, event ClaimEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.AppResetURL == "" {
		return goerrors.New("app reset url is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := h.users.GetFull(ctx, event.UserID)
	if err != nil {
		return err
	}

	token, err := h.proofs.Generate(user, user.Email)
	if err != nil {
		return err
	}

	sendMail(ctx, h.logger, "claim", func(ctx context.Context) error {
		return h.mailer.SendClaim(ctx, user, confirmationLink(event.AppResetURL, token))
	})

	return nil
}
