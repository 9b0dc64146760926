package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EmailManager is the slice of the users repository address management
// needs.
type EmailManager interface {
	GetFull(ctx context.Context, id uuid.UUID) (*User, error)
	AddEmail(ctx context.Context, record *UserEmail) error
	DropEmail(ctx context.Context, userID uuid.UUID, email string) error
}

type AddEmailMessage struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	// AppValidationURL is where the validation link points.
	AppValidationURL string `json:"app_validation_url"`
	OnResponse       func(*UserEmail)
}

func (e AddEmailMessage) Type() string { return "user.add_email" }

// AddEmailHandler appends a secondary address in unverified state and
// mails its validation link.
type AddEmailHandler struct {
	users  EmailManager
	proofs *ProofTokenService
	mailer Mailer
	logger Logger
}

func NewAddEmailHandler(users EmailManager, proofs *ProofTokenService, mailer Mailer) *AddEmailHandler {
	return &AddEmailHandler{
		users:  users,
		proofs: proofs,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *AddEmailHandler) WithLogger(logger Logger) *AddEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AddEmailHandler) Execute(ctx context.Context, event AddEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while adding email",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AddEmailHandler) execute(ctx context.Context, event AddEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := normalizeEmail(event.Email)
	if email == "" {
		return goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if event.AppValidationURL == "" {
		return goerrors.New("app validation url is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := h.users.GetFull(ctx, event.UserID)
	if err != nil {
		return err
	}

	if user.HasEmail(email) {
		return goerrors.New("email already exists", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	record := &UserEmail{
		ID:     uuid.New(),
		UserID: user.ID,
		Email:  email,
	}

	if err := h.users.AddEmail(ctx, record); err != nil {
		// The unique constraint also guards against the address being
		// claimed by another account.
		return goerrors.Wrap(err, goerrors.CategoryConflict, "email already exists")
	}

	token, err := h.proofs.Generate(user, email)
	if err != nil {
		return err
	}

	sendMail(ctx, h.logger, "validation", func(ctx context.Context) error {
		return h.mailer.SendValidationEmail(ctx, user, email, confirmationLink(event.AppValidationURL, token))
	})

	if event.OnResponse != nil {
		event.OnResponse(record)
	}

	return nil
}

type DropEmailMessage struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

func (e DropEmailMessage) Type() string { return "user.drop_email" }

// DropEmailHandler removes a secondary address. The primary address can
// never be dropped, only swapped by account-level operations.
type DropEmailHandler struct {
	users  EmailManager
	logger Logger
}

func NewDropEmailHandler(users EmailManager) *DropEmailHandler {
	return &DropEmailHandler{
		users:  users,
		logger: defLogger{},
	}
}

func (h *DropEmailHandler) WithLogger(logger Logger) *DropEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DropEmailHandler) Execute(ctx context.Context, event DropEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while dropping email",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DropEmailHandler) execute(ctx context.Context, event DropEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := normalizeEmail(event.Email)

	user, err := h.users.GetFull(ctx, event.UserID)
	if err != nil {
		return err
	}

	if email == user.Email {
		return goerrors.New("cannot remove primary email", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if user.EmailIndex(email) == -1 {
		return goerrors.New("email does not exist", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := h.users.DropEmail(ctx, user.ID, email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to drop email")
	}

	return nil
}
