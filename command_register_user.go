package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// UserCreator is the slice of the users repository registration needs.
type UserCreator interface {
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
}

type RegisterUserMessage struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	// AppVerifyURL is where the confirmation link in the register email
	// points. Required: an account nobody can verify is dead weight.
	AppVerifyURL string `json:"app_verify_url"`
	// AdminCreated marks registrations performed on someone's behalf;
	// those get a claim-style email instead of the self-serve one.
	AdminCreated bool `json:"admin_created"`
	UseHashid    bool
	OnResponse   func(*User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates an account in unverified state and mails
// the confirmation link. Unverified accounts expire unless confirmed
// within the proof window.
type RegisterUserHandler struct {
	users  UserCreator
	proofs *ProofTokenService
	mailer Mailer
	logger Logger
}

func NewRegisterUserHandler(users UserCreator, proofs *ProofTokenService, mailer Mailer) *RegisterUserHandler {
	return &RegisterUserHandler{
		users:  users,
		proofs: proofs,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := normalizeEmail(event.Email)
	if email == "" {
		return goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if event.AppVerifyURL == "" {
		return goerrors.New("app verify url is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	user := &User{
		GivenName:  event.GivenName,
		FamilyName: event.FamilyName,
		Email:      email,
	}
	user.Name = user.FullName()

	if event.Password == "" {
		// No password yet: seed an unguessable hash so the account is
		// unusable until a reset link sets a real one.
		user.PasswordHash = RandomPasswordHash()
	} else {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if errors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		user.PasswordHash = hash
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}
	}

	expiresAt := time.Now().Add(ProofWindow)
	user.ExpiresAt = &expiresAt

	user, err := h.users.Create(ctx, user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}

	token, err := h.proofs.Generate(user, user.Email)
	if err != nil {
		return err
	}

	link := confirmationLink(event.AppVerifyURL, token)
	if event.AdminCreated {
		sendMail(ctx, h.logger, "claim", func(ctx context.Context) error {
			return h.mailer.SendClaim(ctx, user, link)
		})
	} else {
		sendMail(ctx, h.logger, "register", func(ctx context.Context) error {
			return h.mailer.SendRegister(ctx, user, link)
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

// confirmationLink appends the proof token to the app-provided URL.
func confirmationLink(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
