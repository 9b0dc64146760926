package identity

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// IdentityControllerRoutes names the mounted paths.
type IdentityControllerRoutes struct {
	Token         string
	Login         string
	Logout        string
	Authorize     string
	AccessToken   string
	Discovery     string
	JWKS          string
	Register      string
	Verify        string
	PasswordReset string
	Users         string
}

// IdentityController is the thin HTTP boundary: bind, validate, call a
// handler or the broker, map the error. No domain decisions live here.
type IdentityController struct {
	Debug      bool
	Logger     Logger
	Repo       RepositoryManager
	Broker     *Broker
	Proofs     *ProofTokenService
	Mailer     Mailer
	Lists      ListResolver
	Routes     *IdentityControllerRoutes
	CookieName string
}

type IdentityControllerOption func(*IdentityController) *IdentityController

func WithControllerLogger(logger Logger) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Debug = debug
		return c
	}
}

func WithRepositoryManager(repo RepositoryManager) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Repo = repo
		return c
	}
}

func WithBroker(broker *Broker) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Broker = broker
		return c
	}
}

func WithProofTokens(proofs *ProofTokenService) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Proofs = proofs
		return c
	}
}

func WithMailer(mailer Mailer) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Mailer = mailer
		return c
	}
}

func WithListResolver(lists ListResolver) IdentityControllerOption {
	return func(c *IdentityController) *IdentityController {
		c.Lists = lists
		return c
	}
}

func NewIdentityController(opts ...IdentityControllerOption) *IdentityController {
	c := &IdentityController{
		Logger:     defLogger{},
		CookieName: "identity_session",
		Routes: &IdentityControllerRoutes{
			Token:         "/jsonwebtoken",
			Login:         "/login",
			Logout:        "/logout",
			Authorize:     "/oauth/authorize",
			AccessToken:   "/oauth/access_token",
			Discovery:     "/.well-known/openid-configuration",
			JWKS:          "/oauth/jwks",
			Register:      "/register",
			Verify:        "/verify",
			PasswordReset: "/reset_password",
			Users:         "/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in identity controller...")
	}
	if c.Broker == nil {
		panic("Missing Broker in identity controller...")
	}
	if c.Proofs == nil {
		c.Proofs = NewProofTokenService()
	}
	if c.Mailer == nil {
		c.Mailer = NewLogMailer(c.Logger)
	}
	if c.Lists == nil {
		c.Lists = NewRepositoryListResolver(c.Repo.Lists())
	}

	return c
}

// RegisterIdentityRoutes mounts the controller on a router.
func RegisterIdentityRoutes[T any](app router.Router[T], opts ...IdentityControllerOption) *IdentityController {
	c := NewIdentityController(opts...)
	r := c.Routes

	app.Post(r.Token, c.AuthenticatePost).SetName("identity.token")
	app.Post(r.Login, c.LoginPost).SetName("identity.login")
	app.Get(r.Logout, c.LogoutGet).SetName("identity.logout")

	app.Get(r.Authorize, c.AuthorizeGet).SetName("oauth.authorize.get")
	app.Post(r.Authorize, c.DecisionPost).SetName("oauth.authorize.post")
	app.Post(r.AccessToken, c.AccessTokenPost).SetName("oauth.token")
	app.Get(r.Discovery, c.DiscoveryGet).SetName("oauth.discovery")
	app.Get(r.JWKS, c.JWKSGet).SetName("oauth.jwks")

	app.Post(r.Register, c.RegisterPost).SetName("identity.register")
	app.Post(r.Verify, c.VerifyPost).SetName("identity.verify")
	app.Post(r.PasswordReset, c.PasswordResetPost).SetName("identity.pwd-reset")

	app.Get(fmt.Sprintf("%s/:id", r.Users), c.UserGet).SetName("users.get")
	app.Post(fmt.Sprintf("%s/:id/claim", r.Users), c.ClaimPost).SetName("users.claim")
	app.Post(fmt.Sprintf("%s/:id/emails", r.Users), c.AddEmailPost).SetName("users.emails.add")
	app.Delete(fmt.Sprintf("%s/:id/emails/:email", r.Users), c.DropEmailDelete).SetName("users.emails.drop")
	app.Post(fmt.Sprintf("%s/:id/:kind", r.Users), c.CheckinPost).SetName("users.checkin")
	app.Delete(fmt.Sprintf("%s/:id/:kind/:affiliationID", r.Users), c.CheckoutDelete).SetName("users.checkout")

	return c
}

// CredentialsPayload carries email and password plus the optional OAuth2
// continuation parameters.
type CredentialsPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	AuthorizeQuery
}

func (r CredentialsPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *IdentityController) AuthenticatePost(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	res, err := a.Broker.Authenticate(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.respondError(ctx, err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(res.User))
	}

	return ctx.JSON(fiber.StatusOK, res)
}

func (a *IdentityController) LoginPost(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	res, err := a.Broker.Login(ctx.Context(), payload.Email, payload.Password, payload.AuthorizeQuery)
	if err != nil {
		return a.respondError(ctx, err)
	}

	a.setSessionCookie(ctx, res.Session)

	return ctx.Redirect(res.RedirectURI, fiber.StatusSeeOther)
}

func (a *IdentityController) LogoutGet(ctx router.Context) error {
	if id := ctx.Cookies(a.CookieName); id != "" {
		a.Broker.Logout(id)
	}
	a.clearSessionCookie(ctx)
	return ctx.Redirect("/", fiber.StatusSeeOther)
}

func (a *IdentityController) AuthorizeGet(ctx router.Context) error {
	q := AuthorizeQuery{
		ClientID:     ctx.Query("client_id", ""),
		RedirectURI:  ctx.Query("redirect_uri", ""),
		ResponseType: ctx.Query("response_type", ""),
		State:        ctx.Query("state", ""),
		Scope:        ctx.Query("scope", ""),
	}

	outcome, err := a.Broker.AuthorizeDialog(ctx.Context(), ctx.Cookies(a.CookieName), q)
	if err != nil {
		return a.respondError(ctx, err)
	}

	if outcome.RedirectURI != "" {
		return ctx.Redirect(outcome.RedirectURI, fiber.StatusSeeOther)
	}

	return ctx.JSON(fiber.StatusOK, router.ViewContext{
		"transaction_id": outcome.Transaction.ID,
		"client":         outcome.Client,
		"user":           outcome.User,
		"scope":          outcome.Transaction.Scope,
	})
}

// DecisionPayload settles a consent transaction.
type DecisionPayload struct {
	TransactionID string `form:"transaction_id" json:"transaction_id"`
	Cancel        bool   `form:"cancel" json:"cancel"`
}

func (r DecisionPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TransactionID, validation.Required),
	)
}

func (a *IdentityController) DecisionPost(ctx router.Context) error {
	payload := new(DecisionPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	redirect, err := a.Broker.Decision(ctx.Context(), ctx.Cookies(a.CookieName), payload.TransactionID, !payload.Cancel)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.Redirect(redirect, fiber.StatusSeeOther)
}

// ExchangePayload swaps an authorization code for an access token.
type ExchangePayload struct {
	ClientID     string `form:"client_id" json:"client_id"`
	ClientSecret string `form:"client_secret" json:"client_secret"`
	Code         string `form:"code" json:"code"`
	GrantType    string `form:"grant_type" json:"grant_type"`
}

func (r ExchangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ClientID, validation.Required),
		validation.Field(&r.ClientSecret, validation.Required),
	)
}

func (a *IdentityController) AccessTokenPost(ctx router.Context) error {
	payload := new(ExchangePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	res, err := a.Broker.ExchangeCode(ctx.Context(), payload.ClientID, payload.ClientSecret, payload.Code)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, res)
}

func (a *IdentityController) DiscoveryGet(ctx router.Context) error {
	return ctx.JSON(fiber.StatusOK, a.Broker.OpenIDConfiguration())
}

func (a *IdentityController) JWKSGet(ctx router.Context) error {
	keys, err := a.Broker.JWKS()
	if err != nil {
		return a.respondError(ctx, err)
	}
	return ctx.JSON(fiber.StatusOK, keys)
}

// RegisterPayload creates an account.
type RegisterPayload struct {
	GivenName    string `form:"given_name" json:"given_name"`
	FamilyName   string `form:"family_name" json:"family_name"`
	Email        string `form:"email" json:"email"`
	Password     string `form:"password" json:"password"`
	AppVerifyURL string `form:"app_verify_url" json:"app_verify_url"`
}

func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.GivenName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.FamilyName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.AppVerifyURL, validation.Required, is.URL),
		validation.Field(&r.Password, validation.Length(8, 100)),
	)
}

func (a *IdentityController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	var created *User
	msg := RegisterUserMessage{
		GivenName:    payload.GivenName,
		FamilyName:   payload.FamilyName,
		Email:        payload.Email,
		Password:     payload.Password,
		AppVerifyURL: payload.AppVerifyURL,
		OnResponse:   func(u *User) { created = u },
	}

	handler := NewRegisterUserHandler(a.Repo.Users(), a.Proofs, a.Mailer).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, Project(created, created))
}

// VerifyPayload settles a confirmation link.
type VerifyPayload struct {
	Token string `form:"token" json:"token"`
}

func (r VerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *IdentityController) VerifyPost(ctx router.Context) error {
	payload := new(VerifyPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	var verified *User
	msg := VerifyEmailMessage{
		Token:      payload.Token,
		OnResponse: func(u *User) { verified = u },
	}

	handler := NewVerifyEmailHandler(a.Repo.Users(), a.Proofs, a.Mailer).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, Project(verified, verified))
}

// PasswordResetPayload serves both reset stages: email+app_reset_url
// requests a link, token+password completes the reset.
type PasswordResetPayload struct {
	Email       string `form:"email" json:"email"`
	AppResetURL string `form:"app_reset_url" json:"app_reset_url"`
	Token       string `form:"token" json:"token"`
	Password    string `form:"password" json:"password"`
}

func (r PasswordResetPayload) Validate() error {
	if r.Token != "" {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		)
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.AppResetURL, validation.Required, is.URL),
	)
}

func (a *IdentityController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	if payload.Token != "" {
		handler := NewFinalizePasswordResetHandler(a.Repo.Users(), a.Proofs).WithLogger(a.Logger)
		msg := FinalizePasswordResetMessage{
			Token:    payload.Token,
			Password: payload.Password,
		}
		if err := handler.Execute(ctx.Context(), msg); err != nil {
			return a.respondError(ctx, err)
		}
		return ctx.NoContent(fiber.StatusNoContent)
	}

	handler := NewInitializePasswordResetHandler(a.Repo.Users(), a.Proofs, a.Mailer).WithLogger(a.Logger)
	msg := InitializePasswordResetMessage{
		Email:       payload.Email,
		AppResetURL: payload.AppResetURL,
	}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.NoContent(fiber.StatusAccepted)
}

func (a *IdentityController) UserGet(ctx router.Context) error {
	viewer, err := a.Broker.CurrentUser(ctx.Context(), ctx.Cookies(a.CookieName))
	if err != nil {
		return a.respondError(ctx, err)
	}

	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	target, err := a.Repo.Users().GetFull(ctx.Context(), id)
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, Project(target, viewer))
}

func (a *IdentityController) ClaimPost(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	payload := struct {
		AppResetURL string `form:"app_reset_url" json:"app_reset_url"`
	}{}
	if err := ctx.Bind(&payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	handler := NewClaimEmailHandler(a.Repo.Users(), a.Proofs, a.Mailer).WithLogger(a.Logger)
	msg := ClaimEmailMessage{UserID: id, AppResetURL: payload.AppResetURL}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.NoContent(fiber.StatusAccepted)
}

// AddEmailPayload appends a secondary address.
type AddEmailPayload struct {
	Email            string `form:"email" json:"email"`
	AppValidationURL string `form:"app_validation_url" json:"app_validation_url"`
}

func (r AddEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.AppValidationURL, validation.Required, is.URL),
	)
}

func (a *IdentityController) AddEmailPost(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	payload := new(AddEmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	var record *UserEmail
	handler := NewAddEmailHandler(a.Repo.Users(), a.Proofs, a.Mailer).WithLogger(a.Logger)
	msg := AddEmailMessage{
		UserID:           id,
		Email:            payload.Email,
		AppValidationURL: payload.AppValidationURL,
		OnResponse:       func(e *UserEmail) { record = e },
	}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, record)
}

func (a *IdentityController) DropEmailDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	handler := NewDropEmailHandler(a.Repo.Users()).WithLogger(a.Logger)
	msg := DropEmailMessage{UserID: id, Email: ctx.Param("email", "")}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.NoContent(fiber.StatusNoContent)
}

// CheckinPayload adds the user to a list-type collection.
type CheckinPayload struct {
	ListID     string `form:"list_id" json:"list_id"`
	Visibility string `form:"visibility" json:"visibility"`
}

func (r CheckinPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ListID, validation.Required, is.UUID),
	)
}

func (a *IdentityController) CheckinPost(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	payload := new(CheckinPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.respondError(ctx, badPayload(err))
	}
	if err := payload.Validate(); err != nil {
		return a.validationError(ctx, err)
	}

	listID, err := uuid.Parse(payload.ListID)
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	var record *Affiliation
	handler := NewCheckinHandler(a.Repo.Affiliations(), a.Repo.Users(), a.Lists).WithLogger(a.Logger)
	msg := CheckinMessage{
		UserID:     id,
		Kind:       ctx.Param("kind", ""),
		ListID:     listID,
		Visibility: payload.Visibility,
		OnResponse: func(r *Affiliation) { record = r },
	}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, record)
}

func (a *IdentityController) CheckoutDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return a.respondError(ctx, badPayload(err))
	}

	affiliationID, err := uuid.Parse(ctx.Param("affiliationID", ""))
	if err != nil && ctx.Param("kind", "") != KindOrganization {
		return a.respondError(ctx, badPayload(err))
	}

	handler := NewCheckoutHandler(a.Repo.Affiliations(), a.Repo.Users()).WithLogger(a.Logger)
	msg := CheckoutMessage{
		UserID:        id,
		Kind:          ctx.Param("kind", ""),
		AffiliationID: affiliationID,
	}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.NoContent(fiber.StatusNoContent)
}

func (a *IdentityController) setSessionCookie(ctx router.Context, session *Session) {
	ctx.Cookie(&router.Cookie{
		Name:     a.CookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
	})
}

func (a *IdentityController) clearSessionCookie(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     a.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
	})
}

func (a *IdentityController) validationError(ctx router.Context, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, router.ViewContext{
		"error":      "validation failed",
		"validation": FormatValidationErrorToMap(err),
	})
}

func (a *IdentityController) respondError(ctx router.Context, err error) error {
	status := fiber.StatusInternalServerError
	message := err.Error()
	textCode := ""

	var rich *goerrors.Error
	if errors.As(err, &rich) {
		if rich.Code != 0 {
			status = int(rich.Code)
		}
		message = rich.Message
		textCode = rich.TextCode
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("identity controller error: %v", err)
	}

	return ctx.JSON(status, router.ViewContext{
		"error": message,
		"code":  textCode,
	})
}

func badPayload(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse payload").
		WithCode(goerrors.CodeBadRequest)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}
