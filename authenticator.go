package identity

import (
	"context"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// UserDirectory is the slice of the users repository the broker needs.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetFull(ctx context.Context, id uuid.UUID) (*User, error)
	AuthorizeClient(ctx context.Context, userID, clientID uuid.UUID) error
}

// ClientDirectory resolves relying parties by public identifier.
type ClientDirectory interface {
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
}

// TokenStore persists grant records and consumes authorization codes.
type TokenStore interface {
	Store(ctx context.Context, record *OauthToken) error
	ConsumeCode(ctx context.Context, token string) (*OauthToken, error)
}

// AuthorizeQuery carries the OAuth2 query parameters through the login
// and consent flow so the continuation always lands back where the
// relying party started it.
type AuthorizeQuery struct {
	ClientID     string `form:"client_id" json:"client_id" query:"client_id"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri" query:"redirect_uri"`
	ResponseType string `form:"response_type" json:"response_type" query:"response_type"`
	State        string `form:"state" json:"state" query:"state"`
	Scope        string `form:"scope" json:"scope" query:"scope"`
}

// IsZero reports whether no OAuth2 parameters were supplied, i.e. the
// login is a plain portal login rather than an authorize continuation.
func (q AuthorizeQuery) IsZero() bool {
	return q == AuthorizeQuery{}
}

// Values renders the non-empty parameters for a redirect continuation.
func (q AuthorizeQuery) Values() url.Values {
	vals := url.Values{}
	set := func(key, val string) {
		if val != "" {
			vals.Set(key, val)
		}
	}
	set("client_id", q.ClientID)
	set("redirect_uri", q.RedirectURI)
	set("response_type", q.ResponseType)
	set("state", q.State)
	set("scope", q.Scope)
	return vals
}

// AuthenticateResult is the payload of a direct token authentication.
type AuthenticateResult struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// LoginResult carries the established session and where to send the
// browser next.
type LoginResult struct {
	Session     *Session
	RedirectURI string
}

// Broker drives login, session establishment and the OAuth2
// authorization-code flow against the user and client directories.
type Broker struct {
	users     UserDirectory
	clients   ClientDirectory
	tokens    TokenStore
	sessions  SessionStore
	consents  *ConsentTransactionStore
	issuer    TokenIssuer
	logger    Logger
	now       Clock
	baseURL   string
	issuerID  string
	codeTTL   time.Duration
	accessTTL time.Duration

	loginPath     string
	authorizePath string
}

// NewBroker wires the authorization broker. The consent transaction
// store and session store default to in-memory implementations.
func NewBroker(users UserDirectory, clients ClientDirectory, tokens TokenStore, issuer TokenIssuer, cfg Config) *Broker {
	b := &Broker{
		users:         users,
		clients:       clients,
		tokens:        tokens,
		issuer:        issuer,
		logger:        defLogger{},
		now:           time.Now,
		loginPath:     "/login",
		authorizePath: "/oauth/authorize",
		codeTTL:       10 * time.Minute,
		accessTTL:     24 * time.Hour,
	}

	if cfg != nil {
		b.baseURL = strings.TrimRight(cfg.GetBaseURL(), "/")
		b.issuerID = cfg.GetIssuer()
		if ttl := cfg.GetAuthorizationCodeTTL(); ttl > 0 {
			b.codeTTL = ttl
		}
		if hours := cfg.GetTokenExpiration(); hours > 0 {
			b.accessTTL = time.Duration(hours) * time.Hour
		}
		b.sessions = NewMemorySessionStore(WithSessionTTL(cfg.GetSessionTTL()))
		b.consents = NewConsentTransactionStore(WithConsentTransactionTTL(cfg.GetConsentTransactionTTL()))
	} else {
		b.sessions = NewMemorySessionStore()
		b.consents = NewConsentTransactionStore()
	}

	return b
}

func (b *Broker) WithLogger(logger Logger) *Broker {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *Broker) WithClock(clock Clock) *Broker {
	if clock != nil {
		b.now = clock
	}
	return b
}

func (b *Broker) WithSessionStore(sessions SessionStore) *Broker {
	if sessions != nil {
		b.sessions = sessions
	}
	return b
}

func (b *Broker) WithConsentTransactions(consents *ConsentTransactionStore) *Broker {
	if consents != nil {
		b.consents = consents
	}
	return b
}

// Sessions exposes the session store so the HTTP layer can resolve and
// clear sessions.
func (b *Broker) Sessions() SessionStore {
	return b.sessions
}

// Authenticate verifies credentials and mints a bearer token. The
// returned user is the subject's own projected view.
func (b *Broker) Authenticate(ctx context.Context, email, password string) (*AuthenticateResult, error) {
	user, err := b.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	token, err := b.issuer.Issue(user.ID.String())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue token")
	}

	return &AuthenticateResult{
		User:  Project(user, user),
		Token: token,
	}, nil
}

// Login verifies credentials and establishes a server-side session.
// When the login was entered from an authorize redirect the original
// OAuth2 parameters are carried into the continuation URL.
func (b *Broker) Login(ctx context.Context, email, password string, q AuthorizeQuery) (*LoginResult, error) {
	user, err := b.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	session, err := b.sessions.Create(user.ID)
	if err != nil {
		return nil, err
	}

	redirect := "/"
	if !q.IsZero() {
		redirect = b.authorizePath + "?" + q.Values().Encode()
	}

	b.logger.Debug("login established session for %s", user.ID)

	return &LoginResult{
		Session:     session,
		RedirectURI: redirect,
	}, nil
}

// CurrentUser resolves the session's subject with owned collections
// loaded.
func (b *Broker) CurrentUser(ctx context.Context, sessionID string) (*User, error) {
	session, err := b.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	user, err := b.users.GetFull(ctx, session.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNoSession
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session user")
	}

	if user.Deleted {
		return nil, ErrNoSession
	}

	return user, nil
}

// Logout drops the session. Unknown ids are a no-op.
func (b *Broker) Logout(sessionID string) {
	b.sessions.Delete(sessionID)
}

// verifyCredentials implements the shared credential check. Unknown
// accounts, deleted accounts and wrong passwords intentionally collapse
// into one answer; only the unverified-email case is distinguishable.
func (b *Broker) verifyCredentials(ctx context.Context, email, password string) (*User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := b.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}

	if user.Deleted {
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return user, nil
}
