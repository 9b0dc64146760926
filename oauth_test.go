package identity_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oauthFixture struct {
	broker *identity.Broker
	user   *identity.User
	client *identity.Client
	tokens *fakeTokenStore
	users  *fakeUserDirectory
}

func newOauthFixture(t *testing.T) *oauthFixture {
	t.Helper()

	user := seedAccount(t, "guitar-town")
	client := &identity.Client{
		ID:          uuid.New(),
		ClientID:    "example-app",
		Secret:      "hush",
		Name:        "Example App",
		RedirectURI: "https://app.example.com/callback",
	}

	users := newFakeUserDirectory(user)
	tokens := &fakeTokenStore{}
	broker := identity.NewBroker(users, &fakeClientDirectory{clients: map[string]*identity.Client{client.ClientID: client}}, tokens, fakeIssuer{}, nil)

	return &oauthFixture{broker: broker, user: user, client: client, tokens: tokens, users: users}
}

func (f *oauthFixture) login(t *testing.T) string {
	t.Helper()
	result, err := f.broker.Login(context.Background(), f.user.Email, "guitar-town", identity.AuthorizeQuery{})
	require.NoError(t, err)
	return result.Session.ID
}

func (f *oauthFixture) query() identity.AuthorizeQuery {
	return identity.AuthorizeQuery{
		ClientID:     f.client.ClientID,
		RedirectURI:  f.client.RedirectURI,
		ResponseType: "code",
		State:        "xyzzy",
	}
}

func codeFromRedirect(t *testing.T, redirect string) string {
	t.Helper()
	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code, redirect)
	return code
}

func TestAuthorizeDialogRequiresResponseType(t *testing.T) {
	f := newOauthFixture(t)
	q := f.query()
	q.ResponseType = ""

	_, err := f.broker.AuthorizeDialog(context.Background(), f.login(t), q)
	assert.ErrorIs(t, err, identity.ErrMissingResponseType)
}

func TestAuthorizeDialogBouncesAnonymousToLogin(t *testing.T) {
	f := newOauthFixture(t)

	outcome, err := f.broker.AuthorizeDialog(context.Background(), "no-session", f.query())
	require.NoError(t, err)

	require.NotEmpty(t, outcome.RedirectURI)
	assert.True(t, strings.HasPrefix(outcome.RedirectURI, "/login?"), outcome.RedirectURI)
	for _, fragment := range []string{"client_id=example-app", "response_type=code", "state=xyzzy"} {
		assert.Contains(t, outcome.RedirectURI, fragment)
	}
	assert.Nil(t, outcome.Transaction)
}

func TestAuthorizeDialogRejectsUnknownClientAndWrongRedirect(t *testing.T) {
	f := newOauthFixture(t)
	session := f.login(t)

	q := f.query()
	q.ClientID = "who-is-this"
	_, err := f.broker.AuthorizeDialog(context.Background(), session, q)
	assert.ErrorIs(t, err, identity.ErrUnknownClient)

	q = f.query()
	q.RedirectURI = "https://evil.example.com/callback"
	_, err = f.broker.AuthorizeDialog(context.Background(), session, q)
	assert.ErrorIs(t, err, identity.ErrWrongRedirectURI)
}

func TestAuthorizeDialogOpensConsentTransaction(t *testing.T) {
	f := newOauthFixture(t)
	session := f.login(t)

	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)

	require.NotNil(t, outcome.Transaction)
	assert.Empty(t, outcome.RedirectURI)
	assert.Equal(t, f.user.ID, outcome.Transaction.UserID)
	assert.Equal(t, "example-app", outcome.Transaction.ClientID)
	assert.Equal(t, "xyzzy", outcome.Transaction.State)

	// The rendered client is a ref: no secret, no redirect URI.
	require.NotNil(t, outcome.Client)
	assert.Empty(t, outcome.Client.Secret)
	assert.Empty(t, outcome.Client.RedirectURI)
	assert.Empty(t, outcome.User.PasswordHash)
}

func TestAuthorizeDialogSkipsConsentForAuthorizedClient(t *testing.T) {
	f := newOauthFixture(t)
	f.user.AuthorizedClients = []*identity.Client{f.client.Ref()}
	session := f.login(t)

	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)

	assert.Nil(t, outcome.Transaction)
	assert.True(t, strings.HasPrefix(outcome.RedirectURI, f.client.RedirectURI+"?"), outcome.RedirectURI)
	assert.Contains(t, outcome.RedirectURI, "state=xyzzy")
	codeFromRedirect(t, outcome.RedirectURI)
}

func TestDecisionCancelRedirectsWithAccessDenied(t *testing.T) {
	f := newOauthFixture(t)
	session := f.login(t)

	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)

	redirect, err := f.broker.Decision(context.Background(), session, outcome.Transaction.ID, false)
	require.NoError(t, err)

	assert.Contains(t, redirect, "error=access_denied")
	assert.Contains(t, redirect, "state=xyzzy")

	// Nothing was persisted: no consent, no code.
	assert.Empty(t, f.users.consents[f.user.ID])
	assert.Empty(t, f.tokens.byType(identity.GrantCode))
}

func TestDecisionApproveRecordsConsentAndIssuesCode(t *testing.T) {
	f := newOauthFixture(t)
	session := f.login(t)

	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)

	redirect, err := f.broker.Decision(context.Background(), session, outcome.Transaction.ID, true)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(redirect, f.client.RedirectURI+"?"), redirect)
	code := codeFromRedirect(t, redirect)

	records := f.tokens.byType(identity.GrantCode)
	require.Len(t, records, 1)
	assert.Equal(t, code, records[0].Token)
	assert.Equal(t, f.user.ID, records[0].UserID)
	assert.Equal(t, []uuid.UUID{f.client.ID}, f.users.consents[f.user.ID])
}

func TestDecisionTransactionIsSingleUse(t *testing.T) {
	f := newOauthFixture(t)
	session := f.login(t)

	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)

	_, err = f.broker.Decision(context.Background(), session, outcome.Transaction.ID, true)
	require.NoError(t, err)

	_, err = f.broker.Decision(context.Background(), session, outcome.Transaction.ID, true)
	assert.ErrorIs(t, err, identity.ErrUnknownConsentTransaction)
}

func TestDecisionRejectsForeignSession(t *testing.T) {
	f := newOauthFixture(t)
	other := seedAccount(t, "other-pass")
	other.Email = "other@example.com"
	f.users.users[other.ID] = other

	session := f.login(t)
	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)

	otherLogin, err := f.broker.Login(context.Background(), other.Email, "other-pass", identity.AuthorizeQuery{})
	require.NoError(t, err)

	_, err = f.broker.Decision(context.Background(), otherLogin.Session.ID, outcome.Transaction.ID, true)
	assert.ErrorIs(t, err, identity.ErrUnknownConsentTransaction)
}

func approvedCode(t *testing.T, f *oauthFixture) string {
	t.Helper()
	session := f.login(t)
	outcome, err := f.broker.AuthorizeDialog(context.Background(), session, f.query())
	require.NoError(t, err)
	redirect, err := f.broker.Decision(context.Background(), session, outcome.Transaction.ID, true)
	require.NoError(t, err)
	return codeFromRedirect(t, redirect)
}

func TestExchangeCodeHappyPath(t *testing.T) {
	f := newOauthFixture(t)
	code := approvedCode(t, f)

	resp, err := f.broker.ExchangeCode(context.Background(), "example-app", "hush", code)
	require.NoError(t, err)

	assert.Equal(t, "signed-token-for-"+f.user.ID.String(), resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Greater(t, resp.ExpiresIn, 0)

	// The access token was persisted alongside the spent code.
	grants := f.tokens.byType(identity.GrantToken)
	require.Len(t, grants, 1)
	assert.Equal(t, resp.AccessToken, grants[0].Token)
}

func TestExchangeCodeIsSingleUse(t *testing.T) {
	f := newOauthFixture(t)
	code := approvedCode(t, f)

	_, err := f.broker.ExchangeCode(context.Background(), "example-app", "hush", code)
	require.NoError(t, err)

	_, err = f.broker.ExchangeCode(context.Background(), "example-app", "hush", code)
	assert.ErrorIs(t, err, identity.ErrWrongAuthorizationCode)
}

func TestExchangeCodeValidation(t *testing.T) {
	f := newOauthFixture(t)
	code := approvedCode(t, f)

	t.Run("missing code", func(t *testing.T) {
		_, err := f.broker.ExchangeCode(context.Background(), "example-app", "hush", "")
		assert.ErrorIs(t, err, identity.ErrMissingAuthorizationCode)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.broker.ExchangeCode(context.Background(), "who-is-this", "hush", code)
		assert.ErrorIs(t, err, identity.ErrUnknownClient)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.broker.ExchangeCode(context.Background(), "example-app", "not-the-secret", code)
		assert.ErrorIs(t, err, identity.ErrUnknownClient)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.broker.ExchangeCode(context.Background(), "example-app", "hush", uuid.NewString())
		assert.ErrorIs(t, err, identity.ErrWrongAuthorizationCode)
	})
}

func TestExchangeCodeRejectsForeignClientCode(t *testing.T) {
	f := newOauthFixture(t)
	code := approvedCode(t, f)

	// Same code presented by a different registered client.
	other := &identity.Client{ID: uuid.New(), ClientID: "other-app", Secret: "sssh", RedirectURI: "https://other.example.com/cb"}
	dir := &fakeClientDirectory{clients: map[string]*identity.Client{
		f.client.ClientID: f.client,
		other.ClientID:    other,
	}}
	broker := identity.NewBroker(f.users, dir, f.tokens, fakeIssuer{}, nil)

	_, err := broker.ExchangeCode(context.Background(), "other-app", "sssh", code)
	assert.ErrorIs(t, err, identity.ErrWrongAuthorizationCode)
}

func TestExchangeCodeRejectsExpiredCode(t *testing.T) {
	f := newOauthFixture(t)

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, f.tokens.Store(context.Background(), &identity.OauthToken{
		Token:     "stale-code",
		Type:      identity.GrantCode,
		ClientID:  f.client.ID,
		UserID:    f.user.ID,
		ExpiresAt: &expired,
	}))

	_, err := f.broker.ExchangeCode(context.Background(), "example-app", "hush", "stale-code")
	assert.ErrorIs(t, err, identity.ErrWrongAuthorizationCode)
}

func TestDiscoveryAndJWKS(t *testing.T) {
	f := newOauthFixture(t)

	doc := f.broker.OpenIDConfiguration()
	assert.Contains(t, doc, "issuer")
	assert.Contains(t, doc, "authorization_endpoint")
	assert.Contains(t, doc, "token_endpoint")
	assert.Contains(t, doc, "jwks_uri")

	keys, err := f.broker.JWKS()
	require.NoError(t, err)
	assert.Len(t, keys["keys"], 1)
}
