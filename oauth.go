package identity

import (
	"context"
	"errors"
	"net/url"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AuthorizeOutcome is the result of entering the authorize dialog.
// Exactly one of RedirectURI or Transaction is set: a redirect means
// the flow moved on (to login, or straight back to the relying party
// for an already-consented client); a transaction means the consent
// prompt must be rendered.
type AuthorizeOutcome struct {
	RedirectURI string
	Transaction *ConsentTransaction
	Client      *Client
	User        *User
}

// TokenResponse is the access-token grant payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	State       string `json:"state,omitempty"`
}

// AuthorizeDialog validates an incoming authorize request and decides
// whether to bounce to login, skip consent, or open a consent
// transaction.
func (b *Broker) AuthorizeDialog(ctx context.Context, sessionID string, q AuthorizeQuery) (*AuthorizeOutcome, error) {
	if q.ResponseType == "" {
		return nil, ErrMissingResponseType
	}

	user, err := b.CurrentUser(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return &AuthorizeOutcome{
				RedirectURI: b.loginPath + "?" + q.Values().Encode(),
			}, nil
		}
		return nil, err
	}

	client, err := b.resolveClient(ctx, q.ClientID)
	if err != nil {
		return nil, err
	}

	if client.RedirectURI != q.RedirectURI {
		b.logger.Warn("authorize request for client %s with unregistered redirect uri", client.ClientID)
		return nil, ErrWrongRedirectURI
	}

	// Prior consent short-circuits the dialog.
	if user.HasAuthorizedClient(client.ClientID) {
		redirect, err := b.issueCode(ctx, user.ID, client, q.RedirectURI, q.State)
		if err != nil {
			return nil, err
		}
		return &AuthorizeOutcome{RedirectURI: redirect}, nil
	}

	tx := b.consents.Create(ConsentTransaction{
		UserID:       user.ID,
		ClientID:     client.ClientID,
		RedirectURI:  q.RedirectURI,
		ResponseType: q.ResponseType,
		Scope:        q.Scope,
		State:        q.State,
	})

	return &AuthorizeOutcome{
		Transaction: tx,
		Client:      client.Ref(),
		User:        Project(user, user),
	}, nil
}

// Decision settles a consent transaction. Approval appends the client
// to the user's consented set and issues a single-use authorization
// code; cancellation redirects back with access_denied and mutates
// nothing. Either way the transaction is spent.
func (b *Broker) Decision(ctx context.Context, sessionID, transactionID string, approved bool) (string, error) {
	session, err := b.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	tx, err := b.consents.Consume(transactionID)
	if err != nil {
		return "", err
	}

	// A transaction only settles for the session that opened it.
	if tx.UserID != session.UserID {
		return "", ErrUnknownConsentTransaction
	}

	if !approved {
		vals := url.Values{}
		vals.Set("error", "access_denied")
		if tx.State != "" {
			vals.Set("state", tx.State)
		}
		return tx.RedirectURI + "?" + vals.Encode(), nil
	}

	client, err := b.resolveClient(ctx, tx.ClientID)
	if err != nil {
		return "", err
	}

	if err := b.users.AuthorizeClient(ctx, tx.UserID, client.ID); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record consent")
	}

	return b.issueCode(ctx, tx.UserID, client, tx.RedirectURI, tx.State)
}

// ExchangeCode swaps an authorization code for an access token. The
// code is consumed atomically, so replays and concurrent exchanges lose.
func (b *Broker) ExchangeCode(ctx context.Context, clientID, clientSecret, code string) (*TokenResponse, error) {
	if code == "" {
		return nil, ErrMissingAuthorizationCode
	}

	client, err := b.resolveClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if client.Secret == "" || client.Secret != clientSecret {
		return nil, ErrUnknownClient
	}

	record, err := b.tokens.ConsumeCode(ctx, code)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrWrongAuthorizationCode
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume authorization code")
	}

	if record.ClientID != client.ID {
		return nil, ErrWrongAuthorizationCode
	}

	if record.ExpiresAt == nil || b.now().After(*record.ExpiresAt) {
		return nil, ErrWrongAuthorizationCode
	}

	access, err := b.issuer.Issue(record.UserID.String())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue access token")
	}

	expiresAt := b.now().Add(b.accessTTL)
	grant := &OauthToken{
		Token:     access,
		Type:      GrantToken,
		ClientID:  client.ID,
		UserID:    record.UserID,
		ExpiresAt: &expiresAt,
	}
	if err := b.tokens.Store(ctx, grant); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store access token")
	}

	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(b.accessTTL.Seconds()),
	}, nil
}

// OpenIDConfiguration renders the discovery document.
func (b *Broker) OpenIDConfiguration() map[string]any {
	issuer := b.issuerID
	if issuer == "" {
		issuer = b.baseURL
	}

	return map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                b.baseURL + b.authorizePath,
		"token_endpoint":                        b.baseURL + "/oauth/access_token",
		"jwks_uri":                              b.baseURL + "/oauth/jwks",
		"response_types_supported":              []string{"code", "token"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
}

// JWKS renders the published key set.
func (b *Broker) JWKS() (map[string]any, error) {
	jwk, err := b.issuer.PublicJWK()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render JWKS")
	}
	return map[string]any{"keys": []map[string]any{jwk}}, nil
}

func (b *Broker) resolveClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, ErrUnknownClient
	}

	client, err := b.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnknownClient
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load client")
	}

	return client, nil
}

func (b *Broker) issueCode(ctx context.Context, userID uuid.UUID, client *Client, redirectURI, state string) (string, error) {
	code := uuid.NewString()

	expiresAt := b.now().Add(b.codeTTL)
	record := &OauthToken{
		Token:     code,
		Type:      GrantCode,
		ClientID:  client.ID,
		UserID:    userID,
		ExpiresAt: &expiresAt,
	}
	if err := b.tokens.Store(ctx, record); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store authorization code")
	}

	vals := url.Values{}
	vals.Set("code", code)
	if state != "" {
		vals.Set("state", state)
	}

	return redirectURI + "?" + vals.Encode(), nil
}
