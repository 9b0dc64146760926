package identity_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	identity "github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUserStore backs every user-lifecycle handler in these tests.
type fakeUserStore struct {
	users map[uuid.UUID]*identity.User
}

func newFakeUserStore(users ...*identity.User) *fakeUserStore {
	s := &fakeUserStore{users: map[uuid.UUID]*identity.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) Create(_ context.Context, record *identity.User, _ ...repository.InsertCriteria) (*identity.User, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.users[record.ID] = record
	return record, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if strings.ToLower(u.Email) == needle {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *fakeUserStore) GetByAnyEmail(_ context.Context, email string) (*identity.User, error) {
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.HasEmail(needle) {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *fakeUserStore) GetFull(_ context.Context, id uuid.UUID) (*identity.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (s *fakeUserStore) VerifyPrimaryEmail(_ context.Context, id uuid.UUID) error {
	u, ok := s.users[id]
	if !ok {
		return repository.NewRecordNotFound()
	}
	u.EmailVerified = true
	u.ExpiresAt = nil
	return nil
}

func (s *fakeUserStore) VerifySecondaryEmail(_ context.Context, userID uuid.UUID, email string) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.NewRecordNotFound()
	}
	if i := u.EmailIndex(email); i != -1 {
		u.Emails[i].Verified = true
	}
	return nil
}

func (s *fakeUserStore) ResetPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	u, ok := s.users[id]
	if !ok {
		return repository.NewRecordNotFound()
	}
	u.PasswordHash = passwordHash
	u.EmailVerified = true
	u.ExpiresAt = nil
	return nil
}

func (s *fakeUserStore) AddEmail(_ context.Context, record *identity.UserEmail) error {
	u, ok := s.users[record.UserID]
	if !ok {
		return repository.NewRecordNotFound()
	}
	u.Emails = append(u.Emails, record)
	return nil
}

func (s *fakeUserStore) DropEmail(_ context.Context, userID uuid.UUID, email string) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.NewRecordNotFound()
	}
	kept := u.Emails[:0]
	for _, e := range u.Emails {
		if !strings.EqualFold(e.Email, email) {
			kept = append(kept, e)
		}
	}
	u.Emails = kept
	return nil
}

type mailCall struct {
	kind string
	link string
}

type recordingMailer struct {
	calls []mailCall
}

func (m *recordingMailer) SendRegister(_ context.Context, _ *identity.User, verifyURL string) error {
	m.calls = append(m.calls, mailCall{"register", verifyURL})
	return nil
}

func (m *recordingMailer) SendPostRegister(_ context.Context, _ *identity.User) error {
	m.calls = append(m.calls, mailCall{"post_register", ""})
	return nil
}

func (m *recordingMailer) SendResetPassword(_ context.Context, _ *identity.User, resetURL string) error {
	m.calls = append(m.calls, mailCall{"reset_password", resetURL})
	return nil
}

func (m *recordingMailer) SendValidationEmail(_ context.Context, _ *identity.User, _, validationURL string) error {
	m.calls = append(m.calls, mailCall{"validation", validationURL})
	return nil
}

func (m *recordingMailer) SendClaim(_ context.Context, _ *identity.User, resetURL string) error {
	m.calls = append(m.calls, mailCall{"claim", resetURL})
	return nil
}

func (m *recordingMailer) last(t *testing.T, kind string) mailCall {
	t.Helper()
	require.NotEmpty(t, m.calls)
	call := m.calls[len(m.calls)-1]
	require.Equal(t, kind, call.kind)
	return call
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token, link)
	return token
}

func TestRegisterUserCreatesUnverifiedAccount(t *testing.T) {
	store := newFakeUserStore()
	mailer := &recordingMailer{}
	proofs := identity.NewProofTokenService()
	handler := identity.NewRegisterUserHandler(store, proofs, mailer)

	var created *identity.User
	err := handler.Execute(context.Background(), identity.RegisterUserMessage{
		GivenName:    "Ada",
		FamilyName:   "Lovelace",
		Email:        "Ada@Example.com",
		Password:     "difference-engine",
		AppVerifyURL: "https://app.example.com/verify",
		OnResponse:   func(u *identity.User) { created = u },
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, "Ada Lovelace", created.Name)
	assert.False(t, created.EmailVerified)
	require.NotNil(t, created.ExpiresAt)
	assert.NoError(t, identity.ComparePasswordAndHash("difference-engine", created.PasswordHash))

	call := mailer.last(t, "register")
	assert.True(t, strings.HasPrefix(call.link, "https://app.example.com/verify?token="), call.link)
}

func TestRegisterUserValidation(t *testing.T) {
	handler := identity.NewRegisterUserHandler(newFakeUserStore(), identity.NewProofTokenService(), &recordingMailer{})

	err := handler.Execute(context.Background(), identity.RegisterUserMessage{
		Email: "ada@example.com",
	})
	assert.Error(t, err, "missing verify url")

	err = handler.Execute(context.Background(), identity.RegisterUserMessage{
		AppVerifyURL: "https://app.example.com/verify",
	})
	assert.Error(t, err, "missing email")
}

func TestRegisterUserWithoutPasswordSeedsUnguessableHash(t *testing.T) {
	store := newFakeUserStore()
	handler := identity.NewRegisterUserHandler(store, identity.NewProofTokenService(), &recordingMailer{})

	var created *identity.User
	err := handler.Execute(context.Background(), identity.RegisterUserMessage{
		Email:        "ada@example.com",
		AppVerifyURL: "https://app.example.com/verify",
		OnResponse:   func(u *identity.User) { created = u },
	})
	require.NoError(t, err)

	require.NotEmpty(t, created.PasswordHash)
	assert.Error(t, identity.ComparePasswordAndHash("", created.PasswordHash))
}

func TestRegisterUserAdminCreatedSendsClaim(t *testing.T) {
	mailer := &recordingMailer{}
	handler := identity.NewRegisterUserHandler(newFakeUserStore(), identity.NewProofTokenService(), mailer)

	err := handler.Execute(context.Background(), identity.RegisterUserMessage{
		Email:        "ada@example.com",
		AppVerifyURL: "https://app.example.com/claim",
		AdminCreated: true,
	})
	require.NoError(t, err)
	mailer.last(t, "claim")
}

func TestRegisterThenVerifyRoundTrip(t *testing.T) {
	store := newFakeUserStore()
	mailer := &recordingMailer{}
	proofs := identity.NewProofTokenService()

	register := identity.NewRegisterUserHandler(store, proofs, mailer)
	verify := identity.NewVerifyEmailHandler(store, proofs, mailer)

	var created *identity.User
	require.NoError(t, register.Execute(context.Background(), identity.RegisterUserMessage{
		Email:        "ada@example.com",
		Password:     "difference-engine",
		AppVerifyURL: "https://app.example.com/verify",
		OnResponse:   func(u *identity.User) { created = u },
	}))

	token := tokenFromLink(t, mailer.last(t, "register").link)

	var verified *identity.User
	require.NoError(t, verify.Execute(context.Background(), identity.VerifyEmailMessage{
		Token:      token,
		OnResponse: func(u *identity.User) { verified = u },
	}))

	assert.Equal(t, created.ID, verified.ID)
	assert.True(t, verified.EmailVerified)
	assert.Nil(t, verified.ExpiresAt)
	mailer.last(t, "post_register")
}

func TestVerifySecondaryEmailOnlyFlipsThatAddress(t *testing.T) {
	user := seedAccount(t, "difference-engine")
	user.Emails = []*identity.UserEmail{
		{ID: uuid.New(), UserID: user.ID, Email: "work@example.com"},
	}
	user.EmailVerified = false

	store := newFakeUserStore(user)
	mailer := &recordingMailer{}
	proofs := identity.NewProofTokenService()

	token, err := proofs.Generate(user, "work@example.com")
	require.NoError(t, err)

	verify := identity.NewVerifyEmailHandler(store, proofs, mailer)
	require.NoError(t, verify.Execute(context.Background(), identity.VerifyEmailMessage{Token: token}))

	assert.True(t, user.Emails[0].Verified)
	assert.False(t, user.EmailVerified)
	assert.Empty(t, mailer.calls, "no post-register mail for secondary addresses")
}

func TestInitializePasswordResetUnknownEmail(t *testing.T) {
	handler := identity.NewInitializePasswordResetHandler(newFakeUserStore(), identity.NewProofTokenService(), &recordingMailer{})

	err := handler.Execute(context.Background(), identity.InitializePasswordResetMessage{
		Email:       "nobody@example.com",
		AppResetURL: "https://app.example.com/reset",
	})
	assert.ErrorIs(t, err, identity.ErrUnknownSubject)
}

func TestPasswordResetRoundTrip(t *testing.T) {
	user := seedAccount(t, "old-password")
	store := newFakeUserStore(user)
	mailer := &recordingMailer{}
	proofs := identity.NewProofTokenService()

	initialize := identity.NewInitializePasswordResetHandler(store, proofs, mailer)
	finalize := identity.NewFinalizePasswordResetHandler(store, proofs)

	require.NoError(t, initialize.Execute(context.Background(), identity.InitializePasswordResetMessage{
		Email:       user.Email,
		AppResetURL: "https://app.example.com/reset",
	}))

	token := tokenFromLink(t, mailer.last(t, "reset_password").link)

	require.NoError(t, finalize.Execute(context.Background(), identity.FinalizePasswordResetMessage{
		Token:    token,
		Password: "new-password",
	}))

	assert.NoError(t, identity.ComparePasswordAndHash("new-password", user.PasswordHash))
	assert.Error(t, identity.ComparePasswordAndHash("old-password", user.PasswordHash))
	assert.True(t, user.EmailVerified)

	// Rotating the hash spent the link: a replay fails.
	err := finalize.Execute(context.Background(), identity.FinalizePasswordResetMessage{
		Token:    token,
		Password: "another-password",
	})
	assert.ErrorIs(t, err, identity.ErrProofConsumed)
}

func TestFinalizePasswordResetRequiresPassword(t *testing.T) {
	handler := identity.NewFinalizePasswordResetHandler(newFakeUserStore(), identity.NewProofTokenService())

	err := handler.Execute(context.Background(), identity.FinalizePasswordResetMessage{Token: "whatever"})
	assert.Error(t, err)
}

func TestAddEmailSendsValidationLink(t *testing.T) {
	user := seedAccount(t, "difference-engine")
	store := newFakeUserStore(user)
	mailer := &recordingMailer{}
	handler := identity.NewAddEmailHandler(store, identity.NewProofTokenService(), mailer)

	var added *identity.UserEmail
	err := handler.Execute(context.Background(), identity.AddEmailMessage{
		UserID:           user.ID,
		Email:            "Work@Example.com",
		AppValidationURL: "https://app.example.com/validate",
		OnResponse:       func(e *identity.UserEmail) { added = e },
	})
	require.NoError(t, err)

	require.NotNil(t, added)
	assert.Equal(t, "work@example.com", added.Email)
	assert.False(t, added.Verified)
	require.Len(t, user.Emails, 1)

	tokenFromLink(t, mailer.last(t, "validation").link)
}

func TestAddEmailRejectsDuplicates(t *testing.T) {
	user := seedAccount(t, "difference-engine")
	store := newFakeUserStore(user)
	handler := identity.NewAddEmailHandler(store, identity.NewProofTokenService(), &recordingMailer{})

	// The primary address counts as taken.
	err := handler.Execute(context.Background(), identity.AddEmailMessage{
		UserID:           user.ID,
		Email:            user.Email,
		AppValidationURL: "https://app.example.com/validate",
	})
	assert.Error(t, err)
}

func TestDropEmail(t *testing.T) {
	user := seedAccount(t, "difference-engine")
	user.Emails = []*identity.UserEmail{
		{ID: uuid.New(), UserID: user.ID, Email: "work@example.com", Verified: true},
	}
	store := newFakeUserStore(user)
	handler := identity.NewDropEmailHandler(store)

	t.Run("primary cannot be dropped", func(t *testing.T) {
		err := handler.Execute(context.Background(), identity.DropEmailMessage{UserID: user.ID, Email: user.Email})
		assert.Error(t, err)
	})

	t.Run("unknown address is rejected", func(t *testing.T) {
		err := handler.Execute(context.Background(), identity.DropEmailMessage{UserID: user.ID, Email: "ghost@example.com"})
		assert.Error(t, err)
	})

	t.Run("secondary address is removed", func(t *testing.T) {
		err := handler.Execute(context.Background(), identity.DropEmailMessage{UserID: user.ID, Email: "work@example.com"})
		require.NoError(t, err)
		assert.Empty(t, user.Emails)
	})
}

func TestClaimEmailMailsResetStyleLink(t *testing.T) {
	user := seedAccount(t, "difference-engine")
	store := newFakeUserStore(user)
	mailer := &recordingMailer{}
	proofs := identity.NewProofTokenService()
	handler := identity.NewClaimEmailHandler(store, proofs, mailer)

	require.NoError(t, handler.Execute(context.Background(), identity.ClaimEmailMessage{
		UserID:      user.ID,
		AppResetURL: "https://app.example.com/claim",
	}))

	token := tokenFromLink(t, mailer.last(t, "claim").link)

	// A claim link settles through the password reset flow.
	finalize := identity.NewFinalizePasswordResetHandler(store, proofs)
	require.NoError(t, finalize.Execute(context.Background(), identity.FinalizePasswordResetMessage{
		Token:    token,
		Password: "my-own-password",
	}))
	assert.NoError(t, identity.ComparePasswordAndHash("my-own-password", user.PasswordHash))
}
