package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFullName(t *testing.T) {
	u := &identity.User{GivenName: "Ada", FamilyName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", u.FullName())

	u.MiddleName = "King"
	assert.Equal(t, "Ada King Lovelace", u.FullName())
}

func TestHasEmailAndEmailIndex(t *testing.T) {
	u := &identity.User{
		Email: "ada@example.com",
		Emails: []*identity.UserEmail{
			{Email: "work@example.com"},
			{Email: "old@example.com"},
		},
	}

	assert.True(t, u.HasEmail("ada@example.com"))
	assert.True(t, u.HasEmail("  ADA@Example.COM  "))
	assert.True(t, u.HasEmail("work@example.com"))
	assert.False(t, u.HasEmail("ghost@example.com"))

	assert.Equal(t, 0, u.EmailIndex("work@example.com"))
	assert.Equal(t, 1, u.EmailIndex("OLD@example.com"))
	assert.Equal(t, -1, u.EmailIndex("ada@example.com"), "primary address is not in the secondary set")
}

func TestHasAcceptedConnection(t *testing.T) {
	friend := uuid.New()
	pending := uuid.New()

	u := &identity.User{Connections: []*identity.Connection{
		{OtherUserID: friend, Pending: false},
		{OtherUserID: pending, Pending: true},
		nil,
	}}

	assert.True(t, u.HasAcceptedConnection(friend))
	assert.False(t, u.HasAcceptedConnection(pending))
	assert.False(t, u.HasAcceptedConnection(uuid.New()))
}

func TestHasAuthorizedClient(t *testing.T) {
	u := &identity.User{AuthorizedClients: []*identity.Client{
		{ClientID: "example-app"},
		nil,
	}}

	assert.True(t, u.HasAuthorizedClient("example-app"))
	assert.False(t, u.HasAuthorizedClient("other-app"))
}

func TestAffiliationsByKind(t *testing.T) {
	u := &identity.User{Affiliations: []*identity.Affiliation{
		{Kind: identity.KindOperations, Name: "Sudan Response"},
		{Kind: identity.KindBundles, Name: "Shelter"},
		{Kind: identity.KindOperations, Name: "Old Op", Deleted: true},
	}}

	ops := u.AffiliationsByKind(identity.KindOperations)
	assert.Len(t, ops, 1)
	assert.Equal(t, "Sudan Response", ops[0].Name)
}

func TestKnownAffiliationKind(t *testing.T) {
	for _, kind := range identity.AffiliationKinds() {
		assert.True(t, identity.KnownAffiliationKind(kind), kind)
	}
	assert.False(t, identity.KnownAffiliationKind("fanclubs"))
	assert.False(t, identity.KnownAffiliationKind(""))
}

func TestValidPhoneNumber(t *testing.T) {
	assert.True(t, identity.ValidPhoneNumber(""))
	assert.True(t, identity.ValidPhoneNumber("+41227301111"))
	assert.False(t, identity.ValidPhoneNumber("not-a-number"))
	assert.False(t, identity.ValidPhoneNumber("123"))
}

func TestHasLocalPhoneNumber(t *testing.T) {
	u := &identity.User{PhoneNumbers: []identity.PhoneRecord{
		{Type: "office", Number: "+41227301111"},
		{Type: "junk", Number: "garbage"},
	}}

	assert.True(t, u.HasLocalPhoneNumber("ch"))
	assert.False(t, u.HasLocalPhoneNumber("us"))
}

func TestClientRef(t *testing.T) {
	c := &identity.Client{
		ID:          uuid.New(),
		ClientID:    "example-app",
		Name:        "Example App",
		Secret:      "hush",
		RedirectURI: "https://app.example.com/callback",
	}

	ref := c.Ref()
	assert.Equal(t, c.ID, ref.ID)
	assert.Equal(t, "example-app", ref.ClientID)
	assert.Equal(t, "Example App", ref.Name)
	assert.Empty(t, ref.Secret)
	assert.Empty(t, ref.RedirectURI)

	assert.Nil(t, (*identity.Client)(nil).Ref())
}
