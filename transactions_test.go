package identity_test

import (
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsentTransactionRoundTrip(t *testing.T) {
	store := identity.NewConsentTransactionStore()

	tx := store.Create(identity.ConsentTransaction{
		UserID:       uuid.New(),
		ClientID:     "example-app",
		RedirectURI:  "https://app.example.com/callback",
		ResponseType: "code",
		State:        "xyzzy",
	})

	require.NotEmpty(t, tx.ID)
	assert.Equal(t, 1, store.Len())

	got, err := store.Consume(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "example-app", got.ClientID)
	assert.Equal(t, "xyzzy", got.State)
	assert.Equal(t, 0, store.Len())
}

func TestConsentTransactionConsumeOnce(t *testing.T) {
	store := identity.NewConsentTransactionStore()
	tx := store.Create(identity.ConsentTransaction{UserID: uuid.New()})

	_, err := store.Consume(tx.ID)
	require.NoError(t, err)

	_, err = store.Consume(tx.ID)
	assert.ErrorIs(t, err, identity.ErrUnknownConsentTransaction)
}

func TestConsentTransactionExpiry(t *testing.T) {
	now := time.Now()
	store := identity.NewConsentTransactionStore(
		identity.WithConsentTransactionTTL(5*time.Minute),
		identity.WithConsentTransactionClock(func() time.Time { return now }),
	)

	tx := store.Create(identity.ConsentTransaction{UserID: uuid.New()})

	now = now.Add(6 * time.Minute)
	_, err := store.Consume(tx.ID)
	assert.ErrorIs(t, err, identity.ErrUnknownConsentTransaction)
}

func TestConsentTransactionSweep(t *testing.T) {
	now := time.Now()
	store := identity.NewConsentTransactionStore(
		identity.WithConsentTransactionTTL(time.Minute),
		identity.WithConsentTransactionClock(func() time.Time { return now }),
	)

	store.Create(identity.ConsentTransaction{UserID: uuid.New()})
	store.Create(identity.ConsentTransaction{UserID: uuid.New()})
	assert.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, store.Len())
}

func TestConsentTransactionUnknownID(t *testing.T) {
	store := identity.NewConsentTransactionStore()
	_, err := store.Consume(uuid.NewString())
	assert.ErrorIs(t, err, identity.ErrUnknownConsentTransaction)
}
