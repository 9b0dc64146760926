package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultConsentTransactionTTL bounds how long a consent dialog can sit
// open before the decision is rejected.
const DefaultConsentTransactionTTL = 5 * time.Minute

// ConsentTransaction captures one pending authorize request between the
// consent dialog being shown and the user deciding. The transaction id
// is the only value that travels through the browser; everything the
// decision needs is pinned server-side so the form cannot be replayed
// against a different client or redirect target.
type ConsentTransaction struct {
	ID           string
	UserID       uuid.UUID
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
	ExpiresAt    time.Time
}

// ConsentTransactionStore is an expiring keyed map of pending authorize
// requests. Entries are evicted lazily on read and swept on write so an
// abandoned dialog never accumulates state.
type ConsentTransactionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[string]*ConsentTransaction
}

type ConsentTransactionOption func(*ConsentTransactionStore)

func WithConsentTransactionTTL(ttl time.Duration) ConsentTransactionOption {
	return func(s *ConsentTransactionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithConsentTransactionClock(clock Clock) ConsentTransactionOption {
	return func(s *ConsentTransactionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewConsentTransactionStore(opts ...ConsentTransactionOption) *ConsentTransactionStore {
	s := &ConsentTransactionStore{
		ttl:     DefaultConsentTransactionTTL,
		now:     time.Now,
		entries: map[string]*ConsentTransaction{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers the pending request and returns its id.
func (s *ConsentTransactionStore) Create(tx ConsentTransaction) *ConsentTransaction {
	tx.ID = uuid.NewString()
	tx.ExpiresAt = s.now().Add(s.ttl)

	s.mu.Lock()
	s.sweepLocked()
	s.entries[tx.ID] = &tx
	s.mu.Unlock()

	return &tx
}

// Consume removes and returns the transaction. A transaction can be
// consumed once; a second decision on the same id fails.
func (s *ConsentTransactionStore) Consume(id string) (*ConsentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.entries[id]
	if !ok {
		return nil, ErrUnknownConsentTransaction
	}
	delete(s.entries, id)

	if s.now().After(tx.ExpiresAt) {
		return nil, ErrUnknownConsentTransaction
	}

	return tx, nil
}

// Len reports live (unexpired) transactions.
func (s *ConsentTransactionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

func (s *ConsentTransactionStore) sweepLocked() {
	now := s.now()
	for id, tx := range s.entries {
		if now.After(tx.ExpiresAt) {
			delete(s.entries, id)
		}
	}
}
