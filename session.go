package identity

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a login session stays valid without
// the transport layer refreshing it.
const DefaultSessionTTL = 24 * time.Hour

// Session is a server-side login session. Only the subject id lives
// here; everything else is re-read from storage on each request so a
// session never serves stale profile data.
type Session struct {
	ID        string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore keeps login sessions keyed by an opaque id.
type SessionStore interface {
	Create(userID uuid.UUID) (*Session, error)
	Get(id string) (*Session, error)
	Delete(id string)
}

// MemorySessionStore is the default in-process SessionStore. Expired
// entries are dropped lazily on read.
type MemorySessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     Clock
	entries map[string]*Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

type SessionOption func(*MemorySessionStore)

func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *MemorySessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSessionClock(clock Clock) SessionOption {
	return func(s *MemorySessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewMemorySessionStore(opts ...SessionOption) *MemorySessionStore {
	s := &MemorySessionStore{
		ttl:     DefaultSessionTTL,
		now:     time.Now,
		entries: map[string]*Session{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySessionStore) Create(userID uuid.UUID) (*Session, error) {
	id, err := randomSessionID()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate session id")
	}

	now := s.now()
	session := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.entries[id] = session
	s.mu.Unlock()

	return session, nil
}

func (s *MemorySessionStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.entries[id]
	if !ok {
		return nil, ErrNoSession
	}

	if s.now().After(session.ExpiresAt) {
		delete(s.entries, id)
		return nil, ErrNoSession
	}

	return session, nil
}

func (s *MemorySessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

func randomSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
