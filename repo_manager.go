package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Clients() Clients
	Tokens() OauthTokens
	Affiliations() Affiliations
	Lists() repository.Repository[*List]
}

func NewListsRepository(db *bun.DB) repository.Repository[*List] {
	handlers := repository.ModelHandlers[*List]{
		NewRecord: func() *List {
			return &List{}
		},
		GetID: func(record *List) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *List, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db           *bun.DB
	users        Users
	clients      Clients
	tokens       OauthTokens
	affiliations Affiliations
	lists        repository.Repository[*List]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	// The m2m join model must be known to bun before any query walks the
	// AuthorizedClients relation.
	db.RegisterModel((*UserClient)(nil))

	return &mngr{
		db:           db,
		users:        NewUsersRepository(db),
		clients:      NewClientsRepository(db),
		tokens:       NewOauthTokensRepository(db),
		affiliations: NewAffiliationsRepository(db),
		lists:        NewListsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.clients == nil {
		return errors.New("repository clients should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	if m.affiliations == nil {
		return errors.New("repository affiliations should be initialized")
	}

	if m.lists == nil {
		return errors.New("repository lists should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Clients() Clients {
	return m.clients
}

func (m mngr) Tokens() OauthTokens {
	return m.tokens
}

func (m mngr) Affiliations() Affiliations {
	return m.affiliations
}

func (m mngr) Lists() repository.Repository[*List] {
	return m.lists
}
