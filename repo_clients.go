package identity

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Clients interface {
	repository.Repository[*Client]

	// GetByClientID resolves a relying party by its public identifier.
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
}

type clients struct {
	repository.Repository[*Client]
	db *bun.DB
}

var _ Clients = (*clients)(nil)

func NewClientsRepository(db *bun.DB) Clients {
	repo := repository.NewRepository[*Client](db, repository.ModelHandlers[*Client]{
		NewRecord: func() *Client { return &Client{} },
		GetID: func(c *Client) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Client, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "client_id"
		},
	})

	return &clients{
		Repository: repo,
		db:         db,
	}
}

func (a *clients) GetByClientID(ctx context.Context, clientID string) (*Client, error) {
	record := &Client{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.client_id = ?", clientID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"client_id": clientID})
		}
		return nil, err
	}

	return record, nil
}
