package identity

import (
	"context"
	"database/sql"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type OauthTokens interface {
	repository.Repository[*OauthToken]

	// ConsumeCode deletes the code-typed record matching token and returns
	// it. Read and invalidation are one statement, so a code can be
	// exchanged at most once even under concurrent requests. A miss (or a
	// lost race) returns RecordNotFound.
	ConsumeCode(ctx context.Context, token string) (*OauthToken, error)
	ConsumeCodeTx(ctx context.Context, tx bun.IDB, token string) (*OauthToken, error)

	// Store inserts a grant record, code or access token alike.
	Store(ctx context.Context, record *OauthToken) error
}

type oauthTokens struct {
	repository.Repository[*OauthToken]
	db *bun.DB
}

var _ OauthTokens = (*oauthTokens)(nil)

func NewOauthTokensRepository(db *bun.DB) OauthTokens {
	repo := repository.NewRepository[*OauthToken](db, repository.ModelHandlers[*OauthToken]{
		NewRecord: func() *OauthToken { return &OauthToken{} },
		GetID: func(t *OauthToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *OauthToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &oauthTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *oauthTokens) ConsumeCode(ctx context.Context, token string) (*OauthToken, error) {
	return a.ConsumeCodeTx(ctx, a.db, token)
}

func (a *oauthTokens) ConsumeCodeTx(ctx context.Context, tx bun.IDB, token string) (*OauthToken, error) {
	record := &OauthToken{}
	err := tx.NewDelete().
		Model(record).
		Where("?TableAlias.token = ? AND ?TableAlias.type = ?", token, GrantCode).
		Returning("*").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"type": GrantCode})
		}
		return nil, err
	}

	return record, nil
}

func (a *oauthTokens) Store(ctx context.Context, record *OauthToken) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := a.db.NewInsert().Model(record).Exec(ctx)
	return err
}
