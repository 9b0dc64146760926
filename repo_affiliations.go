package identity

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Affiliations interface {
	repository.Repository[*Affiliation]

	// Checkin inserts the affiliation unless an active entry for the same
	// (user, kind, list) already exists. The partial unique index makes
	// the duplicate check and the insert a single atomic statement, so
	// two concurrent checkins cannot both succeed. Returns false when the
	// insert lost to an existing row.
	Checkin(ctx context.Context, record *Affiliation) (bool, error)
	CheckinTx(ctx context.Context, tx bun.IDB, record *Affiliation) (bool, error)

	// Checkout removes the entry with the given id from one user's kind
	// collection. Removing a missing id is a silent no-op.
	Checkout(ctx context.Context, userID uuid.UUID, kind AffiliationKind, affiliationID uuid.UUID) error
}

type affiliations struct {
	repository.Repository[*Affiliation]
	db *bun.DB
}

var _ Affiliations = (*affiliations)(nil)

func NewAffiliationsRepository(db *bun.DB) Affiliations {
	repo := repository.NewRepository[*Affiliation](db, repository.ModelHandlers[*Affiliation]{
		NewRecord: func() *Affiliation { return &Affiliation{} },
		GetID: func(a *Affiliation) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Affiliation, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	return &affiliations{
		Repository: repo,
		db:         db,
	}
}

func (a *affiliations) Checkin(ctx context.Context, record *Affiliation) (bool, error) {
	return a.CheckinTx(ctx, a.db, record)
}

func (a *affiliations) CheckinTx(ctx context.Context, tx bun.IDB, record *Affiliation) (bool, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	res, err := tx.NewInsert().
		Model(record).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (a *affiliations) Checkout(ctx context.Context, userID uuid.UUID, kind AffiliationKind, affiliationID uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Affiliation)(nil)).
		Where("user_id = ? AND kind = ? AND id = ?", userID, kind, affiliationID).
		Exec(ctx)
	return err
}
