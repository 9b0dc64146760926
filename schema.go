package identity

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateSchema creates the tables and indexes the repositories expect.
// Meant for embedded/sqlite deployments and test harnesses; production
// setups drive the same DDL through their migration tooling.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	db.RegisterModel((*UserClient)(nil))

	models := []any{
		(*User)(nil),
		(*UserEmail)(nil),
		(*Affiliation)(nil),
		(*Connection)(nil),
		(*Client)(nil),
		(*UserClient)(nil),
		(*OauthToken)(nil),
		(*List)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	// One active checkin per (user, kind, list). The partial unique index
	// is what turns the checkin duplicate check into a single atomic
	// insert; without it two concurrent checkins could both commit.
	if _, err := db.NewCreateIndex().
		Model((*Affiliation)(nil)).
		Index("affiliations_active_checkin_idx").
		IfNotExists().
		Unique().
		Column("user_id", "kind", "list_id").
		Where("deleted = FALSE").
		Exec(ctx); err != nil {
		return err
	}

	return nil
}
