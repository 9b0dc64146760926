package identity

import (
	"context"
	"encoding/json"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerifyPrimaryEmailSQL flips the account to verified and clears the
// registration expiry. Raw SQL because a zero-value-aware ORM update would
// skip boolean resets.
var VerifyPrimaryEmailSQL = `UPDATE "users" AS "usr"
SET
	"email_verified" = TRUE,
	"expires_at" = NULL
WHERE
	"usr"."id" = ?
RETURNING *;`

// ResetUserPasswordSQL swaps the password hash and, because the reset link
// proved control of the mailbox, marks the email verified in the same
// statement.
var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"email_verified" = TRUE,
	"expires_at" = NULL,
	"password_hash" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

type Users interface {
	repository.Repository[*User]

	// GetByEmail resolves by primary address, case-insensitive and
	// trimmed. Deleted users are returned; callers decide how deletion
	// surfaces (login deliberately merges it with bad credentials).
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	// GetByAnyEmail resolves by primary or secondary address, for proof
	// token validation where the link may target an unverified secondary.
	GetByAnyEmail(ctx context.Context, email string) (*User, error)

	// GetFull loads the record with all owned collections.
	GetFull(ctx context.Context, id uuid.UUID) (*User, error)

	// AuthorizeClient appends the client to the user's consented set. The
	// append is idempotent at the storage layer: concurrent calls for the
	// same pair leave exactly one row.
	AuthorizeClient(ctx context.Context, userID, clientID uuid.UUID) error
	AuthorizeClientTx(ctx context.Context, tx bun.IDB, userID, clientID uuid.UUID) error

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	// VerifyPrimaryEmail marks the account verified and clears expiry.
	VerifyPrimaryEmail(ctx context.Context, id uuid.UUID) error

	// VerifySecondaryEmail flips the verified flag on one address row.
	VerifySecondaryEmail(ctx context.Context, userID uuid.UUID, email string) error

	AddEmail(ctx context.Context, record *UserEmail) error
	DropEmail(ctx context.Context, userID uuid.UUID, email string) error

	// SetOrganization replaces the singular organization slot, or clears
	// it when org is nil.
	SetOrganization(ctx context.Context, userID uuid.UUID, org *Affiliation) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func userRelations(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Emails").
		Relation("Affiliations").
		Relation("Connections").
		Relation("AuthorizedClients")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := userRelations(tx.NewSelect().Model(record)).
		Where("lower(?TableAlias.email) = ?", normalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": normalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByAnyEmail(ctx context.Context, email string) (*User, error) {
	needle := normalizeEmail(email)
	record := &User{}

	err := userRelations(a.db.NewSelect().Model(record)).
		Join("LEFT JOIN user_emails AS uem ON uem.user_id = ?TableAlias.id").
		Where("lower(?TableAlias.email) = ? OR lower(uem.email) = ?", needle, needle).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": needle})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetFull(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := userRelations(a.db.NewSelect().Model(record)).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) AuthorizeClient(ctx context.Context, userID, clientID uuid.UUID) error {
	return a.AuthorizeClientTx(ctx, a.db, userID, clientID)
}

func (a *users) AuthorizeClientTx(ctx context.Context, tx bun.IDB, userID, clientID uuid.UUID) error {
	// The composite primary key turns concurrent appends for the same
	// pair into a single row. Losing the race is not an error.
	_, err := tx.NewInsert().
		Model(&UserClient{UserID: userID, ClientID: clientID}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) VerifyPrimaryEmail(ctx context.Context, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, a.db, VerifyPrimaryEmailSQL, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) VerifySecondaryEmail(ctx context.Context, userID uuid.UUID, email string) error {
	_, err := a.db.NewUpdate().
		Model((*UserEmail)(nil)).
		Set("verified = TRUE").
		Where("user_id = ? AND lower(email) = ?", userID, normalizeEmail(email)).
		Exec(ctx)
	return err
}

func (a *users) AddEmail(ctx context.Context, record *UserEmail) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = normalizeEmail(record.Email)
	_, err := a.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (a *users) DropEmail(ctx context.Context, userID uuid.UUID, email string) error {
	_, err := a.db.NewDelete().
		Model((*UserEmail)(nil)).
		Where("user_id = ? AND lower(email) = ?", userID, normalizeEmail(email)).
		Exec(ctx)
	return err
}

func (a *users) SetOrganization(ctx context.Context, userID uuid.UUID, org *Affiliation) error {
	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", userID)

	if org == nil {
		q = q.Set("organization = NULL")
	} else {
		payload, err := json.Marshal(org)
		if err != nil {
			return err
		}
		q = q.Set("organization = ?", string(payload))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": userID.String()})
	}

	return nil
}
