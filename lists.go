package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// listResolverTimeout bounds list lookups: resolving a list may reach an
// external directory and a slow answer must not stall a checkin.
const listResolverTimeout = 5 * time.Second

// RepositoryListResolver serves list lookups from the local lists table.
type RepositoryListResolver struct {
	lists repository.Repository[*List]
}

var _ ListResolver = (*RepositoryListResolver)(nil)

func NewRepositoryListResolver(lists repository.Repository[*List]) *RepositoryListResolver {
	return &RepositoryListResolver{lists: lists}
}

func (r *RepositoryListResolver) ResolveList(ctx context.Context, id uuid.UUID) (*List, error) {
	ctx, cancel := context.WithTimeout(ctx, listResolverTimeout)
	defer cancel()

	list, err := r.lists.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("list not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"list_id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve list")
	}

	return list, nil
}
