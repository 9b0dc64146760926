package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type CheckoutMessage struct {
	UserID        uuid.UUID       `json:"user_id"`
	Kind          AffiliationKind `json:"kind"`
	AffiliationID uuid.UUID       `json:"affiliation_id"`
}

func (e CheckoutMessage) Type() string { return "affiliation.checkout" }

// CheckoutHandler removes a user from a list-type collection. The
// singular organization slot clears unconditionally; removing an entry
// that is not present is a silent no-op so retried checkouts converge.
type CheckoutHandler struct {
	affiliations AffiliationWriter
	orgs         OrganizationWriter
	logger       Logger
}

func NewCheckoutHandler(affiliations AffiliationWriter, orgs OrganizationWriter) *CheckoutHandler {
	return &CheckoutHandler{
		affiliations: affiliations,
		orgs:         orgs,
		logger:       defLogger{},
	}
}

func (h *CheckoutHandler) WithLogger(logger Logger) *CheckoutHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CheckoutHandler) Execute(ctx context.Context, event CheckoutMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during checkout",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CheckoutHandler) execute(ctx context.Context, event CheckoutMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !KnownAffiliationKind(event.Kind) {
		return ErrUnknownAffiliationKind
	}

	if event.Kind == KindOrganization {
		if err := h.orgs.SetOrganization(ctx, event.UserID, nil); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear organization")
		}
		return nil
	}

	if err := h.affiliations.Checkout(ctx, event.UserID, event.Kind, event.AffiliationID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist checkout")
	}

	return nil
}
