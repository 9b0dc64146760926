package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AffiliationWriter is the slice of the affiliations repository the
// checkin/checkout handlers need.
type AffiliationWriter interface {
	Checkin(ctx context.Context, record *Affiliation) (bool, error)
	Checkout(ctx context.Context, userID uuid.UUID, kind AffiliationKind, affiliationID uuid.UUID) error
}

// OrganizationWriter updates the singular organization slot.
type OrganizationWriter interface {
	SetOrganization(ctx context.Context, userID uuid.UUID, org *Affiliation) error
}

type CheckinMessage struct {
	UserID     uuid.UUID             `json:"user_id"`
	Kind       AffiliationKind       `json:"kind"`
	ListID     uuid.UUID             `json:"list_id"`
	Visibility AffiliationVisibility `json:"visibility"`
	OnResponse func(*Affiliation)
}

func (e CheckinMessage) Type() string { return "affiliation.checkin" }

// CheckinHandler adds a user to a list-type collection. The list's
// declared type must match the target kind, joinability decides the
// pending flag, and the duplicate check is settled by the storage
// layer's conditional insert rather than a read-then-write.
type CheckinHandler struct {
	affiliations AffiliationWriter
	orgs         OrganizationWriter
	lists        ListResolver
	logger       Logger
}

func NewCheckinHandler(affiliations AffiliationWriter, orgs OrganizationWriter, lists ListResolver) *CheckinHandler {
	return &CheckinHandler{
		affiliations: affiliations,
		orgs:         orgs,
		lists:        lists,
		logger:       defLogger{},
	}
}

func (h *CheckinHandler) WithLogger(logger Logger) *CheckinHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CheckinHandler) Execute(ctx context.Context, event CheckinMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during checkin",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CheckinHandler) execute(ctx context.Context, event CheckinMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !KnownAffiliationKind(event.Kind) {
		return ErrUnknownAffiliationKind
	}

	list, err := h.lists.ResolveList(ctx, event.ListID)
	if err != nil {
		return err
	}

	if !kindMatchesListType(event.Kind, list.Type) {
		return ErrWrongListType
	}

	visibility := event.Visibility
	if visibility == "" {
		visibility = AffiliationVisibleToAll
	}

	record := &Affiliation{
		ID:         uuid.New(),
		UserID:     event.UserID,
		Kind:       event.Kind,
		ListID:     list.ID,
		Name:       list.Name,
		Acronym:    list.Acronym,
		Visibility: visibility,
		Pending:    isPendingCheckin(list.Joinability),
	}

	// The singular organization slot replaces instead of appending.
	if event.Kind == KindOrganization {
		if err := h.orgs.SetOrganization(ctx, event.UserID, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set organization")
		}
	} else {
		inserted, err := h.affiliations.Checkin(ctx, record)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist checkin")
		}
		if !inserted {
			return ErrAlreadyCheckedIn
		}
	}

	h.logger.Debug("checkin user=%s kind=%s list=%s pending=%t", event.UserID, event.Kind, list.ID, record.Pending)

	if event.OnResponse != nil {
		event.OnResponse(record)
	}

	return nil
}

// isPendingCheckin gates auto-approval on joinability. Unknown policies
// fall through to pending, the conservative default.
func isPendingCheckin(joinability Joinability) bool {
	switch joinability {
	case JoinabilityPublic, JoinabilityPrivate:
		return false
	default:
		return true
	}
}
