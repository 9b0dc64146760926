package identity

// Project returns the redacted view of target for the given viewer. The
// projection is pure: it never mutates either argument and performs no I/O,
// so it can run on an already-fetched snapshot without locking.
//
// The raw password hash is stripped for every viewer, the target included.
// Viewing yourself or being an admin bypasses contact redaction entirely;
// managers bypass only the affiliation redaction.
func Project(target, viewer *User) *User {
	if target == nil {
		return nil
	}

	if viewer == nil {
		viewer = &User{}
	}

	out := cloneUser(target)
	out.PasswordHash = ""

	projectClients(out)
	projectAffiliations(out, target, viewer)

	if target.ID == viewer.ID || viewer.IsAdmin {
		return out
	}

	if redactCategory(target.EmailsVisibility, target, viewer) {
		out.Email = ""
		out.Emails = []*UserEmail{}
	}

	if redactCategory(target.PhonesVisibility, target, viewer) {
		out.PhoneNumber = ""
		out.PhoneNumbers = []PhoneRecord{}
	}

	if redactCategory(target.LocationsVisibility, target, viewer) {
		out.Location = nil
		out.Locations = []map[string]any{}
	}

	return out
}

// redactCategory decides whether one contact category is hidden from viewer.
func redactCategory(policy VisibilityPolicy, target, viewer *User) bool {
	switch policy {
	case VisibilityAnyone:
		return false
	case VisibilityVerified:
		return !viewer.Verified
	case VisibilityConnections:
		return !target.HasAcceptedConnection(viewer.ID)
	default:
		// Unknown policies hide rather than leak.
		return true
	}
}

// projectClients reduces authorized clients to {id, name} pairs. The
// relying party secret must never appear in a projection, not even for the
// account owner.
func projectClients(out *User) {
	if len(out.AuthorizedClients) == 0 {
		return
	}
	refs := make([]*Client, 0, len(out.AuthorizedClients))
	for _, c := range out.AuthorizedClients {
		if c != nil {
			refs = append(refs, c.Ref())
		}
	}
	out.AuthorizedClients = refs
}

// projectAffiliations drops deleted entries for everyone and applies the
// per-affiliation visibility for viewers who are not the target, an admin
// or a manager. The singular organization slot is not subject to
// per-affiliation visibility.
func projectAffiliations(out *User, target, viewer *User) {
	bypass := target.ID == viewer.ID || viewer.IsAdmin || viewer.IsManager

	kept := make([]*Affiliation, 0, len(out.Affiliations))
	for _, a := range out.Affiliations {
		if a == nil || a.Deleted {
			continue
		}
		if !bypass && hiddenAffiliation(a, viewer) {
			continue
		}
		kept = append(kept, a)
	}
	out.Affiliations = kept
}

func hiddenAffiliation(a *Affiliation, viewer *User) bool {
	switch a.Visibility {
	case AffiliationVisibleToMe, AffiliationVisibleInList:
		return true
	case AffiliationVisibleToVerified:
		return !viewer.Verified
	}
	return false
}

// cloneUser copies the record and its slice headers so redaction can
// replace collections without touching the original snapshot.
func cloneUser(u *User) *User {
	out := *u

	if u.Emails != nil {
		out.Emails = append([]*UserEmail(nil), u.Emails...)
	}
	if u.PhoneNumbers != nil {
		out.PhoneNumbers = append([]PhoneRecord(nil), u.PhoneNumbers...)
	}
	if u.Locations != nil {
		out.Locations = append([]map[string]any(nil), u.Locations...)
	}
	if u.Affiliations != nil {
		out.Affiliations = append([]*Affiliation(nil), u.Affiliations...)
	}
	if u.Connections != nil {
		out.Connections = append([]*Connection(nil), u.Connections...)
	}
	if u.AuthorizedClients != nil {
		out.AuthorizedClients = append([]*Client(nil), u.AuthorizedClients...)
	}

	return &out
}
