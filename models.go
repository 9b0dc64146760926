package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// VisibilityPolicy controls which viewers see a contact category unredacted.
type VisibilityPolicy = string

const (
	VisibilityAnyone      VisibilityPolicy = "anyone"
	VisibilityVerified    VisibilityPolicy = "verified"
	VisibilityConnections VisibilityPolicy = "connections"
)

// AffiliationVisibility controls who sees an individual affiliation.
type AffiliationVisibility = string

const (
	AffiliationVisibleToMe       AffiliationVisibility = "me"
	AffiliationVisibleInList     AffiliationVisibility = "inlist"
	AffiliationVisibleToAll      AffiliationVisibility = "all"
	AffiliationVisibleToVerified AffiliationVisibility = "verified"
)

// Joinability is a list's policy governing whether checkin is auto-approved.
type Joinability = string

const (
	JoinabilityPublic  Joinability = "public"
	JoinabilityPrivate Joinability = "private"
)

// AffiliationKind names one of the list-type collections on a user record.
type AffiliationKind = string

const (
	KindLists           AffiliationKind = "lists"
	KindOperations      AffiliationKind = "operations"
	KindBundles         AffiliationKind = "bundles"
	KindDisasters       AffiliationKind = "disasters"
	KindOrganization    AffiliationKind = "organization"
	KindOrganizations   AffiliationKind = "organizations"
	KindFunctionalRoles AffiliationKind = "functional_roles"
	KindOffices         AffiliationKind = "offices"
)

// AffiliationKinds returns the recognized kinds, the singular organization
// slot included.
func AffiliationKinds() []AffiliationKind {
	return []AffiliationKind{
		KindLists,
		KindOperations,
		KindBundles,
		KindDisasters,
		KindOrganization,
		KindOrganizations,
		KindFunctionalRoles,
		KindOffices,
	}
}

// KnownAffiliationKind reports whether kind is one of the recognized
// affiliation collections.
func KnownAffiliationKind(kind string) bool {
	for _, k := range AffiliationKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// kindMatchesListType checks the checked-in list's declared type against the
// target collection. A list of type "operation" belongs in "operations" (or
// the singular "operation" slot for organizations).
func kindMatchesListType(kind AffiliationKind, listType string) bool {
	return kind == listType || kind == listType+"s"
}

// User is the identity subject owned by the directory.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID         uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	GivenName  string    `bun:"given_name,notnull" json:"given_name,omitempty"`
	MiddleName string    `bun:"middle_name" json:"middle_name,omitempty"`
	FamilyName string    `bun:"family_name,notnull" json:"family_name,omitempty"`
	Name       string    `bun:"name" json:"name,omitempty"`

	Email         string       `bun:"email,unique,nullzero" json:"email,omitempty"`
	EmailVerified bool         `bun:"email_verified" json:"email_verified"`
	Emails        []*UserEmail `bun:"rel:has-many,join:id=user_id" json:"emails,omitempty"`

	PasswordHash string `bun:"password_hash" json:"-"`

	PhoneNumber  string        `bun:"phone_number" json:"phone_number,omitempty"`
	PhoneNumbers []PhoneRecord `bun:"phone_numbers,type:jsonb" json:"phone_numbers,omitempty"`

	Location  map[string]any   `bun:"location,type:jsonb" json:"location,omitempty"`
	Locations []map[string]any `bun:"locations,type:jsonb" json:"locations,omitempty"`

	EmailsVisibility    VisibilityPolicy `bun:"emails_visibility,notnull,default:'anyone'" json:"emails_visibility,omitempty"`
	PhonesVisibility    VisibilityPolicy `bun:"phones_visibility,notnull,default:'anyone'" json:"phones_visibility,omitempty"`
	LocationsVisibility VisibilityPolicy `bun:"locations_visibility,notnull,default:'anyone'" json:"locations_visibility,omitempty"`

	// Verified is the manager-set "trusted humanitarian" flag, distinct
	// from EmailVerified.
	Verified  bool `bun:"verified" json:"verified"`
	IsAdmin   bool `bun:"is_admin" json:"is_admin"`
	IsManager bool `bun:"is_manager" json:"is_manager"`
	Deleted   bool `bun:"deleted" json:"deleted"`

	// Organization is the singular slot; checkin against it replaces the
	// value instead of appending.
	Organization *Affiliation   `bun:"organization,type:jsonb" json:"organization,omitempty"`
	Affiliations []*Affiliation `bun:"rel:has-many,join:id=user_id" json:"affiliations,omitempty"`

	Connections       []*Connection `bun:"rel:has-many,join:id=user_id" json:"connections,omitempty"`
	AuthorizedClients []*Client     `bun:"m2m:user_authorized_clients,join:User=Client" json:"authorized_clients,omitempty"`

	ExpiresAt *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// FullName composes the display name the way the directory renders it.
func (u *User) FullName() string {
	if u.MiddleName != "" {
		return u.GivenName + " " + u.MiddleName + " " + u.FamilyName
	}
	return u.GivenName + " " + u.FamilyName
}

// EmailIndex returns the position of email in the secondary email set, -1
// when absent. Matching is case-insensitive, addresses are stored lowercase.
func (u *User) EmailIndex(email string) int {
	needle := strings.ToLower(strings.TrimSpace(email))
	for i, rec := range u.Emails {
		if rec != nil && rec.Email == needle {
			return i
		}
	}
	return -1
}

// HasEmail reports whether email is the primary address or one of the
// secondary ones.
func (u *User) HasEmail(email string) bool {
	needle := strings.ToLower(strings.TrimSpace(email))
	if u.Email != "" && u.Email == needle {
		return true
	}
	return u.EmailIndex(needle) != -1
}

// HasAcceptedConnection reports whether a non-pending connection to the
// given user exists.
func (u *User) HasAcceptedConnection(otherID uuid.UUID) bool {
	for _, c := range u.Connections {
		if c != nil && !c.Pending && c.OtherUserID == otherID {
			return true
		}
	}
	return false
}

// HasAuthorizedClient reports whether the user already consented to the
// client with the given public identifier.
func (u *User) HasAuthorizedClient(clientID string) bool {
	for _, c := range u.AuthorizedClients {
		if c != nil && c.ClientID == clientID {
			return true
		}
	}
	return false
}

// AffiliationsByKind returns the user's affiliations for one collection,
// deleted entries excluded.
func (u *User) AffiliationsByKind(kind AffiliationKind) []*Affiliation {
	var out []*Affiliation
	for _, a := range u.Affiliations {
		if a != nil && a.Kind == kind && !a.Deleted {
			out = append(out, a)
		}
	}
	return out
}

// HasLocalPhoneNumber reports whether any of the user's numbers parses to
// the given ISO2 region. Unparseable numbers are skipped, not fatal.
func (u *User) HasLocalPhoneNumber(iso2 string) bool {
	region := strings.ToUpper(iso2)
	for _, item := range u.PhoneNumbers {
		num, err := phonenumbers.Parse(item.Number, "")
		if err != nil {
			continue
		}
		if strings.ToUpper(phonenumbers.GetRegionCodeForNumber(num)) == region {
			return true
		}
	}
	return false
}

// ValidPhoneNumber reports whether raw is a parseable, valid number.
// The empty string is accepted, matching the schema's optional field.
func ValidPhoneNumber(raw string) bool {
	if raw == "" {
		return true
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// UserEmail is a secondary address. The email column is unique across all
// users, primary addresses included by convention.
type UserEmail struct {
	bun.BaseModel `bun:"table:user_emails,alias:uem"`

	ID       uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID   uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Type     string    `bun:"type" json:"type,omitempty"`
	Email    string    `bun:"email,notnull,unique" json:"email,omitempty"`
	Verified bool      `bun:"verified" json:"verified"`
}

// PhoneRecord is one entry of the phone_numbers collection.
type PhoneRecord struct {
	Type     string `json:"type,omitempty"`
	Number   string `json:"number,omitempty"`
	Verified bool   `json:"verified"`
}

// Affiliation is a user's membership record in one list-type collection.
// Within a user's kind collection at most one active entry may reference a
// given list; the constraint is enforced by the storage layer, not by a
// read-then-write check.
type Affiliation struct {
	bun.BaseModel `bun:"table:affiliations,alias:aff"`

	ID         uuid.UUID             `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID     uuid.UUID             `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Kind       AffiliationKind       `bun:"kind,notnull" json:"kind,omitempty"`
	ListID     uuid.UUID             `bun:"list_id,notnull,type:uuid" json:"list_id,omitempty"`
	Name       string                `bun:"name" json:"name,omitempty"`
	Acronym    string                `bun:"acronym" json:"acronym,omitempty"`
	Visibility AffiliationVisibility `bun:"visibility,notnull,default:'all'" json:"visibility,omitempty"`
	Pending    bool                  `bun:"pending" json:"pending"`
	Deleted    bool                  `bun:"deleted" json:"deleted"`
	CreatedAt  *time.Time            `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Connection links two users. The other side is an id reference resolved
// externally; embedding the record would create cyclic ownership.
type Connection struct {
	bun.BaseModel `bun:"table:connections,alias:conn"`

	ID          uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID      uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	OtherUserID uuid.UUID  `bun:"other_user_id,notnull,type:uuid" json:"user,omitempty"`
	Pending     bool       `bun:"pending,default:true" json:"pending"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Client is an OAuth2-style relying party. Managed externally, immutable
// for this core.
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:cli"`

	ID          uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"-"`
	ClientID    string    `bun:"client_id,notnull,unique" json:"id,omitempty"`
	Secret      string    `bun:"secret,notnull" json:"-"`
	Name        string    `bun:"name,notnull" json:"name,omitempty"`
	RedirectURI string    `bun:"redirect_uri,notnull" json:"redirect_uri,omitempty"`
}

// Ref returns the redacted {id, name} pair rendered in projections. The
// relying party secret never leaves the clients table.
func (c *Client) Ref() *Client {
	if c == nil {
		return nil
	}
	return &Client{ID: c.ID, ClientID: c.ClientID, Name: c.Name}
}

// UserClient is the consent join table. The composite primary key is what
// makes the authorizedClients append idempotent at the storage layer.
type UserClient struct {
	bun.BaseModel `bun:"table:user_authorized_clients,alias:uac"`

	UserID   uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	ClientID uuid.UUID `bun:"client_id,pk,type:uuid" json:"client_id"`
	User     *User     `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	Client   *Client   `bun:"rel:belongs-to,join:client_id=id" json:"-"`
}

// GrantType discriminates single-use authorization codes from access tokens.
type GrantType = string

const (
	GrantCode  GrantType = "code"
	GrantToken GrantType = "token"
)

// OauthToken is an authorization code or access token record. Code-typed
// records are single-use: consumption deletes the row atomically.
type OauthToken struct {
	bun.BaseModel `bun:"table:oauth_tokens,alias:tok"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token     string     `bun:"token,notnull,unique" json:"token,omitempty"`
	Type      GrantType  `bun:"type,notnull" json:"type,omitempty"`
	ClientID  uuid.UUID  `bun:"client_id,notnull,type:uuid" json:"client_id,omitempty"`
	Client    *Client    `bun:"rel:belongs-to,join:client_id=id" json:"client,omitempty"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User      *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// List is the resolved view of an external list entity: its declared type
// and joinability drive checkin validation.
type List struct {
	bun.BaseModel `bun:"table:lists,alias:lst"`

	ID          uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name        string      `bun:"name,notnull" json:"name,omitempty"`
	Acronym     string      `bun:"acronym" json:"acronym,omitempty"`
	Type        string      `bun:"type,notnull" json:"type,omitempty"`
	Joinability Joinability `bun:"joinability,notnull" json:"joinability,omitempty"`
}
