package identity

// Attribute write permissions. A static table instead of schema
// introspection: the set of protected fields is part of the contract
// and changes with the model, not at runtime.
const (
	permReadonly  = "readonly"
	permAdminOnly = "adminOnly"
)

// attributePermissions maps incoming JSON field names to the permission
// tag guarding writes.
var attributePermissions = map[string]string{
	"id":              permReadonly,
	"email":           permReadonly,
	"email_verified":  permReadonly,
	"emails":          permReadonly,
	"password_hash":   permReadonly,
	"organization":    permReadonly,
	"connections":     permReadonly,
	"expires_at":      permReadonly,
	"created_at":      permReadonly,
	"updated_at":      permReadonly,
	"verified":        permAdminOnly,
	"is_admin":        permAdminOnly,
	"is_manager":      permAdminOnly,
}

func init() {
	for _, kind := range AffiliationKinds() {
		attributePermissions[kind] = permReadonly
	}
}

// FilterForbiddenAttributes strips fields the actor may not write from
// an update payload. Readonly fields are dropped for everyone; adminOnly
// fields survive only for admin actors. The input map is not mutated.
func FilterForbiddenAttributes(payload map[string]any, actor *User) map[string]any {
	isAdmin := actor != nil && actor.IsAdmin

	out := make(map[string]any, len(payload))
	for key, val := range payload {
		switch attributePermissions[key] {
		case permReadonly:
			continue
		case permAdminOnly:
			if !isAdmin {
				continue
			}
		}
		out[key] = val
	}
	return out
}
