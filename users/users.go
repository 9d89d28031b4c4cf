package users

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-gateway/internal/utils"
)

// Role is the coarse role the gateway authorizes on.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var knownRoles = map[string]Role{
	"guest":         RoleGuest,
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"operator":      RoleOperator,
	"ops":           RoleOperator,
	"user":          RoleUser,
	"member":        RoleUser,
}

// ParseRole maps an upstream role onto a Role. Missing or blank input is
// guest and counts as recognized; any other unmapped value is guest with
// ok == false.
func ParseRole(v any) (role Role, ok bool) {
	s := strings.ToLower(utils.TrimmedString(v))
	if s == "" {
		return RoleGuest, true
	}
	if r, found := knownRoles[s]; found {
		return r, true
	}
	return RoleGuest, false
}

// NormalizeRole is ParseRole without the recognition flag.
func NormalizeRole(v any) Role {
	role, _ := ParseRole(v)
	return role
}

// TenantMembership is one tenant the user belongs to
type TenantMembership struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role,omitempty"` // Empty when upstream sent no role for the tenant
}

// User is the canonical identity derived from an upstream session payload.
// It is recomputed on every session check and never persisted.
type User struct {
	ID          string             `json:"id"`                 // uuid if present, else id
	Email       string             `json:"email"`              // As sent by upstream, trimmed
	Name        string             `json:"name,omitempty"`     // Display name
	Username    string             `json:"username"`           // username, else name, else email
	Role        Role               `json:"role"`               // Always one of the four roles
	Groups      []string           `json:"groups"`             // Never nil
	Permissions []string           `json:"permissions"`        // Never nil
	MFAEnabled  bool               `json:"mfaEnabled"`         // TOTP confirmed
	MFAPending  bool               `json:"mfaPending"`         // Enrollment started; false whenever MFAEnabled
	TenantID    string             `json:"tenantId,omitempty"` // Active tenant
	Tenants     []TenantMembership `json:"tenants,omitempty"`  // nil when upstream sent none
}

// IsAnonymous reports whether the payload carried no usable identifier.
func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == ""
}

func (u *User) IsAdmin() bool    { return u != nil && u.Role == RoleAdmin }
func (u *User) IsOperator() bool { return u != nil && u.Role == RoleOperator }

// HasRole reports whether the user's role is one of roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// HasTenant reports whether the user is a member of tenantID.
func (u *User) HasTenant(tenantID string) bool {
	if u == nil {
		return false
	}
	for _, t := range u.Tenants {
		if t.ID == tenantID {
			return true
		}
	}
	return false
}

// Normalize turns an untrusted upstream user object into a User. It never
// fails; a payload without an identifier yields an anonymous user.
func Normalize(raw map[string]any) User {
	u := User{
		ID:          normalizeID(raw),
		Email:       utils.TrimmedString(raw["email"]),
		Name:        utils.TrimmedString(raw["name"]),
		Role:        NormalizeRole(raw["role"]),
		Groups:      utils.ToStringSlice(asSlice(raw["groups"])),
		Permissions: utils.ToStringSlice(asSlice(raw["permissions"])),
		TenantID:    utils.TrimmedString(raw["tenantId"]),
		Tenants:     normalizeTenants(raw["tenants"]),
	}

	u.Username = utils.TrimmedString(raw["username"])
	if u.Username == "" {
		u.Username = u.Name
	}
	if u.Username == "" {
		u.Username = u.Email
	}

	mfa, _ := raw["mfa"].(map[string]any)
	u.MFAEnabled = utils.Truthy(coalesce(raw["mfaEnabled"], mfa["totpEnabled"]))
	u.MFAPending = firstBool(raw["mfaPending"], mfa["totpPending"]) && !u.MFAEnabled
	return u
}

// firstBool returns the first value that is an actual bool. Strings and
// numbers are skipped, so "false" never reads as pending.
func firstBool(values ...any) bool {
	for _, v := range values {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Raw renders the canonical shape back into an upstream-style object.
// Normalize(u.Raw()) == u.
func (u User) Raw() map[string]any {
	raw := map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"username":    u.Username,
		"role":        string(u.Role),
		"groups":      utils.FromStringSlice(u.Groups),
		"permissions": utils.FromStringSlice(u.Permissions),
		"mfaEnabled":  u.MFAEnabled,
		"mfaPending":  u.MFAPending,
	}
	if u.Name != "" {
		raw["name"] = u.Name
	}
	if u.TenantID != "" {
		raw["tenantId"] = u.TenantID
	}
	if u.Tenants != nil {
		tenants := make([]any, 0, len(u.Tenants))
		for _, t := range u.Tenants {
			m := map[string]any{"id": t.ID}
			if t.Name != "" {
				m["name"] = t.Name
			}
			if t.Role != "" {
				m["role"] = string(t.Role)
			}
			tenants = append(tenants, m)
		}
		raw["tenants"] = tenants
	}
	return raw
}

// ParseRaw decodes an upstream JSON object.
func ParseRaw(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("[users.ParseRaw] decode: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("[users.ParseRaw] payload is not an object")
	}
	return raw, nil
}

func normalizeID(raw map[string]any) string {
	id := utils.TrimmedString(raw["uuid"])
	if id == "" {
		id = utils.TrimmedString(raw["id"])
	}
	if id == "" {
		return ""
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}

func normalizeTenants(v any) []TenantMembership {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	tenants := make([]TenantMembership, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := utils.TrimmedString(m["id"])
		if id == "" {
			continue
		}
		t := TenantMembership{ID: id, Name: utils.TrimmedString(m["name"])}
		if utils.TrimmedString(m["role"]) != "" {
			t.Role = NormalizeRole(m["role"])
		}
		tenants = append(tenants, t)
	}
	return tenants
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func coalesce(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
