package bridge

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is the default role for provisioned users
	RoleGuest UserRole = "guest"
	// RoleMember us a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
)

// User is the local user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role          UserRole        `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username      string          `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string          `bun:"email,nullzero" json:"email,omitempty"`
	Title         string          `bun:"title" json:"title,omitempty"`
	FirstName     string          `bun:"first_name" json:"first_name,omitempty"`
	LastName      string          `bun:"last_name" json:"last_name,omitempty"`
	Disabled      bool            `bun:"disabled,notnull" json:"disabled"`
	Metadata      map[string]any  `bun:"metadata" json:"metadata,omitempty"`
	Identities    []*UserIdentity `bun:"rel:has-many,join:id=user_id" json:"identities,omitempty"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// StrategyID returns the provider subject recorded for the strategy.
func (u *User) StrategyID(strategy string) string {
	if u == nil {
		return ""
	}
	for _, identity := range u.Identities {
		if identity != nil && identity.Strategy == strategy {
			return identity.Subject
		}
	}
	return ""
}

// SetStrategyID records the provider subject for the strategy, replacing an
// existing one.
func (u *User) SetStrategyID(strategy, subject string) *User {
	for _, identity := range u.Identities {
		if identity != nil && identity.Strategy == strategy {
			identity.Subject = subject
			return u
		}
	}
	u.Identities = append(u.Identities, &UserIdentity{
		UserID:   u.ID,
		Strategy: strategy,
		Subject:  subject,
	})
	return u
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// UserIdentity links a user to a provider subject. The pair
// (strategy, subject) is unique.
type UserIdentity struct {
	bun.BaseModel `bun:"table:user_identities,alias:uid"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Strategy      string     `bun:"strategy,notnull" json:"strategy"`
	Subject       string     `bun:"subject,notnull" json:"subject"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// VaultEntry marks a user that went through the bridge login flow.
type VaultEntry struct {
	bun.BaseModel `bun:"table:vault_entries,alias:ve"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// TokenRecord holds the provider tokens of a user for one strategy.
type TokenRecord struct {
	bun.BaseModel `bun:"table:vault_tokens,alias:vt"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid" json:"user_id"`
	Strategy      string     `bun:"strategy,pk" json:"strategy"`
	AccessToken   string     `bun:"access_token" json:"-"`
	RefreshToken  string     `bun:"refresh_token" json:"-"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ConnectionRequest is a pending, single use invitation to link a provider
// account to an existing user.
type ConnectionRequest struct {
	bun.BaseModel `bun:"table:connection_requests,alias:cr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string         `bun:"token,notnull,unique" json:"-"`
	UserID        uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Strategy      string         `bun:"strategy,notnull" json:"strategy"`
	Options       map[string]any `bun:"options" json:"options,omitempty"`
	ExpiresAt     time.Time      `bun:"expires_at,notnull" json:"expires_at"`
	ConsumedAt    *time.Time     `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Document is the read only view of a host document that the locale handoff
// uses to find the equivalent page in another locale. Path is the locale
// qualified path of the document.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:doc"`
	ID            string `bun:"id,pk" json:"id"`
	CrossLocaleID string `bun:"cross_locale_id,notnull" json:"cross_locale_id"`
	Locale        string `bun:"locale,notnull" json:"locale"`
	Path          string `bun:"path,notnull" json:"path"`
	Title         string `bun:"title" json:"title,omitempty"`
}
