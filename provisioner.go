package bridge

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// RoleFunc picks the role of a newly provisioned user.
type RoleFunc func(ctx context.Context, spec StrategySpec, profile *Profile) UserRole

// UserProvisioner creates local users from provider profiles.
type UserProvisioner struct {
	users       UserStore
	defaultRole UserRole
	roleFunc    RoleFunc
	logger      Logger
}

type ProvisionerOption func(*UserProvisioner)

// WithDefaultRole sets the role given to created users. Defaults to guest.
func WithDefaultRole(role UserRole) ProvisionerOption {
	return func(p *UserProvisioner) {
		if role != "" {
			p.defaultRole = role
		}
	}
}

// WithRoleFunc overrides the role selection.
func WithRoleFunc(fn RoleFunc) ProvisionerOption {
	return func(p *UserProvisioner) {
		p.roleFunc = fn
	}
}

// WithProvisionerLogger sets the logger used by the provisioner.
func WithProvisionerLogger(logger Logger) ProvisionerOption {
	return func(p *UserProvisioner) {
		p.logger = ensureLogger(logger)
	}
}

func NewUserProvisioner(users UserStore, opts ...ProvisionerOption) *UserProvisioner {
	p := &UserProvisioner{
		users:       users,
		defaultRole: RoleGuest,
		logger:      defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Provision builds and stores a user for the profile. Storage failures are
// logged and reported as a rejection.
func (p *UserProvisioner) Provision(ctx context.Context, spec StrategySpec, profile *Profile) (*User, error) {
	user := p.Build(ctx, spec, profile)

	created, err := p.users.Create(ctx, user)
	if err != nil {
		p.logger.Error("failed to provision user %q for strategy %q: %v", user.Username, spec.Name, err)
		return nil, rejectCause(ReasonProvisioningFailed, err, map[string]any{"strategy": spec.Name})
	}

	p.logger.Info("provisioned user %q from strategy %q", created.Username, spec.Name)
	return created, nil
}

// Build maps a profile to a new, unsaved user.
func (p *UserProvisioner) Build(ctx context.Context, spec StrategySpec, profile *Profile) *User {
	role := p.defaultRole
	if p.roleFunc != nil {
		if r := p.roleFunc(ctx, spec, profile); r != "" {
			role = r
		}
	}

	title := profile.DisplayName
	if title == "" {
		title = profile.Username
	}

	username := profile.Username
	if username == "" {
		username = Slugify(title)
	}
	if username == "" && profile.ID != "" {
		username = Slugify(spec.Name + "-" + profile.ID)
	}

	user := &User{
		ID:       uuid.New(),
		Role:     role,
		Username: username,
		Title:    title,
	}

	if profile.ID != "" {
		user.SetStrategyID(spec.Name, profile.ID)
	}

	if emails := ExtractEmails(spec, profile); len(emails) > 0 {
		user.Email = emails[0]
	}

	user.FirstName, user.LastName = profileNames(profile)

	if spec.Import != nil {
		spec.Import(profile, user)
	}

	return user
}

func profileNames(profile *Profile) (string, string) {
	switch {
	case !profile.Name.isZero():
		first := joinNonEmpty(profile.Name.GivenName, profile.Name.MiddleName)
		return first, profile.Name.FamilyName
	case profile.FirstName != "" || profile.LastName != "":
		return profile.FirstName, profile.LastName
	case profile.DisplayName != "":
		parsed := ParseHumanName(profile.DisplayName)
		return parsed.FirstName, parsed.LastName
	}
	return "", ""
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
