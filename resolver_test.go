package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExtractEmails(t *testing.T) {
	profile := &Profile{
		Emails: []ProfileEmail{{Value: "ada@example.com"}, {Value: "ada@personal.org"}, {Value: ""}},
		Email:  "ignored@example.com",
	}

	assert.Equal(t, []string{"ada@example.com", "ada@personal.org"}, ExtractEmails(StrategySpec{}, profile))
	assert.Equal(t, []string{"ada@example.com"}, ExtractEmails(StrategySpec{EmailDomain: "example.com"}, profile))
	assert.Empty(t, ExtractEmails(StrategySpec{EmailDomain: "Example.com"}, profile))
	assert.Empty(t, ExtractEmails(StrategySpec{EmailDomain: "ample.com"}, profile))

	single := &Profile{Email: "grace@example.com"}
	assert.Equal(t, []string{"grace@example.com"}, ExtractEmails(StrategySpec{}, single))
	assert.Nil(t, ExtractEmails(StrategySpec{}, nil))
}

func TestProfileEmailUnmarshalAcceptsStringsAndObjects(t *testing.T) {
	var p Profile
	err := json.Unmarshal([]byte(`{"id":"1","emails":["a@example.com",{"value":"b@example.com","verified":true}]}`), &p)
	require.NoError(t, err)
	require.Len(t, p.Emails, 2)
	assert.Equal(t, "a@example.com", p.Emails[0].Value)
	assert.Equal(t, "b@example.com", p.Emails[1].Value)
	assert.True(t, p.Emails[1].Verified)
}

func TestBuildCriteria(t *testing.T) {
	profile := &Profile{ID: "00u1", Username: "ada"}
	emails := []string{"ada@example.com"}

	c, err := BuildCriteria(StrategySpec{Name: "okta"}, profile, emails)
	require.NoError(t, err)
	assert.Equal(t, Criteria{Username: "ada"}, c)

	c, err = BuildCriteria(StrategySpec{Name: "okta", Match: MatchID}, profile, emails)
	require.NoError(t, err)
	assert.Equal(t, &IdentityCriteria{Strategy: "okta", Subject: "00u1"}, c.Identity)

	c, err = BuildCriteria(StrategySpec{Name: "okta", Match: MatchEmails}, profile, emails)
	require.NoError(t, err)
	assert.Equal(t, emails, c.Emails)

	_, err = BuildCriteria(StrategySpec{Name: "okta", Match: MatchEmail}, profile, nil)
	assert.Equal(t, ReasonMissingEmail, RejectionReason(err))

	_, err = BuildCriteria(StrategySpec{Name: "okta", Match: MatchUsername}, &Profile{ID: "1"}, nil)
	assert.Equal(t, ReasonMissingUsername, RejectionReason(err))

	_, err = BuildCriteria(StrategySpec{Name: "okta", Match: MatchID}, &Profile{}, nil)
	assert.Equal(t, ReasonMissingID, RejectionReason(err))

	_, err = BuildCriteria(StrategySpec{Name: "okta", Match: "phone"}, profile, nil)
	assert.True(t, IsConfigError(err))
	assert.False(t, IsRejection(err))
}

func TestBuildCriteriaMatchFunc(t *testing.T) {
	spec := StrategySpec{Name: "okta", MatchFunc: func(p *Profile) (Criteria, error) {
		return Criteria{Fields: map[string]any{"title": p.DisplayName}}, nil
	}}
	c, err := BuildCriteria(spec, &Profile{DisplayName: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Fields["title"])

	spec.MatchFunc = func(*Profile) (Criteria, error) { return Criteria{}, nil }
	_, err = BuildCriteria(spec, &Profile{}, nil)
	assert.Equal(t, ReasonEmptyCriteria, RejectionReason(err))
}

func TestProfileResolverFindsExistingUser(t *testing.T) {
	users := &MockUserStore{}
	existing := &User{ID: uuid.New(), Username: "ada"}
	users.On("FindOne", mock.Anything, Criteria{Username: "ada", ExcludeDisabled: true}).Return(existing, nil)

	resolver := NewProfileResolver(users)
	user, err := resolver.Resolve(context.Background(), StrategySpec{Name: "okta"}, &Profile{ID: "1", Username: "ada"})
	require.NoError(t, err)
	assert.Same(t, existing, user)
	users.AssertExpectations(t)
}

func TestProfileResolverRejections(t *testing.T) {
	users := &MockUserStore{}
	resolver := NewProfileResolver(users)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, StrategySpec{Name: "okta"}, nil)
	assert.Equal(t, ReasonMissingID, RejectionReason(err))

	spec := StrategySpec{Name: "okta", Accept: func(p *Profile) bool { return p.ID == "allowed" }}
	_, err = resolver.Resolve(ctx, spec, &Profile{ID: "other", Username: "x"})
	assert.Equal(t, ReasonNotAccepted, RejectionReason(err))

	spec = StrategySpec{Name: "okta", EmailDomain: "example.com"}
	_, err = resolver.Resolve(ctx, spec, &Profile{ID: "1", Username: "x", Email: "x@other.org"})
	assert.Equal(t, ReasonEmailDomain, RejectionReason(err))

	users.On("FindOne", mock.Anything, mock.Anything).Return(nil, repository.NewRecordNotFound()).Once()
	_, err = resolver.Resolve(ctx, StrategySpec{Name: "okta"}, &Profile{ID: "1", Username: "ghost"})
	assert.Equal(t, ReasonNoMatch, RejectionReason(err))

	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProfileResolverInfrastructureError(t *testing.T) {
	users := &MockUserStore{}
	boom := errors.New("connection refused")
	users.On("FindOne", mock.Anything, mock.Anything).Return(nil, boom)

	resolver := NewProfileResolver(users, WithProvisioner(NewUserProvisioner(users)))
	_, err := resolver.Resolve(context.Background(), StrategySpec{Name: "okta"}, &Profile{ID: "1", Username: "ada"})
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.ErrorIs(t, err, boom)
}

func TestProfileResolverProvisionsWhenEnabled(t *testing.T) {
	users := &MockUserStore{}
	users.On("FindOne", mock.Anything, mock.Anything).Return(nil, repository.NewRecordNotFound())
	users.On("Create", mock.Anything, mock.AnythingOfType("*bridge.User")).Return(func(ctx context.Context, u *User) *User {
		return u
	}, nil)

	resolver := NewProfileResolver(users, WithProvisioner(NewUserProvisioner(users)))
	user, err := resolver.Resolve(context.Background(), StrategySpec{Name: "okta"}, &Profile{
		ID:          "00u1",
		Username:    "ada",
		DisplayName: "Ada Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.Equal(t, RoleGuest, user.Role)
	assert.Equal(t, "00u1", user.StrategyID("okta"))
}
