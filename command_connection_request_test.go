package bridge

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newConnectionFixture(t *testing.T) (*RequestConnectionHandler, *MockUserStore, *stubConnectionStore, *captureNotifier, *User) {
	t.Helper()

	registry, err := NewRegistry([]StrategySpec{
		{Name: "github", Label: "GitHub", Factory: stubFactory(&stubStrategy{name: "github"})},
	}, WithBaseURL("https://example.com"))
	require.NoError(t, err)

	user := &User{ID: uuid.New(), Username: "ada", Email: "ada@example.com"}
	users := &MockUserStore{}
	users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil)

	store := &stubConnectionStore{}
	notifier := &captureNotifier{}
	return NewRequestConnectionHandler(registry, users, store, notifier), users, store, notifier, user
}

func TestRequestConnectionHandlerSendsLink(t *testing.T) {
	handler, _, store, notifier, user := newConnectionFixture(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return now }

	var response *RequestConnectionResponse
	err := handler.Execute(context.Background(), RequestConnectionMessage{
		UserID:   user.ID.String(),
		Strategy: "github",
		Options:  AuthenticateOptions{Scopes: []string{"repo"}},
		OnResponse: func(r *RequestConnectionResponse) {
			response = r
		},
	})
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	request := store.created[0]
	assert.Equal(t, user.ID, request.UserID)
	assert.Equal(t, "github", request.Strategy)
	assert.Equal(t, now.Add(ConnectionRequestTTL), request.ExpiresAt)
	assert.NotEmpty(t, request.Token)

	require.Len(t, notifier.notices, 1)
	notice := notifier.notices[0]
	assert.Equal(t, "GitHub", notice.Label)
	assert.Equal(t, "ada@example.com", notice.Email)

	link, err := url.Parse(notice.Link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/github/connect", link.Path)
	assert.Equal(t, request.Token, link.Query().Get("token"))

	require.NotNil(t, response)
	assert.Equal(t, notice.Link, response.Link)
}

func TestRequestConnectionHandlerConfirm(t *testing.T) {
	handler, _, _, _, user := newConnectionFixture(t)
	ctx := context.Background()

	require.NoError(t, handler.Execute(ctx, RequestConnectionMessage{
		UserID:   user.ID.String(),
		Strategy: "github",
		Options:  AuthenticateOptions{Scopes: []string{"repo"}, Prompt: "consent"},
	}))
	token := handler.connections.(*stubConnectionStore).created[0].Token

	_, _, err := handler.Confirm(ctx, "okta", token)
	assert.True(t, hasTextCode(err, TextCodeConnectionInvalid))

	handler, _, _, _, user = newConnectionFixture(t)
	require.NoError(t, handler.Execute(ctx, RequestConnectionMessage{
		UserID:   user.ID.String(),
		Strategy: "github",
		Options:  AuthenticateOptions{Scopes: []string{"repo"}, Prompt: "consent"},
	}))
	token = handler.connections.(*stubConnectionStore).created[0].Token

	request, opts, err := handler.Confirm(ctx, "github", token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, request.UserID)
	assert.Equal(t, []string{"repo"}, opts.Scopes)
	assert.Equal(t, "consent", opts.Prompt)

	_, _, err = handler.Confirm(ctx, "github", token)
	assert.True(t, hasTextCode(err, TextCodeConnectionInvalid))
}

func TestRequestConnectionHandlerExpired(t *testing.T) {
	handler, _, _, _, user := newConnectionFixture(t)
	ctx := context.Background()
	require.NoError(t, handler.Execute(ctx, RequestConnectionMessage{UserID: user.ID.String(), Strategy: "github"}))
	token := handler.connections.(*stubConnectionStore).created[0].Token

	handler.now = func() time.Time { return time.Now().Add(ConnectionRequestTTL + time.Minute) }
	_, _, err := handler.Confirm(ctx, "github", token)
	assert.True(t, hasTextCode(err, TextCodeConnectionInvalid))
}

func TestRequestConnectionHandlerErrors(t *testing.T) {
	handler, users, _, notifier, user := newConnectionFixture(t)
	ctx := context.Background()

	err := handler.Execute(ctx, RequestConnectionMessage{UserID: user.ID.String(), Strategy: "okta"})
	assert.True(t, hasTextCode(err, TextCodeStrategyNotFound))

	missing := uuid.NewString()
	users.On("GetByID", mock.Anything, missing).Return(nil, errors.New("sql: no rows in result set"))
	err = handler.Execute(ctx, RequestConnectionMessage{UserID: missing, Strategy: "github"})
	assert.Error(t, err)

	notifier.err = errors.New("smtp down")
	err = handler.Execute(ctx, RequestConnectionMessage{UserID: user.ID.String(), Strategy: "github"})
	assert.ErrorIs(t, err, notifier.err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = handler.Execute(cancelled, RequestConnectionMessage{UserID: user.ID.String(), Strategy: "github"})
	assert.ErrorIs(t, err, context.Canceled)
}
