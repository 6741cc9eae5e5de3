package bridge

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// ConnectionRequestTTL is how long a connection link stays valid.
const ConnectionRequestTTL = 24 * time.Hour

// RequestConnectionMessage asks to link a provider account to a user.
type RequestConnectionMessage struct {
	UserID     string              `json:"user_id"`
	Strategy   string              `json:"strategy"`
	Options    AuthenticateOptions `json:"options"`
	OnResponse func(r *RequestConnectionResponse)
}

type RequestConnectionResponse struct {
	Strategy  string    `json:"strategy"`
	Link      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConnectionNotice is what a Notifier delivers to the user.
type ConnectionNotice struct {
	UserID    string
	Username  string
	Email     string
	Strategy  string
	Label     string
	Link      string
	ExpiresAt time.Time
}

// RequestConnectionHandler issues connection links and redeems them.
type RequestConnectionHandler struct {
	registry    *Registry
	users       UserStore
	connections ConnectionStore
	notifier    Notifier
	logger      Logger
	now         func() time.Time
}

func NewRequestConnectionHandler(registry *Registry, users UserStore, connections ConnectionStore, notifier Notifier) *RequestConnectionHandler {
	if notifier == nil {
		notifier = LogNotifier{logger: defLogger{}}
	}
	return &RequestConnectionHandler{
		registry:    registry,
		users:       users,
		connections: connections,
		notifier:    notifier,
		logger:      defLogger{},
		now:         time.Now,
	}
}

func (h *RequestConnectionHandler) WithLogger(logger Logger) *RequestConnectionHandler {
	h.logger = ensureLogger(logger)
	return h
}

func (h *RequestConnectionHandler) Execute(ctx context.Context, event RequestConnectionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during connection request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestConnectionHandler) execute(ctx context.Context, event RequestConnectionMessage) error {
	entry, err := h.registry.Lookup(event.Strategy)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		if isNotFound(err) {
			return goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"user_id": event.UserID})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}

	token, err := randomToken(32)
	if err != nil {
		return err
	}

	options := map[string]any{}
	if err := mapstructure.Decode(event.Options, &options); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid connection options")
	}

	now := h.now()
	request := &ConnectionRequest{
		ID:        uuid.New(),
		Token:     token,
		UserID:    user.ID,
		Strategy:  entry.Spec.Name,
		Options:   options,
		ExpiresAt: now.Add(ConnectionRequestTTL),
		CreatedAt: &now,
	}

	if _, err := h.connections.Create(ctx, request); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store connection request")
	}

	link := appendQueryParam(h.registry.ConnectURL(entry.Spec.Name, true), "token", token)
	notice := ConnectionNotice{
		UserID:    user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Strategy:  entry.Spec.Name,
		Label:     entry.Spec.Label,
		Link:      link,
		ExpiresAt: request.ExpiresAt,
	}

	if err := h.notifier.NotifyConnectionRequest(ctx, notice); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver connection request")
	}

	if event.OnResponse != nil {
		event.OnResponse(&RequestConnectionResponse{
			Strategy:  entry.Spec.Name,
			Link:      link,
			ExpiresAt: request.ExpiresAt,
		})
	}

	return nil
}

// Confirm redeems a connection token for the strategy and returns the
// request with its decoded options.
func (h *RequestConnectionHandler) Confirm(ctx context.Context, strategy, token string) (*ConnectionRequest, AuthenticateOptions, error) {
	var opts AuthenticateOptions
	if token == "" {
		return nil, opts, ErrConnectionInvalid
	}

	request, err := h.connections.Consume(ctx, token, h.now())
	if err != nil {
		return nil, opts, err
	}
	if request.Strategy != strategy {
		return nil, opts, ErrConnectionInvalid.Clone().WithMetadata(map[string]any{"cause": "strategy"})
	}

	if len(request.Options) > 0 {
		if err := mapstructure.Decode(request.Options, &opts); err != nil {
			return nil, opts, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid stored connection options")
		}
	}
	return request, opts, nil
}

// LogNotifier writes connection links to the logger. It is meant for
// development setups without a mailer.
type LogNotifier struct {
	logger Logger
}

func NewLogNotifier(logger Logger) LogNotifier {
	return LogNotifier{logger: ensureLogger(logger)}
}

func (n LogNotifier) NotifyConnectionRequest(_ context.Context, notice ConnectionNotice) error {
	n.logger.Info("connect %s to user %s (%s): %s, expires %s",
		notice.Label, notice.Username, notice.UserID, notice.Link, notice.ExpiresAt.Format(time.RFC3339))
	return nil
}
