package bridge

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Query parameters of the locale handoff protocol.
const (
	QueryOldLocale     = "oldLocale"
	QueryNewLocale     = "newLocale"
	QueryOldDocumentID = "oldDocumentId"
	QueryHandoffToken  = "handoffToken"
)

// HandoffTTL is how long a handoff token can be redeemed.
const HandoffTTL = time.Hour

const handoffKeyPrefix = "bridge:handoff:"

// PendingLocaleHandoff is staged in the session at login and consumed once
// the login completes.
type PendingLocaleHandoff struct {
	OldLocale     string `json:"oldLocale"`
	NewLocale     string `json:"newLocale"`
	OldDocumentID string `json:"oldDocumentId,omitempty"`
}

// Locale is the routing information of one locale.
type Locale struct {
	Prefix  string `yaml:"prefix" json:"prefix"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// Locales maps locale names to their routing information.
type Locales map[string]Locale

// Lookup returns the locale, ignoring a ":mode" suffix such as ":published".
func (l Locales) Lookup(name string) (Locale, bool) {
	if loc, ok := l[name]; ok {
		return loc, true
	}
	base, _, _ := strings.Cut(name, ":")
	loc, ok := l[base]
	return loc, ok
}

// LocaleHandoff moves an authenticated session to another locale's host.
type LocaleHandoff struct {
	cache     HandoffCache
	documents DocumentStore
	locales   Locales
	logger    Logger
	newToken  func() (string, error)
}

type HandoffOption func(*LocaleHandoff)

// WithHandoffLogger sets the logger used by the handoff.
func WithHandoffLogger(logger Logger) HandoffOption {
	return func(h *LocaleHandoff) {
		h.logger = ensureLogger(logger)
	}
}

// WithHandoffDocuments enables routing to the equivalent document.
func WithHandoffDocuments(documents DocumentStore) HandoffOption {
	return func(h *LocaleHandoff) {
		h.documents = documents
	}
}

func NewLocaleHandoff(cache HandoffCache, locales Locales, opts ...HandoffOption) *LocaleHandoff {
	h := &LocaleHandoff{
		cache:   cache,
		locales: locales,
		logger:  defLogger{},
		newToken: func() (string, error) {
			return randomToken(32)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Stage records a pending handoff on the session. It reports false, and
// leaves the session untouched, when newLocale is empty.
func (h *LocaleHandoff) Stage(sess *Session, oldLocale, newLocale, oldDocumentID string) bool {
	if newLocale == "" {
		return false
	}
	sess.LocaleHandoff = &PendingLocaleHandoff{
		OldLocale:     oldLocale,
		NewLocale:     newLocale,
		OldDocumentID: oldDocumentID,
	}
	return true
}

// Finalize consumes the pending handoff of an authenticated session. It
// stores a snapshot of the session under a fresh token and returns the URL
// that redeems it. ok is false when no handoff was pending.
func (h *LocaleHandoff) Finalize(ctx context.Context, sess *Session) (target string, ok bool, err error) {
	pending := sess.TakeLocaleHandoff()
	if pending == nil {
		return "", false, nil
	}

	token, err := h.newToken()
	if err != nil {
		return "", false, err
	}

	snapshot, err := json.Marshal(sess.Clone())
	if err != nil {
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session snapshot")
	}

	if err := h.cache.Set(ctx, handoffKeyPrefix+token, snapshot, HandoffTTL); err != nil {
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store handoff token")
	}

	route := h.route(ctx, pending)
	target = appendQueryParam(route, QueryHandoffToken, token)
	if loc, found := h.locales.Lookup(pending.NewLocale); found && loc.BaseURL != "" {
		target = strings.TrimRight(loc.BaseURL, "/") + target
	}

	h.logger.Debug("handing session off from locale %q to %q", pending.OldLocale, pending.NewLocale)
	return target, true, nil
}

// Resume redeems a handoff token. A token can be redeemed once.
func (h *LocaleHandoff) Resume(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrHandoffInvalid
	}

	data, found, err := h.cache.Take(ctx, handoffKeyPrefix+token)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read handoff token")
	}
	if !found {
		return nil, ErrHandoffInvalid
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, ErrHandoffInvalid
	}
	return sess, nil
}

func (h *LocaleHandoff) route(ctx context.Context, pending *PendingLocaleHandoff) string {
	if h.documents != nil && pending.OldDocumentID != "" {
		if path, ok := h.equivalentPath(ctx, pending); ok {
			return path
		}
	}

	loc, _ := h.locales.Lookup(pending.NewLocale)
	return strings.TrimRight(loc.Prefix, "/") + "/"
}

func (h *LocaleHandoff) equivalentPath(ctx context.Context, pending *PendingLocaleHandoff) (string, bool) {
	doc, err := h.findDocument(ctx, pending.OldDocumentID, pending.OldLocale)
	if err != nil {
		if !isNotFound(err) {
			h.logger.Error("failed to load document %q in locale %q: %v", pending.OldDocumentID, pending.OldLocale, err)
		}
		return "", false
	}

	equivalent, err := h.findDocument(ctx, doc.CrossLocaleID, pending.NewLocale)
	if err != nil {
		if !isNotFound(err) {
			h.logger.Error("failed to load document %q in locale %q: %v", doc.CrossLocaleID, pending.NewLocale, err)
		}
		return "", false
	}
	if equivalent.Path == "" {
		return "", false
	}
	return equivalent.Path, true
}

// findDocument looks the document up under the full locale name first and
// then under the base locale with the :draft or :published mode removed.
func (h *LocaleHandoff) findDocument(ctx context.Context, crossLocaleID, locale string) (*Document, error) {
	doc, err := h.documents.FindByCrossLocaleID(ctx, crossLocaleID, locale)
	if err == nil || !isNotFound(err) {
		return doc, err
	}
	base, _, hasMode := strings.Cut(locale, ":")
	if !hasMode {
		return doc, err
	}
	return h.documents.FindByCrossLocaleID(ctx, crossLocaleID, base)
}

func appendQueryParam(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		return target + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
