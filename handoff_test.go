package bridge

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalesLookupIgnoresMode(t *testing.T) {
	locales := Locales{"fr": {Prefix: "/fr"}}

	loc, ok := locales.Lookup("fr:published")
	require.True(t, ok)
	assert.Equal(t, "/fr", loc.Prefix)

	_, ok = locales.Lookup("de:published")
	assert.False(t, ok)
}

func TestLocaleHandoffStage(t *testing.T) {
	h := NewLocaleHandoff(newMemoryHandoffCache(), Locales{})
	sess := NewSession()

	assert.False(t, h.Stage(sess, "en", "", "doc"))
	assert.Nil(t, sess.LocaleHandoff)

	assert.True(t, h.Stage(sess, "en:draft", "en:published", "doc"))
	assert.Equal(t, &PendingLocaleHandoff{OldLocale: "en:draft", NewLocale: "en:published", OldDocumentID: "doc"}, sess.LocaleHandoff)
}

func TestLocaleHandoffFinalizeWithoutPending(t *testing.T) {
	h := NewLocaleHandoff(newMemoryHandoffCache(), Locales{})
	target, ok, err := h.Finalize(context.Background(), &Session{UserID: "u"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, target)
}

func TestLocaleHandoffFinalizeRoutesToEquivalentDocument(t *testing.T) {
	cache := newMemoryHandoffCache()
	docs := &stubDocumentStore{docs: []*Document{
		{ID: "doc-en", CrossLocaleID: "x1", Locale: "en:draft", Path: "/about"},
		{ID: "doc-fr", CrossLocaleID: "x1", Locale: "fr:published", Path: "/fr/a-propos"},
	}}
	h := NewLocaleHandoff(cache, Locales{
		"fr": {Prefix: "/fr", BaseURL: "https://fr.example.com/"},
	}, WithHandoffDocuments(docs))

	sess := &Session{
		ID:            "s1",
		UserID:        "user-1",
		LocaleHandoff: &PendingLocaleHandoff{OldLocale: "en:draft", NewLocale: "fr:published", OldDocumentID: "x1"},
	}

	target, ok, err := h.Finalize(context.Background(), sess)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, sess.LocaleHandoff)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "fr.example.com", parsed.Host)
	assert.Equal(t, "/fr/a-propos", parsed.Path)

	token := parsed.Query().Get(QueryHandoffToken)
	require.NotEmpty(t, token)
	assert.Equal(t, HandoffTTL, cache.ttls[handoffKeyPrefix+token])

	resumed, err := h.Resume(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", resumed.UserID)
	assert.Nil(t, resumed.LocaleHandoff)

	_, err = h.Resume(context.Background(), token)
	assert.True(t, hasTextCode(err, TextCodeHandoffInvalid))
}

func TestLocaleHandoffMatchesDocumentsStoredUnderBaseLocale(t *testing.T) {
	docs := &stubDocumentStore{docs: []*Document{
		{ID: "doc-en", CrossLocaleID: "x1", Locale: "en", Path: "/about"},
		{ID: "doc-fr", CrossLocaleID: "x1", Locale: "fr", Path: "/fr/a-propos"},
	}}
	h := NewLocaleHandoff(newMemoryHandoffCache(), Locales{
		"fr": {Prefix: "/fr", BaseURL: "https://fr.example.com/"},
	}, WithHandoffDocuments(docs))

	sess := &Session{
		ID:            "s1",
		UserID:        "user-1",
		LocaleHandoff: &PendingLocaleHandoff{OldLocale: "en:draft", NewLocale: "fr:published", OldDocumentID: "x1"},
	}

	target, ok, err := h.Finalize(context.Background(), sess)
	require.NoError(t, err)
	require.True(t, ok)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "fr.example.com", parsed.Host)
	assert.Equal(t, "/fr/a-propos", parsed.Path)
}

func TestLocaleHandoffFallsBackToLocaleHome(t *testing.T) {
	tests := []struct {
		name string
		docs *stubDocumentStore
	}{
		{name: "no equivalent", docs: &stubDocumentStore{docs: []*Document{{CrossLocaleID: "x1", Locale: "en", Path: "/about"}}}},
		{name: "lookup error", docs: &stubDocumentStore{err: errors.New("db down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLocaleHandoff(newMemoryHandoffCache(), Locales{"de": {Prefix: "/de/"}}, WithHandoffDocuments(tt.docs))
			sess := &Session{UserID: "u", LocaleHandoff: &PendingLocaleHandoff{OldLocale: "en", NewLocale: "de", OldDocumentID: "x1"}}

			target, ok, err := h.Finalize(context.Background(), sess)
			require.NoError(t, err)
			require.True(t, ok)

			parsed, err := url.Parse(target)
			require.NoError(t, err)
			assert.Equal(t, "/de/", parsed.Path)
			assert.Empty(t, parsed.Host)
		})
	}
}

func TestLocaleHandoffResumeRejectsEmptyToken(t *testing.T) {
	h := NewLocaleHandoff(newMemoryHandoffCache(), Locales{})
	_, err := h.Resume(context.Background(), "")
	assert.True(t, hasTextCode(err, TextCodeHandoffInvalid))
}

func TestAppendQueryParam(t *testing.T) {
	assert.Equal(t, "/a?handoffToken=t", appendQueryParam("/a", QueryHandoffToken, "t"))
	assert.Equal(t, "/a?b=1&handoffToken=t", appendQueryParam("/a?b=1", QueryHandoffToken, "t"))
}
