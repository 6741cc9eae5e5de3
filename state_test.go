package bridge

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testStateKey  = []byte("0123456789abcdef0123456789abcdef")
	testStateHMAC = []byte("fedcba9876543210fedcba9876543210")
)

func TestStateManager_EncryptDecrypt(t *testing.T) {
	sm, err := NewEncryptedStateManager(testStateKey, testStateHMAC, 10*time.Minute)
	require.NoError(t, err)

	state := &OAuthState{
		Strategy:     "okta",
		Action:       ActionLink,
		LinkUserID:   "user-1",
		RedirectURL:  "/dashboard",
		CodeVerifier: "test-verifier",
	}

	encoded, err := sm.Encode(state)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "test-verifier")

	decoded, err := sm.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, state.Strategy, decoded.Strategy)
	assert.Equal(t, state.Action, decoded.Action)
	assert.Equal(t, state.LinkUserID, decoded.LinkUserID)
	assert.Equal(t, state.RedirectURL, decoded.RedirectURL)
	assert.Equal(t, state.CodeVerifier, decoded.CodeVerifier)
	assert.NotEmpty(t, decoded.Nonce)
}

func TestStateManager_ExpiredState(t *testing.T) {
	sm, err := NewEncryptedStateManager(testStateKey, testStateHMAC, -1*time.Minute)
	require.NoError(t, err)

	encoded, err := sm.Encode(&OAuthState{Strategy: "okta"})
	require.NoError(t, err)

	_, err = sm.Decode(encoded)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateManager_TamperedState(t *testing.T) {
	sm, err := NewEncryptedStateManager(testStateKey, testStateHMAC, time.Minute)
	require.NoError(t, err)

	encoded, err := sm.Encode(&OAuthState{Strategy: "okta"})
	require.NoError(t, err)

	mid := len(encoded) / 2
	replacement := "A"
	if encoded[mid] == 'A' {
		replacement = "B"
	}
	_, err = sm.Decode(encoded[:mid] + replacement + encoded[mid+1:])
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = sm.Decode("not-a-state")
	assert.ErrorIs(t, err, ErrInvalidState)

	other, err := NewEncryptedStateManager(testStateKey, []byte(strings.Repeat("x", 32)), time.Minute)
	require.NoError(t, err)
	_, err = other.Decode(encoded)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNewEncryptedStateManagerValidatesKeys(t *testing.T) {
	_, err := NewEncryptedStateManager([]byte("short"), testStateHMAC, time.Minute)
	assert.True(t, IsConfigError(err))

	_, err = NewEncryptedStateManager(testStateKey, []byte("short"), time.Minute)
	assert.True(t, IsConfigError(err))
}

func TestStateManager_EncryptionKeyMismatch(t *testing.T) {
	sm, err := NewEncryptedStateManager(testStateKey, testStateHMAC, time.Minute)
	require.NoError(t, err)

	encoded, err := sm.Encode(&OAuthState{Strategy: "okta"})
	require.NoError(t, err)

	other, err := NewEncryptedStateManager([]byte(strings.Repeat("k", 32)), testStateHMAC, time.Minute)
	require.NoError(t, err)
	_, err = other.Decode(encoded)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = sm.Decode("")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRandomToken(t *testing.T) {
	a, err := randomToken(32)
	require.NoError(t, err)
	b, err := randomToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}
