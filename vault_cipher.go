package bridge

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// TokenCipher encrypts tokens before they reach the database.
type TokenCipher interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

const sealedPrefix = "sb1:"

// SecretboxCipher seals tokens with NaCl secretbox. Values written before a
// key was configured are returned unchanged by Open.
type SecretboxCipher struct {
	key [32]byte
}

func NewSecretboxCipher(key []byte) (*SecretboxCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault encryption key must be 32 bytes, got %d", len(key))
	}
	c := &SecretboxCipher{}
	copy(c.key[:], key)
	return c, nil
}

func (c *SecretboxCipher) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &c.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *SecretboxCipher) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed token: %w", err)
	}
	if len(data) < 24 {
		return "", fmt.Errorf("sealed token too short")
	}

	var nonce [24]byte
	copy(nonce[:], data[:24])
	plain, ok := secretbox.Open(nil, data[24:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("failed to open sealed token")
	}
	return string(plain), nil
}
