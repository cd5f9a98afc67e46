package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinSecretBytes is the minimum decoded length of the shared secret (256 bits).
const MinSecretBytes = 32

const signingKeyInfo = "tokenauth hs256 signing key"

var (
	// ErrSecretMissing is returned when no shared secret is configured.
	ErrSecretMissing = errors.New("signing secret missing")
	// ErrSecretEncoding is returned when the shared secret is not valid base64.
	ErrSecretEncoding = errors.New("signing secret is not valid base64")
	// ErrSecretTooShort is returned when the decoded secret is shorter than MinSecretBytes.
	ErrSecretTooShort = errors.New("signing secret must decode to at least 256 bits")
)

// SigningKey holds the HMAC key derived from the configured shared secret.
//
// A SigningKey is built once at startup and never mutated; pass it by pointer
// to every [Manager] that should share it.
type SigningKey struct {
	key []byte
}

// NewSigningKey decodes a base64 shared secret and derives the HS256 signing
// key from it with HKDF-SHA256. Secrets that decode to fewer than
// [MinSecretBytes] bytes are rejected.
func NewSigningKey(secret string) (*SigningKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretMissing
	}

	raw, err := decodeSecret(secret)
	if err != nil {
		return nil, ErrSecretEncoding
	}

	return NewSigningKeyFromBytes(raw)
}

// NewSigningKeyFromBytes derives a signing key from already-decoded secret bytes.
func NewSigningKeyFromBytes(raw []byte) (*SigningKey, error) {
	if len(raw) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}

	derived := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(signingKeyInfo)), derived); err != nil {
		return nil, err
	}

	return &SigningKey{key: derived}, nil
}

func (k *SigningKey) bytes() []byte {
	if k == nil {
		return nil
	}
	return k.key
}

func decodeSecret(secret string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(secret)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
