package integration

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// SealedPrefix marks tokens stored encrypted.
const SealedPrefix = "sealed:"

const nonceSize = 24

// ErrUnsealable indicates a sealed token that cannot be opened with the configured key.
var ErrUnsealable = errors.New("integration: token cannot be unsealed")

// Sealer encrypts integration tokens at rest with NaCl secretbox.
type Sealer struct {
	key *[32]byte
}

// NewSealer parses a 64-character hex key. An empty key yields a nil Sealer,
// which passes plain tokens through and rejects sealed ones.
func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("integration: decode secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("integration: secret key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &Sealer{key: &key}, nil
}

// Seal encrypts plain and returns "sealed:" + base64(nonce||box).
func (s *Sealer) Seal(plain string) (string, error) {
	if s == nil {
		return "", errors.New("integration: no secret key configured")
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("integration: nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, s.key)
	return SealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// Open returns the plain token. Unsealed values are returned unchanged.
func (s *Sealer) Open(token string) (string, error) {
	if !strings.HasPrefix(token, SealedPrefix) {
		return token, nil
	}
	if s == nil {
		return "", fmt.Errorf("%w: no secret key configured", ErrUnsealable)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, SealedPrefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrUnsealable
	}
	return string(plain), nil
}
