// Package crypto implements field-level encryption at rest for
// credential and installed-server input values, wrapping the standard
// library's crypto/cipher GCM implementation.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mcpmux/gateway/internal/model"
)

// magic marks a value as produced by Seal, distinguishing "definitely
// encrypted, a decrypt failure is a real error" from "plaintext written
// before encryption was introduced", which Open returns verbatim.
const magic = "MX"

// Sealer encrypts and decrypts values with a single process-wide key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key, typically sourced from the
// platform secret provider (internal/collab.SecretProvider).
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: sealer key must be 32 bytes, got %d", model.ErrCrypto, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCrypto, err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext, returning a base64url string prefixed with a
// plain-text magic marker: magic || base64url(nonce || ciphertext || tag).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrCrypto, err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return magic + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. If the value does not carry the
// magic prefix, it is assumed to be plaintext written before encryption
// was enabled and is returned unchanged.
func (s *Sealer) Open(value string) ([]byte, error) {
	if len(value) < len(magic) || value[:len(magic)] != magic {
		return []byte(value), nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value[len(magic):])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext: %v", model.ErrCrypto, err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", model.ErrCrypto)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed: %v", model.ErrCrypto, err)
	}
	return plaintext, nil
}

// SealString is a convenience wrapper for string plaintexts.
func (s *Sealer) SealString(plaintext string) (string, error) {
	return s.Seal([]byte(plaintext))
}

// OpenString is a convenience wrapper returning a string.
func (s *Sealer) OpenString(value string) (string, error) {
	b, err := s.Open(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
