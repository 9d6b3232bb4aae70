// Package urlcrypt seals camera URLs so credentials can sit in a camera file
// without being readable. A sealed URL is "enc:" followed by the unpadded
// URL-safe base64 of nonce || AES-GCM ciphertext.
package urlcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a sealed URL in a camera list.
const Prefix = "enc:"

var encoding = base64.RawURLEncoding

var (
	ErrMissingKey       = errors.New("url key is missing")
	ErrInvalidKeyLength = errors.New("url key must be 16, 24, or 32 bytes")
	ErrSealFailed       = errors.New("cannot seal url")
	ErrOpenFailed       = errors.New("cannot open sealed url")
	ErrInvalidData      = errors.New("malformed sealed url")
)

type Service struct {
	aead cipher.AEAD
}

func NewService(key []byte) (*Service, error) {
	switch len(key) {
	case 0:
		return nil, ErrMissingKey
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Service{aead: aead}, nil
}

// NewServiceFromHex builds a service from a hex encoded key, as stored in
// STREAMCHECK_URL_KEY.
func NewServiceFromHex(hexKey string) (*Service, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, ErrMissingKey
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKeyLength
	}
	return NewService(key)
}

// IsSealed reports whether s carries the sealed URL prefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Seal returns url in "enc:..." form. The prefix is bound as additional
// data, so a token only opens with it attached.
func (s *Service) Seal(url string) (string, error) {
	if url == "" {
		return "", ErrInvalidData
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(url)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSealFailed, err)
	}
	token := s.aead.Seal(nonce, nonce, []byte(url), []byte(Prefix))
	return Prefix + encoding.EncodeToString(token), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
func (s *Service) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	token, err := encoding.DecodeString(value[len(Prefix):])
	if err != nil || len(token) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrInvalidData
	}

	n := s.aead.NonceSize()
	url, err := s.aead.Open(nil, token[:n], token[n:], []byte(Prefix))
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(url), nil
}
