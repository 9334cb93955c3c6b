// Package sealer encrypts contact values at rest and derives the keyed digest used to
// look a reservation up by contact without storing or comparing plaintext.
//
// Sealed values use the format base64(nonce):base64(tag):base64(ciphertext) with AES-256-GCM.
package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes, base64 encoded")
	ErrMalformed     = errors.New("malformed sealed value")
	ErrDecryptFailed = errors.New("unable to decrypt: data corrupted or wrong key")
	ErrEmptyValue    = errors.New("value to seal must be a non-empty string")
)

type Sealer struct {
	aead      cipher.AEAD
	digestKey []byte
}

// New builds a Sealer from a base64 encoded 32-byte key.
func New(b64Key string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64Key))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	digestKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte("contact-digest")), digestKey); err != nil {
		return nil, fmt.Errorf("derive digest key: %w", err)
	}
	return &Sealer{aead: aead, digestKey: digestKey}, nil
}

// GenerateKey returns a fresh random key suitable for New.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyValue
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ct), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", ErrMalformed
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformed
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}
	plain, err := s.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

// Digest is a deterministic keyed digest of the normalized contact.
func (s *Sealer) Digest(contact string) string {
	mac := hmac.New(sha256.New, s.digestKey)
	mac.Write([]byte(Normalize(contact)))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsSealed reports whether v looks like a sealed value. It does not authenticate it.
func IsSealed(v string) bool {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := base64.StdEncoding.DecodeString(p); err != nil || p == "" {
			return false
		}
	}
	return true
}

// Normalize maps equivalent spellings of a contact onto one digest input:
// surrounding space and a leading "@" are dropped and letters lower-cased.
func Normalize(contact string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(contact), "@"))
}
