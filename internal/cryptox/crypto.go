// Package cryptox implements at-rest encryption for document payloads stored
// in the local database. Keys are derived from an installation secret with
// argon2id; payloads are sealed with AES-GCM using a fresh random nonce.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const nonceSize = 12

var ErrInvalidKeySize = errors.New("key must be 16, 24 or 32 bytes")

// DeriveKey derives a 256-bit encryption key from an installation secret and
// a per-installation salt.
func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Checksum returns the hex-free SHA-256 digest of data. Document repositories
// store it so a payload can be verified after a round trip.
func Checksum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Cipher seals and opens byte blobs with a fixed key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from an AES key (16, 24 or 32 bytes).
func NewCipher(key []byte) (*Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext and returns the ciphertext together with the random
// nonce used. The nonce is stored alongside the ciphertext, not secret.
func (c *Cipher) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return c.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts ciphertext produced by Seal.
func (c *Cipher) Open(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != nonceSize {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
