// Package cryptoutil seals exported browser session state before it leaves the process.
package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Sealer encrypts and authenticates blobs bound to a context string, such as an agent key.
type Sealer interface {
	Seal(plaintext []byte, context string) ([]byte, error)
	Open(sealed []byte, context string) ([]byte, error)
}

// sealedPrefixV1 marks AES-256-GCM output so the algorithm can be rotated later.
var sealedPrefixV1 = []byte("v1:")

// ErrUnsealed is returned by Open when the blob was not produced by a Sealer.
var ErrUnsealed = errors.New("blob is not sealed")

// AESGCMSealer implements Sealer using AES-256-GCM with the context as additional data.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMSealer{aead: aead}, nil
}

// KeyFromString accepts a 64-character hex key as is and hashes anything else down to 32 bytes.
func KeyFromString(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:], nil
}

// Seal returns prefix||nonce||ciphertext.
func (s *AESGCMSealer) Seal(plaintext []byte, context string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealedPrefixV1)+len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, sealedPrefixV1...)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, []byte(context)), nil
}

// Open reverses Seal. A blob sealed under a different context fails authentication.
func (s *AESGCMSealer) Open(sealed []byte, context string) ([]byte, error) {
	if !bytes.HasPrefix(sealed, sealedPrefixV1) {
		return nil, ErrUnsealed
	}
	data := sealed[len(sealedPrefixV1):]
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	pt, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(context))
	if err != nil {
		return nil, fmt.Errorf("open sealed blob: %w", err)
	}
	return pt, nil
}
