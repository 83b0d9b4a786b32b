// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package seal encrypts the serialized token cache before it leaves the process for an
// external store. Output is a version byte, a random XChaCha20-Poly1305 nonce and the
// ciphertext. The partition key is bound as additional data, so a blob copied to another
// partition fails to open.
package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const version1 byte = 1

// ErrOpen is returned when a sealed blob cannot be authenticated.
var ErrOpen = errors.New("sealed cache could not be opened")

// Sealer encrypts and decrypts cache blobs. The zero value is not usable; a nil *Sealer
// passes data through unchanged so that callers need not branch.
type Sealer struct {
	aead cipher.AEAD
}

// New creates a Sealer from a 32 byte key.
func New(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cache encryption key: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// FromBase64 creates a Sealer from a standard base64 encoded 32 byte key. An empty string
// returns a nil *Sealer, which disables encryption.
func FromBase64(key string) (*Sealer, error) {
	if key == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("cache encryption key is not base64: %w", err)
	}
	return New(b)
}

// Seal encrypts plaintext for the partition key.
func (s *Sealer) Seal(plaintext []byte, key string) ([]byte, error) {
	if s == nil {
		return plaintext, nil
	}
	out := make([]byte, 1+s.aead.NonceSize(), 1+s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	out[0] = version1
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	return s.aead.Seal(out, out[1:], plaintext, []byte(key)), nil
}

// Open decrypts a blob produced by Seal for the same partition key.
func (s *Sealer) Open(sealed []byte, key string) ([]byte, error) {
	if s == nil {
		return sealed, nil
	}
	ns := s.aead.NonceSize()
	if len(sealed) < 1+ns+s.aead.Overhead() || sealed[0] != version1 {
		return nil, ErrOpen
	}
	plaintext, err := s.aead.Open(nil, sealed[1:1+ns], sealed[1+ns:], []byte(key))
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}
