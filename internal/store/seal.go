package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// ErrSealBroken is returned when a sealed blob cannot be opened, either
// because it was tampered with or the secret changed.
var ErrSealBroken = errors.New("sealed data cannot be opened")

// Sealer encrypts and authenticates blobs with a key derived from a secret.
type Sealer struct {
	key [keySize]byte
}

// NewSealer derives the sealing key from secret and salt with Argon2id.
func NewSealer(secret string, salt []byte) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is empty")
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("salt too short")
	}
	s := &Sealer{}
	copy(s.key[:], argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, keySize))
	return s, nil
}

// Seal returns nonce||box.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealBroken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealBroken
	}
	return plain, nil
}
