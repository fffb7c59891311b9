// Package crypto seals small secrets at rest, currently the TOTP seeds stored
// on user accounts. With no key configured it degrades to pass-through so
// local development needs no key material.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const keyLen = 32

type Sealer struct {
	key []byte
}

// NewSealer accepts the key as hex, base64 or raw bytes. An empty key yields
// a pass-through sealer.
func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != keyLen {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must decode to %d bytes, got %d", keyLen, len(decoded))
	}
	return &Sealer{key: decoded}, nil
}

func (s *Sealer) Configured() bool {
	return len(s.key) == keyLen
}

// Seal encrypts with AES-GCM and prepends the nonce to the ciphertext.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return plain, nil
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return sealed, nil
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("sealed value too short")
	}
	return gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
}

func (s *Sealer) SealString(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return s.Seal([]byte(value))
}

func (s *Sealer) OpenString(sealed []byte) (string, error) {
	plain, err := s.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func decodeKey(raw string) []byte {
	if len(raw) == keyLen*2 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
