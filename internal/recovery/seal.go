// Package recovery keeps a copy of the host's snapshot alive outside the
// host process. The snapshot is sealed with a key derived from the host
// token and handed to players; after a restart the host asks one of them
// for it back. This guards against data loss only: any player knowing the
// host token could read it.
package recovery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

var ErrEmptyToken = errors.New("empty host token")
var ErrUnseal = errors.New("recovery envelope could not be opened")

const (
	keySalt       = "nofus-state-recovery"
	keyIterations = 100_000
	keyLength     = 32
)

// Sealer holds the AEAD derived once from a host token.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(token string) (*Sealer, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	key := pbkdf2.Key([]byte(token), []byte(keySalt), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("recovery: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("recovery: gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext) of the JSON snapshot.
func (s *Sealer) Seal(snap engine.Snapshot) (string, error) {
	plain, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("recovery: marshal snapshot: %w", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("recovery: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Unseal(envelope string) (engine.Snapshot, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return engine.Snapshot{}, fmt.Errorf("%w: envelope too short", ErrUnseal)
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("%w: %v", ErrUnseal, err)
	}
	return snap, nil
}
