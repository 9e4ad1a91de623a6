// Package cryptox seals credentials at rest and generates random tokens and
// one-time codes.
package cryptox

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrOpen is returned when sealed data cannot be opened: wrong key, wrong
// passphrase, or tampered ciphertext.
var ErrOpen = errors.New("cryptox: cannot open sealed data")

// Sealer protects persisted credentials at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// NopSealer stores data as-is. Used when no key or passphrase is configured.
type NopSealer struct{}

func (NopSealer) Seal(p []byte) ([]byte, error) { return bytes.Clone(p), nil }
func (NopSealer) Open(p []byte) ([]byte, error) { return bytes.Clone(p), nil }

// ============================================================================
// Keyfile sealer (NaCl secretbox)
// ============================================================================

const (
	keyfileKeySize = 32
	nonceSize      = 24
)

// KeyfileSealer seals with XSalsa20-Poly1305 under a 32-byte key derived from
// arbitrary key material. Output format: [24-byte nonce][box].
type KeyfileSealer struct {
	key [keyfileKeySize]byte
}

// NewKeyfileSealer derives the secretbox key from material with SHA-256.
func NewKeyfileSealer(material []byte) (*KeyfileSealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty key material")
	}
	return &KeyfileSealer{key: sha256.Sum256(material)}, nil
}

// LoadOrCreateKeyfile reads key material from path, creating the file with
// fresh random material (mode 0600) when it does not exist yet. A device
// keeps its key across restarts this way without any user setup.
func LoadOrCreateKeyfile(path string) (*KeyfileSealer, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return NewKeyfileSealer(data)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	material := make([]byte, keyfileKeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, material, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return NewKeyfileSealer(material)
}

func (s *KeyfileSealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *KeyfileSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrOpen
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// ============================================================================
// Passphrase sealer (age scrypt)
// ============================================================================

// DefaultScryptWorkFactor keeps a seal or open well under a second on a
// phone-class CPU. age's own default (18) is tuned for files opened rarely.
const DefaultScryptWorkFactor = 15

// PassphraseSealer seals with an age scrypt recipient derived from a user
// passphrase.
type PassphraseSealer struct {
	passphrase string
	workFactor int
}

// NewPassphraseSealer returns a sealer for passphrase. workFactor <= 0 means
// DefaultScryptWorkFactor.
func NewPassphraseSealer(passphrase string, workFactor int) (*PassphraseSealer, error) {
	if passphrase == "" {
		return nil, errors.New("cryptox: empty passphrase")
	}
	if workFactor <= 0 {
		workFactor = DefaultScryptWorkFactor
	}
	return &PassphraseSealer{passphrase: passphrase, workFactor: workFactor}, nil
}

func (s *PassphraseSealer) Seal(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipient: %w", err)
	}
	recipient.SetWorkFactor(s.workFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *PassphraseSealer) Open(sealed []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return plaintext, nil
}
