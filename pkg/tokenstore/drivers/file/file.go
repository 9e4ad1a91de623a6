// Package file is a tokenstore driver that keeps the credentials in a single
// JSON document on disk, optionally sealed.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

type Store struct {
	mu     sync.Mutex
	path   string
	sealer cryptox.Sealer
	closed bool
}

var _ tokenstore.Store = (*Store)(nil)

// New returns a store backed by path. The file and its directory are created
// on first Save. A nil sealer stores plaintext JSON.
func New(path string, sealer cryptox.Sealer) *Store {
	if sealer == nil {
		sealer = cryptox.NopSealer{}
	}
	return &Store{path: path, sealer: sealer}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Save(_ context.Context, c tokenstore.Credentials) error {
	kv, err := tokenstore.Encode(c)
	if err != nil {
		return err
	}

	data, err := json.Marshal(kv)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tokenstore.ErrClosed
	}
	return s.writeAtomic(sealed)
}

func (s *Store) Load(_ context.Context) (tokenstore.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tokenstore.Credentials{}, tokenstore.ErrClosed
	}

	sealed, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return tokenstore.Credentials{}, nil
	case err != nil:
		return tokenstore.Credentials{}, fmt.Errorf("%w: %v", tokenstore.ErrUnavailable, err)
	}

	data, err := s.sealer.Open(sealed)
	if err != nil {
		return tokenstore.Credentials{}, fmt.Errorf("%w: %v", tokenstore.ErrCorrupt, err)
	}

	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		return tokenstore.Credentials{}, fmt.Errorf("%w: %v", tokenstore.ErrCorrupt, err)
	}

	return tokenstore.Decode(kv)
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tokenstore.ErrClosed
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeAtomic writes to a temp file in the same directory and renames it over
// the target, so a reader never sees a half-written document.
func (s *Store) writeAtomic(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", tokenstore.ErrUnavailable, err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
