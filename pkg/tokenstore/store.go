// Package tokenstore persists the session credentials (access token, refresh
// token, serialized user) across process restarts.
//
// Concrete drivers live under drivers/. Every driver stores the same three
// logical fields under the fixed storage keys below, so a store written by one
// build of the client can be read back by another.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Fixed storage keys.
const (
	KeyAccessToken  = "@iotrac_token"
	KeyRefreshToken = "@iotrac_refresh_token"
	KeyUser         = "@iotrac_user"
)

// Keys lists the storage keys in the order drivers write them.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

var (
	// ErrUnavailable wraps failures of the storage medium itself (unreadable
	// file, locked database). Guard turns these into absent values on Load.
	ErrUnavailable = errors.New("tokenstore: storage unavailable")

	// ErrCorrupt reports persisted data that exists but cannot be decoded.
	ErrCorrupt = errors.New("tokenstore: corrupt credentials")

	ErrClosed = errors.New("tokenstore: closed")
)

// Store is implemented by every driver.
type Store interface {
	// Save writes all three fields. A Load after Save returns what was saved.
	Save(ctx context.Context, c Credentials) error

	// Load returns the persisted fields. Missing keys are zero values, never
	// an error.
	Load(ctx context.Context) (Credentials, error)

	// Clear removes all three fields. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	Close() error
}

// Credentials is the durable record. A zero field means "absent".
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// IsZero reports whether nothing is persisted.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.User == nil
}

// Encode flattens c into the key/value form drivers persist. Absent fields
// are omitted.
func Encode(c Credentials) (map[string]string, error) {
	out := make(map[string]string, len(Keys))
	if c.AccessToken != "" {
		out[KeyAccessToken] = c.AccessToken
	}
	if c.RefreshToken != "" {
		out[KeyRefreshToken] = c.RefreshToken
	}
	if c.User != nil {
		raw, err := json.Marshal(c.User)
		if err != nil {
			return nil, fmt.Errorf("failed to encode user: %w", err)
		}
		out[KeyUser] = string(raw)
	}
	return out, nil
}

// Decode is the inverse of Encode. Unknown keys are ignored.
func Decode(kv map[string]string) (Credentials, error) {
	c := Credentials{
		AccessToken:  kv[KeyAccessToken],
		RefreshToken: kv[KeyRefreshToken],
	}

	if raw := kv[KeyUser]; raw != "" {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return Credentials{}, fmt.Errorf("%w: user: %v", ErrCorrupt, err)
		}
		c.User = &u
	}

	return c, nil
}
