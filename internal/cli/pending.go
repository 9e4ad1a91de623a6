package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/session"
)

// pendingChallenge carries a second-factor challenge from `login` to
// `verify-2fa`, which run as separate processes.
type pendingChallenge struct {
	Email     string          `json:"email"`
	TempToken string          `json:"temp_token"`
	Channel   session.Channel `json:"channel"`
	CreatedAt time.Time       `json:"created_at"`
}

// pendingTTL bounds how long a saved challenge is offered to verify-2fa.
const pendingTTL = 15 * time.Minute

func (c *CLI) pendingPath() string {
	return filepath.Join(c.app.Config().StateDir(), "pending-2fa.json")
}

func (c *CLI) savePending(p pendingChallenge) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	path := c.pendingPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write pending challenge: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write pending challenge: %w", err)
	}
	return nil
}

var errNoPending = errors.New("no pending sign-in, run `iotrac login` first or pass --temp-token")

func (c *CLI) loadPending() (pendingChallenge, error) {
	data, err := os.ReadFile(c.pendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return pendingChallenge{}, errNoPending
	}
	if err != nil {
		return pendingChallenge{}, fmt.Errorf("failed to read pending challenge: %w", err)
	}

	var p pendingChallenge
	if err := json.Unmarshal(data, &p); err != nil || p.TempToken == "" {
		c.clearPending()
		return pendingChallenge{}, errNoPending
	}
	if time.Since(p.CreatedAt) > pendingTTL {
		c.clearPending()
		return pendingChallenge{}, errNoPending
	}
	return p, nil
}

func (c *CLI) clearPending() {
	if err := os.Remove(c.pendingPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.app.Logger().Warn("failed to remove pending challenge", "error", err)
	}
}

// tempToken is the explicit flag value or the saved challenge's token.
func (c *CLI) tempToken(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	p, err := c.loadPending()
	if err != nil {
		return "", err
	}
	return p.TempToken, nil
}
