package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/iotrac/pkg/cryptox"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore/drivers/file"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore/drivers/sqlite"
)

func newSealer(cfg Config) (cryptox.Sealer, error) {
	switch cfg.Seal {
	case SealNone:
		return cryptox.NopSealer{}, nil
	case SealPassphrase:
		return cryptox.NewPassphraseSealer(cfg.SealPassphrase, 0)
	default:
		s, err := cryptox.LoadOrCreateKeyfile(cfg.SealKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load seal key: %w", err)
		}
		return s, nil
	}
}

// openStore builds the configured credential store, wrapped so an
// unreadable medium starts the session signed out instead of failing.
func openStore(cfg Config, logger *slog.Logger) (tokenstore.Store, error) {
	if cfg.StoreDriver == StoreMemory {
		return tokenstore.NewMemory(), nil
	}

	sealer, err := newSealer(cfg)
	if err != nil {
		return nil, err
	}

	var store tokenstore.Store
	switch cfg.StoreDriver {
	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.StorePath)
		s, err := sqlite.NewStore(dsn, sealer)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		store = s
	default:
		store = file.New(cfg.StorePath, sealer)
	}

	logger.Debug("credential store ready", "driver", cfg.StoreDriver, "path", cfg.StorePath, "seal", cfg.Seal)
	return tokenstore.Guard(store, logger), nil
}
