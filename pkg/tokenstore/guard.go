package tokenstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

type guarded struct {
	Store
	logger *slog.Logger
}

// Guard wraps s so that Load never fails because the medium is unavailable:
// such failures are logged at warn and reported as an empty record. Corrupt
// data and Save/Clear failures still surface.
func Guard(s Store, logger *slog.Logger) Store {
	return &guarded{Store: s, logger: slogx.OrDefault(logger)}
}

func (g *guarded) Load(ctx context.Context) (Credentials, error) {
	c, err := g.Store.Load(ctx)
	if err != nil && errors.Is(err, ErrUnavailable) {
		g.logger.WarnContext(ctx, "token store unavailable, continuing signed out",
			slog.String("error", err.Error()),
		)
		return Credentials{}, nil
	}
	return c, err
}
