package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/poller"
)

type watchSpec[T any] struct {
	name     string
	interval time.Duration
	fallback time.Duration

	// needSession ends the watch once a fetch fails and the session is gone.
	needSession bool

	fetch func(context.Context) (T, error)

	// render prints a settled payload and reports whether anything was shown.
	render func(T) (bool, error)
}

// watch polls spec.fetch and renders each new payload until interrupted.
func watch[T any](ctx context.Context, c *CLI, spec watchSpec[T]) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := spec.interval
	if interval <= 0 {
		interval = spec.fallback
	}

	p := poller.New(spec.name, interval, spec.fetch, poller.WithLogger(c.app.Logger()))

	updates := make(chan poller.Update[T], 1)
	unsubscribe := p.Subscribe(keepLatest(updates))
	defer unsubscribe()

	p.Start(ctx)
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-updates:
			if u.Loading {
				continue
			}
			if u.Err != nil {
				c.printer.Warning("%s", Describe(u.Err))
				if spec.needSession && !c.session().Snapshot().IsAuthenticated {
					return u.Err
				}
				continue
			}

			shown, err := spec.render(u.Data)
			if err != nil {
				return err
			}
			if shown {
				fmt.Fprintf(c.stderr, "-- updated %s --\n", u.At.Local().Format(time.TimeOnly))
			}
		}
	}
}

// keepLatest returns a subscriber that leaves only the newest update in ch,
// which must have a buffer of one. The poller delivers updates one at a
// time, so the send after draining never blocks.
func keepLatest[T any](ch chan T) func(T) {
	return func(v T) {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
