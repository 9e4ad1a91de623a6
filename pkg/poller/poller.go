// Package poller re-fetches a resource on a fixed interval and publishes the
// result to subscribers when it changes.
//
// Only the first fetch after Start reports Loading. Later fetches are silent:
// they publish only when the payload differs from the last one, and their
// errors are logged while the last good data is kept. A tick that arrives
// while a fetch is still outstanding is skipped.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

// Intervals used by the CLI's watch views.
const (
	ConnectionInterval = 30 * time.Second
	DevicesInterval    = 10 * time.Second
	LogsInterval       = 5 * time.Second
	ProtectionInterval = 20 * time.Second
)

// ErrInFlight is returned by Refresh when a fetch is already running.
var ErrInFlight = errors.New("poller: fetch already in flight")

// Update is what subscribers receive.
type Update[T any] struct {
	Data    T
	Loading bool

	// Err is set only for a failed first fetch or a failed Refresh.
	Err error

	// At is when Data was fetched. Zero until the first success.
	At time.Time
}

// Ticker is the part of time.Ticker the loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

type options struct {
	logger    *slog.Logger
	newTicker func(time.Duration) Ticker
	now       func() time.Time
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithTicker replaces the interval timer.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(o *options) { o.newTicker = fn }
}

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

type Poller[T any] struct {
	name      string
	interval  time.Duration
	fetch     func(context.Context) (T, error)
	logger    *slog.Logger
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	inflight atomic.Bool
	wg       sync.WaitGroup

	mu        sync.Mutex
	current   Update[T]
	hasData   bool
	observers map[int]func(Update[T])
	nextObs   int

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New returns a stopped poller. interval <= 0 means one minute.
func New[T any](name string, interval time.Duration, fetch func(context.Context) (T, error), opts ...Option) *Poller[T] {
	if interval <= 0 {
		interval = time.Minute
	}

	o := options{
		newTicker: func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Poller[T]{
		name:      name,
		interval:  interval,
		fetch:     fetch,
		logger:    slogx.OrDefault(o.logger).With("poller", name),
		newTicker: o.newTicker,
		now:       o.now,
		observers: make(map[int]func(Update[T])),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start fetches immediately and then on every tick until Stop is called or
// ctx is done. Calling Start again has no effect.
func (p *Poller[T]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		go p.run(ctx)
		p.logger.Debug("poller started", "interval", p.interval)
	})
}

// Stop cancels the loop and any outstanding fetch, and waits for both to
// finish. It is safe to call more than once, and before Start.
func (p *Poller[T]) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if !p.started.Load() {
			return
		}
		p.cancel()
		<-p.doneCh
		p.logger.Debug("poller stopped")
	})
}

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.doneCh)
	defer p.wg.Wait()

	ticker := p.newTicker(p.interval)
	defer ticker.Stop()

	p.spawn(ctx, true)

	for {
		select {
		case <-ticker.C():
			p.spawn(ctx, false)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller[T]) spawn(ctx context.Context, first bool) {
	if !p.inflight.CompareAndSwap(false, true) {
		p.logger.Debug("skipping tick, fetch in flight")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.poll(ctx, first)
	}()
}

func (p *Poller[T]) poll(ctx context.Context, first bool) {
	if first {
		p.publish(func(u *Update[T]) bool {
			u.Loading = true
			u.Err = nil
			return true
		})
	}

	data, err := p.fetch(ctx)
	// Cleared before publishing: a tick or Refresh that follows the result
	// starts a new fetch instead of being skipped.
	p.inflight.Store(false)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if first {
			p.publish(func(u *Update[T]) bool {
				u.Loading = false
				u.Err = err
				return true
			})
			return
		}
		p.logger.Warn("background fetch failed", "error", err.Error())
		return
	}

	p.store(data, first)
}

// Refresh fetches now in the caller's goroutine, for a manual pull to
// refresh. It publishes like a background fetch but also returns the error.
func (p *Poller[T]) Refresh(ctx context.Context) error {
	if !p.inflight.CompareAndSwap(false, true) {
		return ErrInFlight
	}

	data, err := p.fetch(ctx)
	p.inflight.Store(false)
	if err != nil {
		p.publish(func(u *Update[T]) bool {
			u.Err = err
			return true
		})
		return err
	}

	p.store(data, false)
	return nil
}

// store publishes data if it differs from the current payload. force also
// publishes an unchanged payload, to clear Loading after the first fetch.
func (p *Poller[T]) store(data T, force bool) {
	p.publish(func(u *Update[T]) bool {
		changed := !p.hasData || !reflect.DeepEqual(u.Data, data)
		if !changed && !force && u.Err == nil {
			return false
		}
		p.hasData = true
		u.Data = data
		u.Loading = false
		u.Err = nil
		u.At = p.now()
		return true
	})
}

// publish applies fn to the current update under the lock, then delivers
// the result if fn reports a change.
func (p *Poller[T]) publish(fn func(*Update[T]) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !fn(&p.current) {
		return
	}
	u := p.current
	for _, obs := range p.observers {
		obs(u)
	}
}

// Current returns the latest update.
func (p *Poller[T]) Current() Update[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe registers fn for every published update. fn runs on the
// fetching goroutine with the poller's lock held and must not call back into
// the poller.
func (p *Poller[T]) Subscribe(fn func(Update[T])) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}
