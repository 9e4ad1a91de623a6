package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/iotrac/pkg/poller"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

type manualTicker struct{ ch chan time.Time }

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) tick() { m.ch <- time.Now() }

// recorder collects published updates.
type recorder[T any] struct {
	mu      sync.Mutex
	updates []poller.Update[T]
}

func (r *recorder[T]) add(u poller.Update[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder[T]) all() []poller.Update[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]poller.Update[T](nil), r.updates...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func newPoller[T any](t *testing.T, fetch func(context.Context) (T, error)) (*poller.Poller[T], *manualTicker, *recorder[T]) {
	t.Helper()

	tk := &manualTicker{ch: make(chan time.Time)}
	p := poller.New("test", time.Second, fetch,
		poller.WithLogger(slogx.Discard()),
		poller.WithTicker(func(time.Duration) poller.Ticker { return tk }),
	)
	rec := &recorder[T]{}
	p.Subscribe(rec.add)
	t.Cleanup(p.Stop)
	return p, tk, rec
}

func TestFirstFetchTogglesLoading(t *testing.T) {
	t.Parallel()

	p, _, rec := newPoller(t, func(context.Context) ([]string, error) {
		return []string{"drone"}, nil
	})
	p.Start(context.Background())

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)
	updates := rec.all()
	require.True(t, updates[0].Loading)
	require.False(t, updates[1].Loading)
	require.Equal(t, []string{"drone"}, updates[1].Data)
	require.False(t, updates[1].At.IsZero())
}

func TestBackgroundFetchPublishesOnlyChanges(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	payloads := [][]int{{1}, {1}, {1, 2}}
	p, tk, rec := newPoller(t, func(context.Context) ([]int, error) {
		n := calls.Add(1)
		return payloads[min(int(n), len(payloads))-1], nil
	})
	p.Start(context.Background())
	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)

	tk.tick()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return rec.len() != 2 }, 50*time.Millisecond, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		tk.tick()
		return rec.len() == 3
	}, time.Second, 5*time.Millisecond)
	last := rec.all()[2]
	require.False(t, last.Loading, "background fetches never report loading")
	require.Equal(t, []int{1, 2}, last.Data)
}

func TestTickSkippedWhileFetchInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	p, tk, _ := newPoller(t, func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if n == 1 {
			select {
			case <-release:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		return int(n), nil
	})
	p.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	tk.tick()
	tk.tick()
	require.Equal(t, int32(1), calls.Load())
	require.ErrorIs(t, p.Refresh(context.Background()), poller.ErrInFlight)

	close(release)
	require.Eventually(t, func() bool { return p.Current().Data == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		tk.tick()
		return p.Current().Data >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	var fail atomic.Bool
	fail.Store(true)

	var calls atomic.Int32
	p, tk, rec := newPoller(t, func(context.Context) (string, error) {
		calls.Add(1)
		if fail.Load() {
			return "", boom
		}
		return "ok", nil
	})
	p.Start(context.Background())

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)
	first := rec.all()[1]
	require.ErrorIs(t, first.Err, boom)
	require.False(t, first.Loading)

	fail.Store(false)
	require.NoError(t, p.Refresh(context.Background()))
	require.Equal(t, "ok", p.Current().Data)
	require.NoError(t, p.Current().Err)

	// A failing background fetch keeps the last data and publishes nothing.
	fail.Store(true)
	before := rec.len()
	tk.tick()
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return rec.len() != before }, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, "ok", p.Current().Data)

	require.ErrorIs(t, p.Refresh(context.Background()), boom)
}

func TestStopIsIdempotentAndCancelsFetch(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	p := poller.New("blocking", time.Hour, func(ctx context.Context) (int, error) {
		close(entered)
		<-ctx.Done()
		return 0, ctx.Err()
	}, poller.WithLogger(slogx.Discard()))

	p.Start(context.Background())
	<-entered

	p.Stop()
	p.Stop()
	require.NoError(t, p.Current().Err, "cancellation is not reported as a fetch error")
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()

	p := poller.New("idle", 0, func(context.Context) (int, error) { return 0, nil })
	p.Stop()
	p.Stop()
}
