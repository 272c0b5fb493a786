package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/agentcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, clock *fakeClock) CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:            "model-a",
		Threshold:       threshold,
		ResetTimeout:    10 * time.Second,
		MaxResetTimeout: 40 * time.Second,
		Now:             clock.Now,
	}, zap.NewNop())
}

var errUpstream = types.NewError(types.ErrUpstreamError, "boom").WithRetryable(true)

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// DefaultConfig / NewCircuitBreaker
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)
	assert.Equal(t, 5*time.Minute, cfg.MaxResetTimeout)
	assert.Nil(t, cfg.OnStateChange)
}

func TestNewCircuitBreaker_Normalizes(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Threshold: -1, ResetTimeout: 0, MaxResetTimeout: time.Second}, nil)
	b := cb.(*breaker)
	assert.Equal(t, 3, b.config.Threshold)
	assert.Equal(t, 30*time.Second, b.config.ResetTimeout)
	assert.Equal(t, 30*time.Second, b.config.MaxResetTimeout)
	assert.NotNil(t, b.config.Now)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

// ---------------------------------------------------------------------------
// 状态机
// ---------------------------------------------------------------------------

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(3, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
		assert.Equal(t, StateClosed, cb.State())
	}
	require.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	var called atomic.Bool
	err := cb.Call(ctx, func(context.Context) error {
		called.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsOpen(err))
	assert.False(t, called.Load(), "open breaker must not invoke fn")

	snap := cb.Snapshot()
	assert.Equal(t, "model-a", snap.Name)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.Equal(t, clock.Now().Add(10*time.Second), snap.OpenUntil)
	assert.Equal(t, 1, snap.Trips)
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	cb := newTestBreaker(3, newFakeClock())
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)
	require.NoError(t, cb.Call(ctx, succeed))
	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 2, cb.Snapshot().ConsecutiveFailures)
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(10 * time.Second)
	assert.True(t, cb.Allow())

	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow())
	err := cb.Call(ctx, succeed)
	assert.ErrorIs(t, err, ErrTrialInFlight)
	assert.True(t, IsOpen(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().Trips)
}

func TestBreaker_HalfOpenFailureDoublesBackoff(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	clock.Advance(10 * time.Second)
	_ = cb.Call(ctx, fail) // 试探失败

	snap := cb.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 2, snap.Trips)
	assert.Equal(t, clock.Now().Add(20*time.Second), snap.OpenUntil)

	clock.Advance(20 * time.Second)
	_ = cb.Call(ctx, fail)
	clock.Advance(40 * time.Second)
	_ = cb.Call(ctx, fail)

	// 上限 40s
	snap = cb.Snapshot()
	assert.Equal(t, 4, snap.Trips)
	assert.Equal(t, clock.Now().Add(40*time.Second), snap.OpenUntil)
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	cb := newTestBreaker(1, newFakeClock())
	badReq := types.NewInvalidRequestError("bad prompt")

	err := cb.Call(context.Background(), func(context.Context) error { return badReq })
	assert.ErrorIs(t, err, badReq)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_ClientErrorIsNeutral(t *testing.T) {
	ctx := context.Background()
	badReq := func(context.Context) error { return types.NewInvalidRequestError("bad prompt") }

	t.Run("closed keeps failure count", func(t *testing.T) {
		cb := newTestBreaker(3, newFakeClock())
		_ = cb.Call(ctx, fail)
		_ = cb.Call(ctx, fail)
		_ = cb.Call(ctx, badReq)

		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, 2, cb.Snapshot().ConsecutiveFailures)

		_ = cb.Call(ctx, fail)
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("half-open trial does not close", func(t *testing.T) {
		clock := newFakeClock()
		cb := newTestBreaker(1, clock)
		_ = cb.Call(ctx, fail)
		clock.Advance(10 * time.Second)

		_ = cb.Call(ctx, badReq)
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.Equal(t, 1, cb.Snapshot().Trips)
		assert.True(t, cb.Allow(), "trial slot is released")

		require.NoError(t, cb.Call(ctx, succeed))
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestBreaker_AbandonedCallNotCounted(t *testing.T) {
	cb := newTestBreaker(1, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().ConsecutiveFailures)
}

func TestBreaker_CallTimeout(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Threshold: 1, CallTimeout: 10 * time.Millisecond}, zap.NewNop())

	err := cb.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_ResetAndCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := NewCircuitBreaker(&Config{
		Name:      "m",
		Threshold: 1,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}, zap.NewNop())

	_ = cb.Call(context.Background(), fail)
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []string{"m:closed->open", "m:open->closed"}, transitions)
	mu.Unlock()
}

func TestCallWithResultTyped(t *testing.T) {
	cb := newTestBreaker(2, newFakeClock())

	v, err := CallWithResultTyped(cb, context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = CallWithResultTyped(cb, context.Background(), func(context.Context) (int, error) {
		return 0, errUpstream
	})
	assert.Error(t, err)
	assert.Zero(t, v)
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	cb := newTestBreaker(1000, newFakeClock())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Call(context.Background(), fail)
			} else {
				_ = cb.Call(context.Background(), succeed)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}
