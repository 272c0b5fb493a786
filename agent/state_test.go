package agent

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusBusy, true},
		{StatusIdle, StatusOffline, true},
		{StatusBusy, StatusIdle, true},
		{StatusBusy, StatusOffline, true},
		{StatusOffline, StatusIdle, true},
		{StatusOffline, StatusBusy, false},
		{StatusIdle, StatusIdle, false},
		{StatusBusy, StatusBusy, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusBusy, StatusOffline} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStatus("  BUSY ")
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, got)

	_, err = ParseStatus("sleeping")
	assert.Error(t, err)

	assert.Equal(t, "status(9)", Status(9).String())
	assert.Equal(t, "invalid status transition: offline -> busy",
		ErrInvalidTransition{From: StatusOffline, To: StatusBusy}.Error())
}

func TestAgent_TryAcquireIsExclusive(t *testing.T) {
	a := newAgent(Definition{ID: "a"}, DefaultConfig())

	const workers = 64
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := a.tryAcquire(); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, StatusBusy, a.Status())

	a.release()
	assert.Equal(t, StatusIdle, a.Status())
}

func TestAgent_ReleaseKeepsOffline(t *testing.T) {
	a := newAgent(Definition{ID: "a"}, DefaultConfig())

	_, ok := a.tryAcquire()
	require.True(t, ok)
	_, ok = a.transition(StatusBusy, StatusOffline)
	require.True(t, ok)

	a.release()
	assert.Equal(t, StatusOffline, a.Status())

	cur, ok := a.tryAcquire()
	assert.False(t, ok)
	assert.Equal(t, StatusOffline, cur)
}

func TestNewAgent_Defaults(t *testing.T) {
	cfg := Config{ContextWindow: 4, DefaultModel: "m-default", DefaultMaxTokens: 256}

	a := newAgent(Definition{ID: "analyst", Offline: true}, cfg)
	assert.Equal(t, "analyst", a.Name)
	assert.Equal(t, "m-default", a.Model)
	assert.Equal(t, 256, a.MaxTokens)
	assert.Equal(t, StatusOffline, a.Status())
	assert.Equal(t, 4, a.Window().Capacity())

	b := newAgent(Definition{ID: "b", Name: "Bee", Model: "m-own", MaxTokens: 99}, cfg)
	assert.Equal(t, "Bee", b.Name)
	assert.Equal(t, "m-own", b.Model)
	assert.Equal(t, 99, b.MaxTokens)
	assert.Equal(t, StatusIdle, b.Status())
}
