package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/infrastructure/distributed"
	"eventsphere/pkg/circuitbreaker"
	"eventsphere/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBroker = errors.New("broker down")

// flakyBus fails Publish while down is set.
type flakyBus struct {
	*distributed.MemoryBus

	mu    sync.Mutex
	down  bool
	calls int
}

func (f *flakyBus) Publish(ctx context.Context, channel domain.Channel, data []byte) error {
	f.mu.Lock()
	f.calls++
	down := f.down
	f.mu.Unlock()
	if down {
		return errBroker
	}
	return f.MemoryBus.Publish(ctx, channel, data)
}

func (f *flakyBus) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyBus) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newBreakerBus(cooldown time.Duration) (*BreakerBus, *flakyBus) {
	inner := &flakyBus{MemoryBus: distributed.NewMemoryBus()}
	bus := NewBreakerBus(inner, circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Cooldown:         cooldown,
	}, zap.NewNop().Sugar())
	return bus, inner
}

func TestBreakerBus_OpensAndFailsFast(t *testing.T) {
	bus, inner := newBreakerBus(time.Hour)
	ctx := context.Background()

	inner.setDown(true)
	assert.ErrorIs(t, bus.Publish(ctx, domain.ChannelAdmin, []byte("{}")), errBroker)
	assert.ErrorIs(t, bus.Publish(ctx, domain.ChannelAdmin, []byte("{}")), errBroker)
	require.Equal(t, circuitbreaker.StateOpen, bus.State())
	assert.Error(t, bus.HealthCheck(ctx))

	err := bus.Publish(ctx, domain.ChannelAdmin, []byte("{}"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.callCount())
}

func TestBreakerBus_RecoversAfterCooldown(t *testing.T) {
	bus, inner := newBreakerBus(20 * time.Millisecond)
	ctx := context.Background()

	inner.setDown(true)
	_ = bus.Publish(ctx, domain.ChannelAdmin, nil)
	_ = bus.Publish(ctx, domain.ChannelAdmin, nil)
	require.Equal(t, circuitbreaker.StateOpen, bus.State())

	inner.setDown(false)
	require.Eventually(t, func() bool {
		return bus.Publish(ctx, domain.ChannelAdmin, []byte("{}")) == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, circuitbreaker.StateClosed, bus.State())
	assert.NoError(t, bus.HealthCheck(ctx))
}

func TestBreakerBus_SubscribePassesThrough(t *testing.T) {
	bus, inner := newBreakerBus(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	go func() {
		_ = bus.Subscribe(ctx, []domain.Channel{domain.ChannelNotifications}, func(_ domain.Channel, data []byte) {
			got <- data
		})
	}()
	require.Eventually(t, func() bool { return inner.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelNotifications, []byte(`{"n":1}`)))
	select {
	case data := <-got:
		assert.JSONEq(t, `{"n":1}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSkipOpenCircuit(t *testing.T) {
	cfg := SkipOpenCircuit(retry.Config{MaxAttempts: 5, Multiplier: 1})

	attempts := 0
	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		attempts++
		return circuitbreaker.ErrOpen
	})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 1, attempts)

	assert.True(t, cfg.Retryable(errBroker))

	cfg = SkipOpenCircuit(retry.Config{Retryable: func(error) bool { return false }})
	assert.False(t, cfg.Retryable(errBroker))
}
