package reliability

import (
	"context"
	"errors"
	"fmt"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/pkg/circuitbreaker"
	"eventsphere/pkg/retry"

	"go.uber.org/zap"
)

// BreakerBus guards Publish with a circuit breaker. While the circuit is
// open publishes fail with circuitbreaker.ErrOpen. Subscribe and Close pass
// through.
type BreakerBus struct {
	ports.MessageBus
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewBreakerBus(bus ports.MessageBus, cfg circuitbreaker.Config, logger *zap.SugaredLogger) *BreakerBus {
	b := &BreakerBus{
		MessageBus: bus,
		breaker:    circuitbreaker.New(cfg),
		logger:     logger,
	}
	b.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		if to == circuitbreaker.StateOpen {
			logger.Warnw("bus publish circuit opened", "from", from.String())
			return
		}
		logger.Infow("bus publish circuit state changed", "from", from.String(), "to", to.String())
	})
	return b
}

func (b *BreakerBus) Publish(ctx context.Context, channel domain.Channel, data []byte) error {
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.MessageBus.Publish(ctx, channel, data)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return err
}

func (b *BreakerBus) State() circuitbreaker.State {
	return b.breaker.State()
}

// HealthCheck reports an open circuit as unhealthy.
func (b *BreakerBus) HealthCheck(context.Context) error {
	if state := b.breaker.State(); state == circuitbreaker.StateOpen {
		return fmt.Errorf("bus publish %w", circuitbreaker.ErrOpen)
	}
	return nil
}

// SkipOpenCircuit stops retrying once the breaker has opened.
func SkipOpenCircuit(cfg retry.Config) retry.Config {
	next := cfg.Retryable
	cfg.Retryable = func(err error) bool {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return false
		}
		return next == nil || next(err)
	}
	return cfg
}
