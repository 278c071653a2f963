package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"eventsphere/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ErrBusClosed is returned once Close has been called.
var ErrBusClosed = errors.New("message bus closed")

// RedisBus carries channel messages over Redis pub/sub. Every process,
// including the publisher, receives every message. go-redis reconnects
// the subscription on its own after connection loss.
type RedisBus struct {
	client *redis.Client
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pubsubs []*redis.PubSub
	closed  bool
}

func NewRedisBus(client *redis.Client, logger *zap.SugaredLogger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger,
	}
}

// Publish sends data to channel.
func (b *RedisBus) Publish(ctx context.Context, channel domain.Channel, data []byte) error {
	if b.isClosed() {
		return ErrBusClosed
	}
	receivers, err := b.client.Publish(ctx, string(channel), data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	b.logger.Debugw("published channel message",
		"channel", channel,
		"bytes", len(data),
		"receivers", receivers,
	)
	return nil
}

// Subscribe delivers messages on channels to handler until ctx is done.
// It returns once the subscription is confirmed or fails.
func (b *RedisBus) Subscribe(ctx context.Context, channels []domain.Channel, handler func(domain.Channel, []byte)) error {
	names := lo.Map(channels, func(c domain.Channel, _ int) string { return string(c) })

	pubsub := b.client.Subscribe(ctx, names...)
	if err := b.track(pubsub); err != nil {
		_ = pubsub.Close()
		return err
	}
	defer b.untrack(pubsub)

	// Wait for the subscription confirmation so nothing published after
	// this point is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %v: %w", names, err)
	}
	b.logger.Infow("subscribed to channels", "channels", names)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				if b.isClosed() {
					return ErrBusClosed
				}
				return fmt.Errorf("subscription to %v closed", names)
			}
			handler(domain.Channel(msg.Channel), []byte(msg.Payload))
		}
	}
}

// Close ends every active subscription.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	pubsubs := b.pubsubs
	b.pubsubs = nil
	b.mu.Unlock()

	var errs []error
	for _, ps := range pubsubs {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *RedisBus) track(ps *redis.PubSub) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.pubsubs = append(b.pubsubs, ps)
	return nil
}

func (b *RedisBus) untrack(ps *redis.PubSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubsubs = lo.Without(b.pubsubs, ps)
}
