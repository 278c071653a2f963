package distributed

import (
	"context"
	"sync"

	"eventsphere/internal/core/domain"

	"github.com/samber/lo"
)

type memorySubscriber struct {
	channels map[domain.Channel]struct{}
	handler  func(domain.Channel, []byte)
}

// MemoryBus is an in-process bus for single node deployments and tests.
// Publish delivers synchronously to every matching subscriber.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*memorySubscriber
	nextID int
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*memorySubscriber)}
}

func (b *MemoryBus) Publish(_ context.Context, channel domain.Channel, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := lo.Filter(lo.Values(b.subs), func(s *memorySubscriber, _ int) bool {
		_, ok := s.channels[channel]
		return ok
	})
	b.mu.RUnlock()

	for _, s := range subs {
		payload := make([]byte, len(data))
		copy(payload, data)
		s.handler(channel, payload)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels []domain.Channel, handler func(domain.Channel, []byte)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &memorySubscriber{
		channels: lo.SliceToMap(channels, func(c domain.Channel) (domain.Channel, struct{}) {
			return c, struct{}{}
		}),
		handler: handler,
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	<-ctx.Done()
	return ctx.Err()
}

// Subscribers returns the number of active subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
