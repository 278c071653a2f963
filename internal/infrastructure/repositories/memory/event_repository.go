package memory

import (
	"context"
	"sync"

	"eventsphere/internal/core/domain"
)

type MemoryEventRepository struct {
	events map[domain.EventID]domain.EventInfo
	mu     sync.RWMutex
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events: make(map[domain.EventID]domain.EventInfo),
	}
}

// Put adds or replaces an event.
func (r *MemoryEventRepository) Put(event domain.EventInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID] = event
}

func (r *MemoryEventRepository) Delete(id domain.EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
}

func (r *MemoryEventRepository) GetEvent(ctx context.Context, id domain.EventID) (*domain.EventInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, exists := r.events[id]
	if !exists {
		return nil, domain.ErrEventNotFound
	}
	return &event, nil
}
