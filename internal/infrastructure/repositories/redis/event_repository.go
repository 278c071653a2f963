package redis

import (
	"context"
	"fmt"
	"strings"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type eventRecord struct {
	OrganizerID string `redis:"organizer_id"`
	Status      string `redis:"status"`
}

type RedisEventRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisEventRepository(client *redis.Client) ports.EventRepository {
	return &RedisEventRepository{
		client: client,
		prefix: "eb:event:",
	}
}

func (r *RedisEventRepository) eventKey(id domain.EventID) string {
	return r.prefix + string(id)
}

func (r *RedisEventRepository) GetEvent(ctx context.Context, id domain.EventID) (*domain.EventInfo, error) {
	cmd := r.client.HGetAll(ctx, r.eventKey(id))
	fields, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrEventNotFound
	}

	var rec eventRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
	}

	return &domain.EventInfo{
		ID:          id,
		OrganizerID: domain.UserID(rec.OrganizerID),
		Status:      domain.EventStatus(strings.ToUpper(rec.Status)),
	}, nil
}
