package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventsphere/internal/core/domain"
	dlock "eventsphere/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	presencePrefix       = "eb:presence:"
	presenceInstancesKey = presencePrefix + "instances"
	sweepLockName        = "presence:sweep"
)

// SharedPresenceRegistry tracks live sessions of every instance in Redis.
// Each instance owns one hash of session id to user id whose TTL the
// heartbeat refreshes, so a crashed instance drops out after the TTL.
type SharedPresenceRegistry struct {
	client     *redis.Client
	locker     *dlock.Locker
	instanceID string
	ttl        time.Duration
	logger     *zap.SugaredLogger
}

func NewSharedPresenceRegistry(
	client *redis.Client,
	instanceID string,
	ttl time.Duration,
	logger *zap.SugaredLogger,
) *SharedPresenceRegistry {
	return &SharedPresenceRegistry{
		client:     client,
		locker:     dlock.NewLocker(client, "eb:lock:"),
		instanceID: instanceID,
		ttl:        ttl,
		logger:     logger,
	}
}

func (r *SharedPresenceRegistry) Register(ctx context.Context, sessionID string, identity domain.Identity) error {
	key := r.instanceKey(r.instanceID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sessionID, string(identity.ID))
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, presenceInstancesKey, r.instanceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register session %s: %w", sessionID, err)
	}
	return nil
}

func (r *SharedPresenceRegistry) Unregister(ctx context.Context, sessionID string) error {
	if err := r.client.HDel(ctx, r.instanceKey(r.instanceID), sessionID).Err(); err != nil {
		return fmt.Errorf("failed to unregister session %s: %w", sessionID, err)
	}
	return nil
}

// OnlineCount counts distinct users across every live instance.
func (r *SharedPresenceRegistry) OnlineCount(ctx context.Context) (int64, error) {
	instances, err := r.client.SMembers(ctx, presenceInstancesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list presence instances: %w", err)
	}
	if len(instances) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.StringSliceCmd, len(instances))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, instance := range instances {
			cmds[i] = pipe.HVals(ctx, r.instanceKey(instance))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read presence: %w", err)
	}

	users := lo.FlatMap(cmds, func(cmd *redis.StringSliceCmd, _ int) []string {
		return cmd.Val()
	})
	return int64(len(lo.Uniq(users))), nil
}

// Heartbeat keeps this instance's sessions alive and prunes instances
// whose hash has expired. Pruning runs on one instance at a time.
func (r *SharedPresenceRegistry) Heartbeat(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, r.instanceKey(r.instanceID), r.ttl)
		pipe.SAdd(ctx, presenceInstancesKey, r.instanceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return r.sweep(ctx)
}

func (r *SharedPresenceRegistry) sweep(ctx context.Context) error {
	lock := r.locker.New(sweepLockName, r.ttl)
	ok, err := lock.TryLock(ctx)
	if err != nil || !ok {
		return err
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil && !errors.Is(err, dlock.ErrNotHeld) {
			r.logger.Warnw("failed to release presence sweep lock", "error", err)
		}
	}()

	instances, err := r.client.SMembers(ctx, presenceInstancesKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list presence instances: %w", err)
	}

	var stale []any
	for _, instance := range instances {
		if instance == r.instanceID {
			continue
		}
		n, err := r.client.Exists(ctx, r.instanceKey(instance)).Result()
		if err != nil {
			return fmt.Errorf("failed to check instance %s: %w", instance, err)
		}
		if n == 0 {
			stale = append(stale, instance)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := r.client.SRem(ctx, presenceInstancesKey, stale...).Err(); err != nil {
		return fmt.Errorf("failed to prune presence instances: %w", err)
	}
	r.logger.Infow("pruned stale presence instances", "instances", stale)
	return nil
}

// Cleanup removes this instance's presence, used on graceful shutdown.
func (r *SharedPresenceRegistry) Cleanup(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.instanceKey(r.instanceID))
		pipe.SRem(ctx, presenceInstancesKey, r.instanceID)
		return nil
	})
	return err
}

func (r *SharedPresenceRegistry) instanceKey(instanceID string) string {
	return presencePrefix + instanceID
}

// MemoryPresenceRegistry is the single process fallback.
type MemoryPresenceRegistry struct {
	mu       sync.RWMutex
	sessions map[string]domain.UserID
}

func NewMemoryPresenceRegistry() *MemoryPresenceRegistry {
	return &MemoryPresenceRegistry{sessions: make(map[string]domain.UserID)}
}

func (r *MemoryPresenceRegistry) Register(_ context.Context, sessionID string, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = identity.ID
	return nil
}

func (r *MemoryPresenceRegistry) Unregister(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryPresenceRegistry) OnlineCount(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(lo.Uniq(lo.Values(r.sessions)))), nil
}

func (r *MemoryPresenceRegistry) Heartbeat(context.Context) error {
	return nil
}

func (r *MemoryPresenceRegistry) Cleanup(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]domain.UserID)
	return nil
}
