package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/pkg/retry"
	"eventsphere/pkg/tracing"
	"eventsphere/pkg/validation"

	"go.uber.org/zap"
)

// Drop reasons reported to metrics.
const (
	dropMalformed  = "malformed"
	dropInvalid    = "invalid"
	dropBadRoom    = "bad_room"
	dropNoRoom     = "no_target_room"
	dropEmitFailed = "emit_failed"
)

// RoomEmitter is the part of SessionManager the bridge needs.
type RoomEmitter interface {
	EmitToRoom(room domain.RoomName, event string, payload any) (int, error)
}

// BusBridge connects the message bus to local sessions. Inbound messages
// fan out through the emitter; Publish sends to every process.
type BusBridge struct {
	bus     ports.MessageBus
	emitter RoomEmitter
	retry   retry.Config
	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewBusBridge(bus ports.MessageBus, emitter RoomEmitter, retryCfg retry.Config, metrics ports.Metrics, logger *zap.SugaredLogger) *BusBridge {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &BusBridge{
		bus:     bus,
		emitter: emitter,
		retry:   retryCfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Start subscribes to every known channel and blocks until ctx is done.
func (b *BusBridge) Start(ctx context.Context) error {
	channels := domain.Channels()
	b.logger.Infow("bus bridge subscribing", "channels", channels)

	err := b.bus.Subscribe(ctx, channels, b.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bus subscription ended: %w", err)
	}
	return nil
}

// Publish validates msg and publishes it with bounded backoff.
func (b *BusBridge) Publish(ctx context.Context, msg domain.ChannelMessage) error {
	if !msg.Channel.Known() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownChannel, msg.Channel)
	}
	if err := validation.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if msg.TargetRoom != "" {
		if _, err := domain.ParseRoom(string(msg.TargetRoom)); err != nil {
			return err
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal channel message: %w", err)
	}

	ctx, span := tracing.TraceBusMessage(ctx, "publish", string(msg.Channel), msg.EventType)
	defer span.End()

	err = retry.Do(ctx, b.retry, func(ctx context.Context) error {
		return b.bus.Publish(ctx, msg.Channel, data)
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		b.metrics.BusPublishFailed(msg.Channel)
		b.logger.Errorw("failed to publish channel message",
			"channel", msg.Channel,
			"event_type", msg.EventType,
			"error", err,
		)
		return fmt.Errorf("publish to %s: %w", msg.Channel, err)
	}
	return nil
}

func (b *BusBridge) handle(channel domain.Channel, data []byte) {
	b.metrics.BusMessageReceived(channel)

	var msg domain.ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.drop(channel, dropMalformed, "malformed channel message", "error", err)
		return
	}
	// The transport channel is authoritative; the body field is informational.
	msg.Channel = channel
	if err := validation.Struct(msg); err != nil {
		b.drop(channel, dropInvalid, "invalid channel message", "error", err)
		return
	}

	_, span := tracing.TraceBusMessage(context.Background(), "receive", string(channel), msg.EventType)
	defer span.End()

	room, ok := b.route(channel, msg)
	if !ok {
		return
	}
	span.SetAttributes(tracing.RoomKey.String(string(room)))

	delivered, err := b.emitter.EmitToRoom(room, msg.EventType, msg.Payload)
	if err != nil {
		b.drop(channel, dropEmitFailed, "failed to emit channel message",
			"room", room, "event_type", msg.EventType, "error", err)
		return
	}

	b.logger.Debugw("channel message delivered",
		"channel", channel,
		"event_type", msg.EventType,
		"room", room,
		"recipients", delivered,
	)
}

// route picks the target room: the explicit one when present, otherwise the
// default room of the channel the message arrived on.
func (b *BusBridge) route(channel domain.Channel, msg domain.ChannelMessage) (domain.RoomName, bool) {
	if msg.TargetRoom != "" {
		room, err := domain.ParseRoom(string(msg.TargetRoom))
		if err != nil {
			b.drop(channel, dropBadRoom, "channel message has an invalid target room",
				"target_room", msg.TargetRoom, "event_type", msg.EventType)
			return "", false
		}
		return room, true
	}

	room, ok := channel.DefaultRoom()
	if !ok {
		b.drop(channel, dropNoRoom, "channel message has no target room",
			"event_type", msg.EventType)
		return "", false
	}
	return room, true
}

func (b *BusBridge) drop(channel domain.Channel, reason, message string, kv ...any) {
	b.metrics.BusMessageDropped(channel, reason)
	b.logger.Warnw(message, append([]any{"channel", channel, "reason", reason}, kv...)...)
}
