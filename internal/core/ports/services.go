package ports

import (
	"context"

	"eventsphere/internal/core/domain"
)

// MessageBus is the cross-process broadcast transport.
type MessageBus interface {
	Publish(ctx context.Context, channel domain.Channel, data []byte) error
	// Subscribe delivers every message on channels to handler and blocks
	// until ctx is done.
	Subscribe(ctx context.Context, channels []domain.Channel, handler func(channel domain.Channel, data []byte)) error
	Close() error
}

// Authenticator turns handshake data into a verified identity.
// Errors are *errors.Signal with AUTH_REQUIRED or AUTH_FAILED.
type Authenticator interface {
	Authenticate(ctx context.Context, handshake domain.Handshake) (domain.Identity, error)
}

// Publisher sends a channel message to every process.
type Publisher interface {
	Publish(ctx context.Context, msg domain.ChannelMessage) error
}

// Metrics receives fabric counters. monitoring.PrometheusCollector implements it.
type Metrics interface {
	SessionOpened(role domain.Role)
	SessionClosed(role domain.Role)
	HandshakeRejected(code string)
	FrameDropped(event string)
	RoomDelivered(scope string, recipients int)
	BusMessageReceived(channel domain.Channel)
	BusMessageDropped(channel domain.Channel, reason string)
	BusPublishFailed(channel domain.Channel)
	RequestHandled(event, code string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SessionOpened(domain.Role)                {}
func (NopMetrics) SessionClosed(domain.Role)                {}
func (NopMetrics) HandshakeRejected(string)                 {}
func (NopMetrics) FrameDropped(string)                      {}
func (NopMetrics) RoomDelivered(string, int)                {}
func (NopMetrics) BusMessageReceived(domain.Channel)        {}
func (NopMetrics) BusMessageDropped(domain.Channel, string) {}
func (NopMetrics) BusPublishFailed(domain.Channel)          {}
func (NopMetrics) RequestHandled(string, string, float64)   {}
