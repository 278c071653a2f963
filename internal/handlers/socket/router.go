package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	"eventsphere/internal/core/services"
	apperrors "eventsphere/pkg/errors"
	"eventsphere/pkg/logger"
	"eventsphere/pkg/tracing"
	"eventsphere/pkg/validation"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// HandlerFunc answers one client event. A returned error is sent to the
// calling session as an error event and to nobody else.
type HandlerFunc func(ctx context.Context, s *services.Session, data json.RawMessage) error

// Router dispatches client frames by event name. Frames of one session are
// dispatched sequentially by its read pump.
type Router struct {
	handlers map[string]HandlerFunc
	sessions *services.SessionManager
	timeout  time.Duration
	metrics  ports.Metrics
	log      *logger.ContextLogger
}

func NewRouter(sessions *services.SessionManager, timeout time.Duration, metrics ports.Metrics, log *zap.Logger) *Router {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		sessions: sessions,
		timeout:  timeout,
		metrics:  metrics,
		log:      logger.NewContextLogger(log),
	}
}

// Handle registers h for event, replacing any earlier registration.
func (r *Router) Handle(event string, h HandlerFunc) {
	r.handlers[event] = h
}

// Events lists the registered event names in sorted order.
func (r *Router) Events() []string {
	events := lo.Keys(r.handlers)
	slices.Sort(events)
	return events
}

// Dispatch decodes one raw client frame and runs its handler.
func (r *Router) Dispatch(s *services.Session, raw []byte) {
	start := time.Now()

	var frame domain.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.reply(s, "", start, apperrors.InvalidRequest("frame must be a JSON object with an event name"))
		return
	}
	if err := validation.Struct(frame); err != nil {
		r.reply(s, "", start, apperrors.InvalidRequest(err.Error()))
		return
	}

	h, ok := r.handlers[frame.Event]
	if !ok {
		r.reply(s, "unknown", start, apperrors.UnknownEvent(frame.Event).WithData(map[string][]string{
			"events": r.Events(),
		}))
		return
	}

	identity := s.Identity()
	ctx, span := tracing.TraceSocketEvent(s.Context(), frame.Event, s.ID(), string(identity.ID), string(identity.Role))
	defer span.End()
	ctx = logger.WithSession(ctx, s.ID(), string(identity.ID))
	ctx = logger.WithTraceID(ctx, tracing.TraceID(ctx))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.call(ctx, h, s, frame.Data)
	if err != nil {
		tracing.RecordError(ctx, err)
		if !apperrors.IsSignal(err) {
			r.log.LogError(ctx, err, "socket handler failed", zap.String("event", frame.Event))
		}
	}
	r.reply(s, frame.Event, start, err)
}

// call runs h and turns a panic into a SOCKET_ERROR for the caller, keeping
// the connection open.
func (r *Router) call(ctx context.Context, h HandlerFunc, s *services.Session, data json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.LogError(ctx, fmt.Errorf("panic: %v", p), "socket handler panicked",
				zap.Stack("stack"),
			)
			err = apperrors.SocketError(fmt.Errorf("handler panic: %v", p))
		}
	}()
	return h(ctx, s, data)
}

func (r *Router) reply(s *services.Session, event string, start time.Time, err error) {
	code := "OK"
	if err != nil {
		sig := apperrors.From(err)
		code = string(sig.Code)
		if emitErr := r.sessions.EmitError(s, sig); emitErr != nil {
			r.log.Sugar(s.Context()).Debugw("could not deliver error event",
				"session_id", s.ID(),
				"code", sig.Code,
				"error", emitErr,
			)
		}
	}
	if event == "" {
		event = "invalid"
	}
	r.metrics.RequestHandled(event, code, time.Since(start).Seconds())
}

// decode unmarshals data into v and validates it. Failures become
// INVALID_REQUEST.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.InvalidRequest("malformed event data")
	}
	if err := validation.Struct(v); err != nil {
		return apperrors.InvalidRequest(err.Error())
	}
	return nil
}
