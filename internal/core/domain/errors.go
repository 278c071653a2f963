package domain

import "errors"

var (
	ErrInvalidRoom      = errors.New("invalid room name")
	ErrSessionClosed    = errors.New("session closed")
	ErrEventNotFound    = errors.New("event not found")
	ErrStatsUnavailable = errors.New("stats unavailable")
	ErrMalformedMessage = errors.New("malformed channel message")
	ErrUnknownChannel   = errors.New("unknown channel")
)

var ErrOutboundFull = errors.New("outbound queue full")
