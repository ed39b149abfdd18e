package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyProcessed    = errors.New("signal already processed")
	ErrValidation          = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedEvent      = errors.New("malformed event payload")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrLockHeld            = errors.New("lock already held")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
