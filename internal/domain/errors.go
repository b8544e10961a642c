package domain

import "errors"

// Sentinel errors used throughout the application.
// Callers compare with errors.Is; wrapping adds context at each layer.
var (
	ErrMalformedEvent     = errors.New("malformed task event")
	ErrMissingTaskID      = errors.New("task event has no task_id")
	ErrBrokerUnavailable  = errors.New("broker unavailable: connect attempts exhausted")
	ErrInvalidConnString  = errors.New("invalid store connection string")
	ErrConsumerNotRunning = errors.New("consumer is not running")
	ErrDeliveriesClosed   = errors.New("broker closed the delivery stream")
)
