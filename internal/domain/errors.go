package domain

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrObservationLength  = errors.New("observation length mismatch")
	ErrCloseNotConfirmed  = errors.New("close leg not confirmed by venue")
	ErrNoPrice            = errors.New("no valid price")
	ErrEpisodeNotStarted  = errors.New("episode not reset")
	ErrInsufficientCandle = errors.New("not enough candles")
)
