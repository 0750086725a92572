package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrMissingAmount      = errors.New("missing amount")
	ErrEmptyBatch         = errors.New("input batch is empty")
	ErrContextDone        = errors.New("context cancelled")
	// ErrLockHeld signals that another process is already running the
	// pipeline for the same resource.
	ErrLockHeld = errors.New("lock already held")
	// ErrRunInProgress is returned when a new run is requested while one is
	// still executing.
	ErrRunInProgress = errors.New("a run is already in progress")
)
