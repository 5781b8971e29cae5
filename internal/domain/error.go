package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Batch lifecycle errors
	ErrJobTerminal       = errors.New("job already reached a terminal status")
	ErrJobNotCancellable = errors.New("job can no longer be cancelled")
	ErrJobActive         = errors.New("job is still active")
	ErrEmptyFile         = errors.New("audio file is empty")
	ErrFileTooLarge      = errors.New("audio file exceeds the size limit")
	ErrNoResults         = errors.New("job has no completed results")

	// Poller errors
	ErrLockNotAcquired = errors.New("could not acquire lock")

	// Chunk processing errors
	ErrCheckpointCorrupt = errors.New("resume checkpoint failed validation")
	ErrItemNotRetryable  = errors.New("item is not in a retryable state")
)
