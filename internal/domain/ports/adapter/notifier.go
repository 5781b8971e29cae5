package adapter

import (
	"context"
	"time"
)

// TerminalEvent is emitted exactly once per job reaching a terminal status.
type TerminalEvent struct {
	JobID          string    `json:"jobId"`
	Status         string    `json:"status"`
	TotalItems     int       `json:"totalItems"`
	CompletedItems int       `json:"completedItems"`
	FailedItems    int       `json:"failedItems"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notifier delivers terminal-state events to an external dispatcher.
// Delivery failures are logged by callers, never propagated into job state.
type Notifier interface {
	NotifyTerminal(ctx context.Context, ev TerminalEvent) error
}
