package notify

import (
	"context"

	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*MultiNotifier)(nil)

// MultiNotifier fans a terminal event out to every configured sink.
// A failing sink is logged and does not block the others.
type MultiNotifier struct {
	sinks []adapter.Notifier
	log   zerolog.Logger
}

func NewMultiNotifier(log zerolog.Logger, sinks ...adapter.Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks, log: log.With().Str("component", "notifier").Logger()}
}

func (m *MultiNotifier) NotifyTerminal(ctx context.Context, ev adapter.TerminalEvent) error {
	for _, s := range m.sinks {
		if err := s.NotifyTerminal(ctx, ev); err != nil {
			m.log.Warn().Err(err).Str("job_id", ev.JobID).Msg("terminal notification sink failed")
		}
	}
	return nil
}
