package app

import (
	"log/slog"

	"parcel/internal/events"
	"parcel/internal/logging"
)

// newEventLogger mirrors bus traffic into the debug log.
func newEventLogger(logger *slog.Logger) events.Handler {
	logger = logging.NewComponentLogger(logger, "events")
	return func(evt events.Event) {
		attrs := []any{
			logging.Uint64("seq", evt.Sequence),
			logging.String(logging.FieldEventType, string(evt.Type)),
			logging.String("subject", evt.Subject),
		}
		if evt.BatchID != "" {
			attrs = append(attrs, logging.String(logging.FieldBatchID, evt.BatchID))
		}
		if evt.Progress > 0 {
			attrs = append(attrs, logging.Int("progress", evt.Progress))
		}
		if evt.Error != "" {
			attrs = append(attrs, logging.String("error_message", evt.Error))
		}
		logger.Debug("event published", attrs...)
	}
}
