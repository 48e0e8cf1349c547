package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/progress"
)

// LogSink emits one structured log line per progress event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Skips are logged at debug level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("run started", fields...)
		case progress.StageRunDone:
			fields = append(fields, zap.Int64("pages", evt.Pages), zap.Duration("dur", evt.Dur))
			if evt.Failed() {
				s.logger.Warn("run failed", append(fields, zap.String("note", evt.Note))...)
				continue
			}
			s.logger.Info("run finished", fields...)
		case progress.StagePageCrawled:
			s.logger.Info("page crawled", append(fields,
				zap.String("url", evt.URL),
				zap.String("site", evt.Site),
				zap.Int("depth", evt.Depth),
				zap.String("status", string(evt.Status)),
				zap.Int("links", evt.Links),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StagePageSkipped:
			s.logger.Debug("page skipped", append(fields,
				zap.String("url", evt.URL),
				zap.String("note", evt.Note),
			)...)
		case progress.StagePageError:
			s.logger.Warn("page error", append(fields,
				zap.String("url", evt.URL),
				zap.String("note", evt.Note),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
