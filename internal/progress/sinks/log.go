package sinks

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/progress"
)

// LogSink writes one structured line per snapshot.
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

// Report logs the snapshot.
func (s *LogSink) Report(_ context.Context, snap progress.Snapshot) error {
	msg := "Progress"
	if snap.Final {
		msg = "Progress final"
	}
	s.logger.Info(msg,
		zap.String("stage", snap.Stage),
		zap.Int("total", snap.Total),
		zap.Int("done", snap.Done),
		zap.Int("failed", snap.Failed),
		zap.String("percent", formatPercent(snap.Percent())),
		zap.Float64("per_sec", snap.Rate()),
		zap.Duration("elapsed", snap.Elapsed),
	)
	return nil
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
