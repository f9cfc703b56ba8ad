// Package logging builds the zap loggers used by the newsroom commands.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a colored console logger in development and a JSON logger
// otherwise. Both use "ts" as the time key.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("newsroom"), nil
}

// Install builds a logger, makes it the zap global and returns a function
// that restores the previous global and flushes the logger.
func Install(development bool) (*zap.Logger, func(), error) {
	logger, err := New(development)
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(logger)
	return logger, func() {
		_ = logger.Sync() // stderr sync fails on some terminals
		restore()
	}, nil
}
