// Package logging builds the zap loggers used across beaverlog.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given environment ("production", "development"
// or "test") at the given level ("debug", "info", "warn", "error").
func New(environment, level string) (*zap.Logger, error) {
	cfg, err := zapConfig(environment)
	if err != nil {
		return nil, err
	}

	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return cfg.Build(zap.AddCaller())
}

func zapConfig(environment string) (zap.Config, error) {
	switch environment {
	case "production", "test":
		return zap.NewProductionConfig(), nil
	case "development":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg, nil
	default:
		return zap.Config{}, fmt.Errorf("unsupported environment: %s", environment)
	}
}
