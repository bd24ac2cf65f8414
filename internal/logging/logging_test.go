package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewAcceptsSupportedEnvironments(t *testing.T) {
	environments := []string{"production", "development", "test"}
	for _, env := range environments {
		logger, err := New(env, "info")
		if err != nil {
			t.Fatalf("expected no error for environment %q, got %v", env, err)
		}
		_ = logger.Sync()
	}
}

func TestNewRejectsUnknownEnvironment(t *testing.T) {
	if _, err := New("staging", "info"); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestNewRejectsInvalidLogLevel(t *testing.T) {
	_, err := New("production", "invalid")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestNewHonoursLevel(t *testing.T) {
	logger, err := New("production", "warn")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}
