package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	if got := parseLevel(" DEBUG "); got != zapcore.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}
	if got := parseLevel("nonsense"); got != zapcore.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}

func TestNew(t *testing.T) {
	log, err := New("warn")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be disabled at warn level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected a logger")
	}
}
