package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		verbosity int
		want      zap.AtomicLevel
	}{
		{1, zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{2, zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{3, zap.NewAtomicLevelAt(zap.WarnLevel)},
		{4, zap.NewAtomicLevelAt(zap.InfoLevel)},
		{5, zap.NewAtomicLevelAt(zap.InfoLevel)},
		{6, zap.NewAtomicLevelAt(zap.DebugLevel)},
		{7, zap.NewAtomicLevelAt(zap.DebugLevel)},
	}

	for _, c := range cases {
		got := levelFor(c.verbosity)
		if got != c.want.Level() {
			t.Errorf("levelFor(%d) = %v, want %v", c.verbosity, got, c.want.Level())
		}
	}
}

func TestNewBuildsLogger(t *testing.T) {
	for v := 1; v <= 7; v++ {
		log, err := New(v)
		if err != nil {
			t.Fatalf("New(%d) returned error: %v", v, err)
		}
		if log == nil {
			t.Fatalf("New(%d) returned nil logger", v)
		}
	}
}
