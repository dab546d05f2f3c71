package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
		enabled       zapcore.Level
		disabled      zapcore.Level
	}{
		{"info", "json", false, zapcore.InfoLevel, zapcore.DebugLevel},
		{"DEBUG", "text", false, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", "", false, zapcore.WarnLevel, zapcore.InfoLevel},
		{"loud", "json", true, 0, 0},
		{"info", "xml", true, 0, 0},
	}
	for _, tt := range tests {
		logger, err := New(tt.level, tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("New(%q, %q) does not log %s", tt.level, tt.format, tt.enabled)
		}
		if logger.Core().Enabled(tt.disabled) {
			t.Errorf("New(%q, %q) logs %s", tt.level, tt.format, tt.disabled)
		}
	}
}
