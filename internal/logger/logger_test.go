package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_Levels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		Init(tt.level, "json")
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("Init(%q): level = %v, want %v", tt.level, got, tt.want)
		}
	}
}
