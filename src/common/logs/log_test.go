package logs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"bogus", log.InfoLevel},
		{"", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("hidden message")
	l.Warn("Did not find build log", "path", "/tmp/x.build")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info message should be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "Did not find build log") || !strings.Contains(out, "/tmp/x.build") {
		t.Errorf("expected warning with key/value, got %q", out)
	}
	if l.Output() != OutputStderr {
		t.Errorf("got output %q, want %q", l.Output(), OutputStderr)
	}
}

func TestNew_StderrOutput(t *testing.T) {
	l := New(Config{Output: OutputStderr, Level: "debug"})
	if l.Output() != OutputStderr {
		t.Errorf("got output %q, want %q", l.Output(), OutputStderr)
	}
	if l.GetLevel() != log.DebugLevel {
		t.Errorf("got level %v, want debug", l.GetLevel())
	}
}
