package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerKeyValues(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "Aligner", slog.LevelInfo).With("document", "1620-1")

	log.Info("aligned", "accepted", 12)
	out := buf.String()
	for _, want := range []string{"component=Aligner", "document=1620-1", "accepted=12", "msg=aligned"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q is missing %q", out, want)
		}
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "Aligner", slog.LevelWarn)

	log.Debug("noise")
	log.Info("noise")
	if buf.Len() != 0 {
		t.Errorf("expected nothing below warn, got %q", buf.String())
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}
