package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogAdapterEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlog(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	log.With(String("component", "parser")).Warn("bad xref entry",
		Int("object", 12),
		Int64("offset", 9001),
		Error("cause", errors.New("short read")),
	)

	out := buf.String()
	for _, want := range []string{"bad xref entry", "component=parser", "object=12", "offset=9001", "short read"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	var log Logger = NopLogger{}
	log = log.With(String("k", "v"))
	log.Debug("x")
	log.Info("x")
	log.Warn("x")
	log.Error("x", Error("err", nil))
}
