package logging

import (
	"testing"

	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog"
)

type recordingLogdy struct {
	fields []logdy.Fields
	lines  []string
}

func (r *recordingLogdy) Config() *logdy.Config { return &logdy.Config{} }

func (r *recordingLogdy) Log(fields logdy.Fields) error {
	r.fields = append(r.fields, fields)
	return nil
}

func (r *recordingLogdy) LogString(message string) error {
	r.lines = append(r.lines, message)
	return nil
}

func TestLogdySinkForwardsStructuredEvents(t *testing.T) {
	rec := &recordingLogdy{}
	logger := zerolog.New(logdySink{ld: rec})
	camLogger := WithCamera(logger, "cam1")
	camLogger.Warn().Str("service", "camera").Msg("Frame timeout")

	if len(rec.fields) != 1 || len(rec.lines) != 0 {
		t.Fatalf("fields = %d, lines = %d, want one structured event", len(rec.fields), len(rec.lines))
	}
	got := rec.fields[0]
	if got["camera_id"] != "cam1" || got["level"] != "warn" || got["message"] != "Frame timeout" {
		t.Fatalf("event = %v", got)
	}
}

func TestLogdySinkPlainText(t *testing.T) {
	rec := &recordingLogdy{}
	n, err := logdySink{ld: rec}.Write([]byte("not json\n"))
	if err != nil || n != 9 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if len(rec.lines) != 1 || rec.lines[0] != "not json" {
		t.Fatalf("lines = %q", rec.lines)
	}
}
