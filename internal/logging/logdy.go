package logging

import (
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog/log"

	"sentinel-worker-go/internal/config"
)

// logdySink hands each zerolog event to the viewer as structured fields, so
// camera_id and service are filterable columns. Lines that are not JSON go
// through as plain text.
type logdySink struct {
	ld logdy.Logdy
}

func (s logdySink) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	var fields logdy.Fields
	if err := json.Unmarshal([]byte(line), &fields); err != nil || fields == nil {
		return len(p), s.ld.LogString(line)
	}
	return len(p), s.ld.Log(fields)
}

// StartLogdy serves the embedded viewer on LOGDY_HOST:LOGDY_PORT and returns
// the writer the global logger tees into
func StartLogdy(cfg *config.Config) io.Writer {
	port := strconv.Itoa(cfg.LogdyPort)
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:     cfg.LogdyHost,
		ServerPort:   port,
		BulkWindowMs: 100,
		LogLevel:     logdy.LOG_LEVEL_SILENT,
	}, nil)

	log.Info().Str("url", "http://"+net.JoinHostPort(cfg.LogdyHost, port)).Msg("Logdy viewer listening")
	return logdySink{ld: ld}
}
