package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsGlobalLevel(t *testing.T) {
	scenarios := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "trace", level: "trace", want: zerolog.TraceLevel},
		{name: "debug", level: "debug", want: zerolog.DebugLevel},
		{name: "info", level: "info", want: zerolog.InfoLevel},
		{name: "warn", level: "warn", want: zerolog.WarnLevel},
		{name: "error", level: "error", want: zerolog.ErrorLevel},
		{name: "unknown falls back to info", level: "shout", want: zerolog.InfoLevel},
		{name: "empty falls back to info", level: "", want: zerolog.InfoLevel},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			New(Config{Level: sc.level})
			assert.Equal(t, sc.want, zerolog.GlobalLevel())
		})
	}
}

func TestNewEmitsStructuredRecords(t *testing.T) {
	log := New(Config{Level: "debug"})

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Str("component", "kinetic").Msg("estimator ready")

	out := buf.String()
	assert.Contains(t, out, `"component":"kinetic"`)
	assert.Contains(t, out, "estimator ready")
	assert.Contains(t, out, `"time":`, "records carry a timestamp")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	log := New(Config{Level: "warn"})

	var buf bytes.Buffer
	log = log.Output(&buf)

	log.Info().Msg("too quiet")
	assert.NotContains(t, buf.String(), "too quiet")

	log.Warn().Msg("loud enough")
	assert.Contains(t, buf.String(), "loud enough")
}

func TestNewPrettyOutput(t *testing.T) {
	log := New(Config{Level: "info", Pretty: true})

	// The console writer is still a writer; records must come through.
	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("console record")
	assert.Contains(t, buf.String(), "console record")
}

func TestTimestampFormat(t *testing.T) {
	New(Config{Level: "info"})
	assert.Equal(t, "2006-01-02T15:04:05Z07:00", zerolog.TimeFieldFormat)
}

func TestSetGlobalLogger(t *testing.T) {
	log := New(Config{Level: "info"})

	var buf bytes.Buffer
	log = log.Output(&buf)
	SetGlobalLogger(log)

	log.Info().Msg("installed")
	require.Contains(t, buf.String(), "installed")

	SetGlobalLogger(New(Config{Level: "info"}))
}
