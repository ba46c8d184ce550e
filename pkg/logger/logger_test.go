package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	l.Info().Str("run_id", "r1").Msg("run completed")
	l.Debug().Msg("hidden")

	out := buf.String()
	assert.Contains(t, out, `"message":"run completed"`)
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"service":"exposure"`)
	assert.NotContains(t, out, "hidden")
}

func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Pretty: true, Output: &buf})

	l.Debug().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name     string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLevel(tc.name))
		})
	}
}

func TestSetGlobalLogger(t *testing.T) {
	orig := log.Logger
	defer func() { log.Logger = orig }()

	var buf bytes.Buffer
	SetGlobalLogger(New(Config{Level: "info", Output: &buf}))
	log.Info().Msg("through global")
	assert.Contains(t, buf.String(), "through global")
}
