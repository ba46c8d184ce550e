// Package utils holds small helpers shared by the engine and its services.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowOperation is the duration above which a timed operation is logged at Warn.
const slowOperation = 30 * time.Second

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer for operation name.
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// Stop logs and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	return t.StopWith(nil)
}

// StopWith logs the elapsed duration together with fields.
func (t *Timer) StopWith(fields map[string]any) time.Duration {
	duration := time.Since(t.start)

	event := t.log.Debug()
	if duration > slowOperation {
		event = t.log.Warn()
	}
	event = event.
		Str("operation", t.name).
		Dur("duration_ms", duration)
	if len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msg("Performance measurement")

	return duration
}

// MeasureDBQuery returns a func that logs the duration of a database query
// together with the rows it touched.
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rows int64) {
	start := time.Now()

	return func(rows int64) {
		duration := time.Since(start)
		event := log.Debug()
		if duration > 5*time.Second {
			event = log.Warn()
		}
		event.
			Str("query", queryName).
			Dur("duration_ms", duration).
			Int64("rows", rows).
			Msg("Database query completed")
	}
}
