package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogAttempt logs the start of one scrape attempt
func LogAttempt(l Logger, username string, attempt, maxAttempts int) {
	l.InfoWithFields("Scrape attempt started", map[string]interface{}{
		"username":     username,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
	})
}

// LogAttemptFailure logs a failed attempt with its classified cause
func LogAttemptFailure(l Logger, username string, attempt int, err error) {
	l.WithError(err).WarnWithFields("Scrape attempt failed", map[string]interface{}{
		"username": username,
		"attempt":  attempt,
	})
}

// LogBackoff logs the pause taken between attempts
func LogBackoff(l Logger, attempt int, delay time.Duration) {
	l.DebugWithFields("Backing off before next attempt", map[string]interface{}{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})
}

// LogItem logs one processed candidate
func LogItem(l Logger, externalID, action string, captionLen int) {
	l.DebugWithFields("Candidate processed", map[string]interface{}{
		"external_id": externalID,
		"action":      action,
		"caption_len": captionLen,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(string) {}
func (nopLogger) Fatal(string) {}
func (n nopLogger) WithField(string, interface{}) Logger { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger { return n }
func (n nopLogger) WithError(error) Logger { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (nopLogger) InfoWithFields(string, map[string]interface{}) {}
func (nopLogger) WarnWithFields(string, map[string]interface{}) {}
func (nopLogger) ErrorWithFields(string, map[string]interface{}) {}
func (nopLogger) FatalWithFields(string, map[string]interface{}) {}
func (nopLogger) GetZerolog() *zerolog.Logger { return nil }
