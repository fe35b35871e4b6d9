package db

import (
	"strings"
	"time"

	"github.com/kestrel-data/visionproof/internal/monitoring"
)

const busyMaxAttempts = 5

// isSQLiteBusy reports whether err is SQLite lock contention. The sqlite
// driver surfaces these as plain strings, so we match on them.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// retryOnBusy runs fn, retrying with exponential backoff while the
// database reports lock contention. Any other error fails immediately.
func retryOnBusy(op string, fn func() error) error {
	delay := 10 * time.Millisecond
	var err error
	for attempt := 1; attempt <= busyMaxAttempts; attempt++ {
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyMaxAttempts {
			monitoring.Logf("%s: database busy, retrying in %v (attempt %d/%d)", op, delay, attempt, busyMaxAttempts)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
