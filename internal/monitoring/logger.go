package monitoring

import "log"

// Logf is the package-level diagnostic logger, log.Printf unless
// replaced through SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the package logger. A nil f mutes logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
