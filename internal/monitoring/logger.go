// Package monitoring holds the diagnostic logger shared by the simulator's
// library packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem with user input, e.g. a bad config value
// that was replaced by a default.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}

// InternalErrorf logs a broken invariant that the caller has degraded to a
// no-op instead of failing the simulation loop.
func InternalErrorf(format string, v ...interface{}) {
	Logf("internal error: "+format, v...)
}
