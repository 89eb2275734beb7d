package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the printf-style signature shared by every logger in the
// simulator.
type LogFunc func(format string, v ...interface{})

var current atomic.Pointer[LogFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic line through the package logger. It defaults to
// log.Printf and is safe to call from any goroutine.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger,
// which is how tests mute device and robot goroutines.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(&f)
}

// Prefixed returns a logger that prepends "[prefix] " to every line and
// forwards to whatever package logger is installed at call time.
func Prefixed(prefix string) LogFunc {
	tag := "[" + prefix + "] "
	return func(format string, v ...interface{}) {
		Logf(tag+format, v...)
	}
}
