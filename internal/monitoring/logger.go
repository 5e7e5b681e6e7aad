// Package monitoring holds the process-wide diagnostic loggers.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs per-packet and per-candidate detail. It is a no-op until
// SetVerbose(true) is called.
var Debugf func(format string, v ...interface{}) = nop

func nop(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil mutes Logf and Debugf.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = nop
		Debugf = nop
		return
	}
	Logf = f
}

// SetVerbose routes Debugf through Logf when on is true.
func SetVerbose(on bool) {
	if !on {
		Debugf = nop
		return
	}
	Debugf = func(format string, v ...interface{}) {
		Logf("[debug] "+format, v...)
	}
}
