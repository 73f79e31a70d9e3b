// Package klog is the kernel core's thin structured-logging wrapper around
// zap, mirroring how the rest of the pack (grafana, kubernetes, sourcegraph)
// standardizes on go.uber.org/zap rather than the standard library's log
// package. Each subsystem (mem, sched, trap) builds its own named logger
// with New inside its constructor instead of reaching for a global.
package klog

import "go.uber.org/zap"

// New returns a named, sugared logger suitable for injecting into a
// subsystem constructor. component is attached as a static field so log
// lines from concurrent subsystems can be told apart.
func New(component string) *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		// Logging must never be the reason the kernel core fails to start;
		// fall back to a no-op logger rather than panicking here.
		l = zap.NewNop()
	}
	return l.Named(component).Sugar()
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
