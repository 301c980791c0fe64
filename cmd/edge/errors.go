package main

import "fmt"

// misconfigurationError wraps a fatal startup error whose process exit code
// is 1: bad flags, bad config file, a failed readiness/health probe.
type misconfigurationError struct{ err error }

func (e *misconfigurationError) Error() string { return e.err.Error() }
func (e *misconfigurationError) Unwrap() error { return e.err }
func (e *misconfigurationError) ExitCode() int  { return 1 }

func misconfigured(format string, args ...interface{}) error {
	return &misconfigurationError{err: fmt.Errorf(format, args...)}
}

// runtimeFaultError wraps an unrecoverable fault encountered while the
// instance was starting (after configuration validated but before it could
// serve traffic), whose process exit code is 2.
type runtimeFaultError struct{ err error }

func (e *runtimeFaultError) Error() string { return e.err.Error() }
func (e *runtimeFaultError) Unwrap() error { return e.err }
func (e *runtimeFaultError) ExitCode() int  { return 2 }

func runtimeFault(format string, args ...interface{}) error {
	return &runtimeFaultError{err: fmt.Errorf(format, args...)}
}
