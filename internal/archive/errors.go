package archive

import "errors"

// ErrInterrupted names the SIGINT/SIGTERM outcome (spec §5/§7). No code in
// this package returns it: an interrupted run returns the cancelled
// context's error, and main recognises the interruption by checking its
// own context, which it maps to exit code 130.
var ErrInterrupted = errors.New("interrupted")

// ErrTooManyFailures is the fatal error raised by UPDATE mode's 3-strikes
// policy (spec §4.6/§7).
var ErrTooManyFailures = errors.New("more than 3 consecutive gallery failures")
