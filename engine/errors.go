package engine

import "errors"

var (
	// The device could not be reached after the session exhausted its reconnect attempts.
	// Stops the run.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// A cue was not on screen within its polling budget
	ErrCueNotFound        = errors.New("cue not found")
	ErrRecognitionFailed  = errors.New("card recognition failed")
	ErrVerificationFailed = errors.New("play could not be verified")
	// The operator closed a prompt or did not answer before the timeout
	ErrOperatorCancelled = errors.New("operator cancelled")
)
