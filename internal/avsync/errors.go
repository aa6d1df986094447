package avsync

import "errors"

// Sentinel errors for Synchronizer operation. These enable callers to
// programmatically distinguish failure modes using errors.Is.
var (
	// ErrFormatMismatch is returned when an encoder reports a required
	// audio frame size of zero, or a caller passes a sample/pixel format
	// the Synchronizer was not configured for.
	ErrFormatMismatch = errors.New("avsync: format mismatch")

	// ErrBothStreamsDisabled is returned by New when neither a video nor
	// an audio encoder was supplied — there would be nothing to emit.
	ErrBothStreamsDisabled = errors.New("avsync: both streams disabled")
)
