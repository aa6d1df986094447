// Package avsync ingests two independent, free-running media streams — raw
// video frames and raw PCM audio blocks, each carrying a wall-clock capture
// timestamp — and produces two aligned, encoder-ready streams with monotonic
// presentation timestamps.
//
// A Synchronizer solves five problems at once: clock drift between two
// capture devices that were never synchronized, gaps and bursts on either
// input, multi-segment recording (pause/resume) with a continuous output
// timeline, bounded buffering under producer/consumer mismatch, and safe
// hand-off to encoders from a background worker goroutine.
//
// Producers call ReadVideoFrame/ReadVideoPing and ReadAudioSamples/
// ReadAudioHole from their own goroutines. A single background goroutine,
// started by New and stopped by Close, drains both ring buffers and calls
// the configured VideoEncoder/AudioEncoder outside of any lock. NewSegment,
// GetTotalTime and HasErrorOccurred are safe to call from any goroutine at
// any time.
package avsync
