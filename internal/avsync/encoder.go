package avsync

import "github.com/zsiec/avsync/media"

// VideoEncoder is the downstream collaborator that consumes finished video
// frames in the configured pixel format and dimensions. Implementations are
// expected to be opaque and potentially slow or blocking; the Synchronizer
// never calls EncodeFrame while holding its shared lock.
//
// A VideoEncoder may be nil at construction to disable the video stream
// entirely.
type VideoEncoder interface {
	EncodeFrame(frame *media.RawVideoFrame) error
}

// AudioEncoder is the downstream collaborator that consumes fixed-size audio
// frames. RequiredFrameSize and RequiredSampleSize are queried once at
// construction time so the Synchronizer can size its partial-frame staging
// buffer; they are not expected to change afterward.
//
// A AudioEncoder may be nil at construction to disable the audio stream
// entirely.
type AudioEncoder interface {
	EncodeFrame(frame *media.RawAudioBlock) error
	// RequiredFrameSize returns the exact number of samples per channel the
	// encoder needs per EncodeFrame call.
	RequiredFrameSize() int
	// RequiredSampleFormat returns the sample format EncodeFrame expects.
	RequiredSampleFormat() media.SampleFormat
	// RequiredSampleRate returns the sample rate EncodeFrame expects.
	RequiredSampleRate() int
	// RequiredChannels returns the channel count EncodeFrame expects.
	RequiredChannels() int
}

// Scaler converts a raw video frame to the pixel format and dimensions
// required by the configured VideoEncoder. Implementations are stateful
// (cached conversion contexts) and must be safe to call from a single
// goroutine at a time; the Synchronizer serializes access with its own
// mutex, separate from the shared-state lock, so a scaler call never blocks
// an ingest call for a different stream.
type Scaler interface {
	Scale(frame *media.RawVideoFrame) (*media.RawVideoFrame, error)
}

// Resampler converts a raw audio block to the sample rate, channel layout
// and sample format required by the configured AudioEncoder, optionally
// perturbing the target rate to absorb measured clock drift. Implementations
// are stateful and must be safe to call from a single goroutine at a time,
// with the same locking discipline as Scaler.
type Resampler interface {
	// Resample converts block to the encoder's required format. ratio
	// perturbs the nominal output sample rate by (1+ratio); ratio is 0 for
	// no correction.
	Resample(block *media.RawAudioBlock, ratio float64) (*media.RawAudioBlock, error)
}
