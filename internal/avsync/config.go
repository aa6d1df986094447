package avsync

import "time"

// Config holds the synchronizer's tunables. Zero-value fields are replaced
// by DefaultConfig's values in New, mirroring how media.go exposes
// package-level buffer-size constants rather than a builder API — this
// codebase has no configuration library in its dependency graph, so
// Synchronizer takes a plain struct like every other component here.
type Config struct {
	// FrameRate is the video capture/output rate in frames per second.
	FrameRate float64

	// AllowFrameSkipping controls FlushVideoBuffer's behavior when a
	// buffered frame's target PTS has already been passed: true drops the
	// frame (default, matches live capture where staying current matters
	// more than completeness); false stalls the flush until the encoder
	// catches up, matching SimpleScreenRecorder's optional strict mode for
	// offline transcodes where no frame may be dropped silently.
	AllowFrameSkipping bool

	// DesyncCorrectionP is the proportional gain of the drift PI controller.
	DesyncCorrectionP float64
	// DesyncCorrectionI is the integral gain of the drift PI controller.
	DesyncCorrectionI float64
	// DesyncErrorThreshold is the maximum tolerated |av_desync| in seconds
	// before the "desync" warning fires. Also used to clamp the value fed
	// to the resampler ratio.
	DesyncErrorThreshold float64

	// MaxVideoFramesBuffered caps the video ring buffer length.
	MaxVideoFramesBuffered int
	// MaxAudioSamplesBuffered caps the audio ring buffer length, in samples.
	MaxAudioSamplesBuffered int
	// MaxFrameDelay caps, in frames, both gap-fill duplication on ingest
	// and duplicate-on-flush during FlushVideoBuffer.
	MaxFrameDelay int64

	// IdleSleep is how long the emit worker sleeps between iterations when
	// there is nothing to flush. ~10ms is a reasonable default; kept
	// configurable for tests, which use a much shorter interval to avoid
	// slow suites.
	IdleSleep time.Duration
}

// DefaultConfig returns the synchronizer's typical tunable values.
func DefaultConfig() Config {
	return Config{
		FrameRate:               30,
		AllowFrameSkipping:      true,
		DesyncCorrectionP:       0.3,
		DesyncCorrectionI:       0.05,
		DesyncErrorThreshold:    20,
		MaxVideoFramesBuffered:  30,
		MaxAudioSamplesBuffered: 48000 * 30,
		MaxFrameDelay:           10,
		IdleSleep:               10 * time.Millisecond,
	}
}

// withDefaults returns a copy of c with any zero-value field replaced by
// DefaultConfig's value. AllowFrameSkipping has no meaningful "unset" state
// (false is a valid choice) so it is never defaulted.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrameRate == 0 {
		c.FrameRate = d.FrameRate
	}
	if c.DesyncCorrectionP == 0 {
		c.DesyncCorrectionP = d.DesyncCorrectionP
	}
	if c.DesyncCorrectionI == 0 {
		c.DesyncCorrectionI = d.DesyncCorrectionI
	}
	if c.DesyncErrorThreshold == 0 {
		c.DesyncErrorThreshold = d.DesyncErrorThreshold
	}
	if c.MaxVideoFramesBuffered == 0 {
		c.MaxVideoFramesBuffered = d.MaxVideoFramesBuffered
	}
	if c.MaxAudioSamplesBuffered == 0 {
		c.MaxAudioSamplesBuffered = d.MaxAudioSamplesBuffered
	}
	if c.MaxFrameDelay == 0 {
		c.MaxFrameDelay = d.MaxFrameDelay
	}
	if c.IdleSleep == 0 {
		c.IdleSleep = d.IdleSleep
	}
	return c
}

// framePeriodUS returns the video frame period in microseconds.
func (c Config) framePeriodUS() int64 {
	return int64(1e6 / c.FrameRate)
}
