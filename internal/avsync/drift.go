package avsync

import "math"

// driftEstimator is a PI-controlled estimate of audio-vs-video
// desynchronization in seconds, used to derive a correction ratio for the
// audio resampler. Grounded on Synchronizer.h's m_av_desync/m_av_desync_i
// fields.
type driftEstimator struct {
	p, i      float64
	threshold float64

	desync   float64
	desyncI  float64
	warnOnce bool
}

func newDriftEstimator(cfg Config) *driftEstimator {
	return &driftEstimator{
		p:         cfg.DesyncCorrectionP,
		i:         cfg.DesyncCorrectionI,
		threshold: cfg.DesyncErrorThreshold,
	}
}

// Update feeds a newly measured instantaneous desync (seconds, positive
// means audio arrived later than expected) observed over dt seconds, and
// returns the updated desync estimate. It reports whether |desync| exceeds
// the configured threshold and this is the first time this segment.
func (d *driftEstimator) Update(measured, dt float64) (desync float64, firstExcursion bool) {
	d.desyncI += d.i * measured * dt
	d.desync = d.desyncI + d.p*measured

	clamped := d.desync
	if clamped > d.threshold {
		clamped = d.threshold
	} else if clamped < -d.threshold {
		clamped = -d.threshold
	}
	d.desync = clamped

	excursion := math.Abs(d.desync) >= d.threshold
	first := excursion && !d.warnOnce
	if excursion {
		d.warnOnce = true
	}
	return d.desync, first
}

// Desync returns the current desync estimate in seconds without updating it.
func (d *driftEstimator) Desync() float64 {
	return d.desync
}

// Ratio returns the resample target-rate multiplier: the audio resampler is
// asked to produce output as though its nominal rate were
// rate/(1+Ratio()), so a positive desync (audio consistently arriving late,
// i.e. the audio clock is running slow relative to video) speeds audio
// playback rate up slightly to catch back up. Video is never resampled —
// its cadence is fixed by capture hardware — so all correction happens on
// the audio side.
func (d *driftEstimator) Ratio() float64 {
	clamped := d.desync
	if clamped > d.threshold {
		clamped = d.threshold
	} else if clamped < -d.threshold {
		clamped = -d.threshold
	}
	return clamped
}

// Reset zeroes both PI terms and the once-per-segment warning latch. Called
// on segment close.
func (d *driftEstimator) Reset() {
	d.desync = 0
	d.desyncI = 0
	d.warnOnce = false
}
