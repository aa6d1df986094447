package avsync

import (
	"log/slog"

	"github.com/zsiec/avsync/media"
)

// New constructs a Synchronizer and starts its emit worker goroutine.
// Either videoEncoder or audioEncoder (never both) may be nil to disable
// that stream; scaler and resampler are only required if videoEncoder /
// audioEncoder respectively are non-nil. Call Close when done.
func New(cfg Config, videoEncoder VideoEncoder, audioEncoder AudioEncoder, scaler Scaler, resampler Resampler) (*Synchronizer, error) {
	if videoEncoder == nil && audioEncoder == nil {
		return nil, ErrBothStreamsDisabled
	}
	cfg = cfg.withDefaults()

	s := &Synchronizer{
		cfg:          cfg,
		log:          slog.With("component", "avsync"),
		videoEncoder: videoEncoder,
		audioEncoder: audioEncoder,
		scaler:       scaler,
		resampler:    resampler,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	if audioEncoder != nil {
		frameSize := audioEncoder.RequiredFrameSize()
		if frameSize <= 0 {
			return nil, ErrFormatMismatch
		}
		s.audioRequiredFrameSize = frameSize
		s.audioRequiredSampleRate = audioEncoder.RequiredSampleRate()
		s.audioRequiredChannels = audioEncoder.RequiredChannels()
		s.audioRequiredFormat = audioEncoder.RequiredSampleFormat()
	}

	s.shared = sharedData{
		phase:         phaseWaitingForBothStreams,
		videoBuf:      newVideoRingBuffer(cfg.MaxVideoFramesBuffered),
		audioCanDrop:  true,
		drift:         newDriftEstimator(cfg),
	}
	if audioEncoder != nil {
		s.shared.audioBuf = newAudioRingBuffer(
			s.audioRequiredSampleRate,
			s.audioRequiredChannels,
			s.audioRequiredFormat.BytesPerSample(),
			cfg.MaxAudioSamplesBuffered,
		)
	}

	go s.run()
	return s, nil
}

// NewSegment ends the current segment and prepares for a new one, required
// for pausing and resuming a recording. It is a no-op if the current
// segment has received no input on any enabled stream, so it is safe to
// call more than once. Thread-safe, but callers should avoid calling it
// concurrently with ingest, since frames may otherwise land in the wrong
// segment.
func (s *Synchronizer) NewSegment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.segmentEmpty() {
		return
	}
	if s.shared.phase == phaseRunning {
		s.transition(phaseDraining)
	}
}

// GetTotalTime returns the total recorded duration in microseconds: the sum
// of all closed segments plus however much of the current segment has
// elapsed.
func (s *Synchronizer) GetTotalTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTimeLocked()
}

func (s *Synchronizer) totalTimeLocked() int64 {
	start, stop, ok := s.segmentWindowLocked()
	if !ok || stop < start {
		return s.shared.timeOffset
	}
	return s.shared.timeOffset + (stop - start)
}

// HasErrorOccurred reports whether the emit worker has stopped after an
// encoder error. Once true, the worker has exited and buffered data is
// discarded; the caller is expected to tear the session down.
func (s *Synchronizer) HasErrorOccurred() bool {
	return s.errOccurred.Load()
}

// Close stops the emit worker and releases buffered data. It is safe to
// call more than once.
func (s *Synchronizer) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
	return nil
}

// segmentWindowLocked computes [segment_start, segment_stop) over the
// enabled, started streams. ok is false if no enabled stream has started
// yet.
func (s *Synchronizer) segmentWindowLocked() (start, stop int64, ok bool) {
	haveVideo := s.videoEncoder != nil && s.shared.videoStarted
	haveAudio := s.audioEncoder != nil && s.shared.audioStarted
	if !haveVideo && !haveAudio {
		return 0, 0, false
	}

	switch {
	case haveVideo && haveAudio:
		start = max64(s.shared.videoStartTime, s.shared.audioStartTime)
		stop = min64(s.shared.videoStopTime, s.shared.audioStopTime)
	case haveVideo:
		start = s.shared.videoStartTime
		stop = s.shared.videoStopTime
	default:
		start = s.shared.audioStartTime
		stop = s.shared.audioStopTime
	}
	return start, stop, true
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// cloneLastVideoFrame returns a shared reference to the most recently
// emitted frame's pixel data, used to duplicate frames on a gap. Producers
// never mutate it; only the worker replaces the pointer.
func (s *sharedData) cloneLastVideoFrame(timestamp int64) *media.RawVideoFrame {
	if s.lastVideoFrameData == nil {
		return nil
	}
	clone := s.lastVideoFrameData.Clone()
	clone.Timestamp = timestamp
	return clone
}
