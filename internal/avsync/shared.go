package avsync

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/avsync/media"
)

// sharedData is everything protected by Synchronizer.mu: buffers, output
// counters, segment state, and drift state. It corresponds directly to
// Synchronizer.h's SharedData struct. No encoder call is ever made while
// s.mu is held — the worker copies what it needs, releases the lock, then
// calls the encoder.
//
// Invariants, checked by tests, that must hold at every point s.mu is
// released:
//   - audioSamples and videoPTS are non-decreasing across the session.
//   - videoBuf/audioBuf together with the partial audio frame contain
//     exactly the samples between audioSamplesRead and the ingest write head.
//   - within a segment, videoLastTimestamp and audioLastTimestamp are
//     non-decreasing.
//   - videoAccumulatedDelay <= cfg.MaxFrameDelay * videoPTS.
type sharedData struct {
	phase segmentPhase

	videoBuf *videoRingBuffer
	audioBuf *audioRingBuffer

	partialAudio        []byte
	partialAudioSamples int

	videoPTS     int64
	audioSamples int64
	timeOffset   int64

	videoStarted, audioStarted         bool
	videoStartTime, audioStartTime     int64
	videoStopTime, audioStopTime       int64
	audioCanDrop                       bool
	audioSamplesRead                   int64
	videoLastTimestamp, audioLastTimestamp int64
	videoAccumulatedDelay              int64

	lastVideoFrameData *media.RawVideoFrame

	warnDropVideo bool
	warnDesync    bool

	drift *driftEstimator
}

// resetSegment clears every per-segment field, leaving cross-segment state
// (videoPTS, audioSamples, timeOffset, buffers' contents) untouched except
// for the buffers themselves, which are cleared by the caller once fully
// flushed. partialAudio/partialAudioSamples are cleared too, as a backstop:
// by the time a Draining segment reaches here, finalizeAudioSegmentLocked
// has already padded and emitted any leftover partial frame, so this should
// always find them already zero. Called when a Draining segment finishes
// closing.
func (s *sharedData) resetSegment() {
	s.videoStarted = false
	s.audioStarted = false
	s.videoStartTime = 0
	s.audioStartTime = 0
	s.videoStopTime = 0
	s.audioStopTime = 0
	s.audioCanDrop = true
	s.audioSamplesRead = 0
	s.videoLastTimestamp = 0
	s.audioLastTimestamp = 0
	s.videoAccumulatedDelay = 0
	s.warnDropVideo = false
	s.warnDesync = false
	s.partialAudio = nil
	s.partialAudioSamples = 0
	s.drift.Reset()
}

// Synchronizer ingests independently-timestamped raw video frames and PCM
// audio blocks and emits monotonic-PTS, drift-corrected streams to a video
// and/or audio encoder. See package doc for the full contract.
type Synchronizer struct {
	cfg Config
	log *slog.Logger

	videoEncoder VideoEncoder
	audioEncoder AudioEncoder

	audioRequiredFrameSize  int
	audioRequiredSampleRate int
	audioRequiredChannels   int
	audioRequiredFormat     media.SampleFormat

	scalerMu sync.Mutex
	scaler   Scaler

	resamplerMu sync.Mutex
	resampler   Resampler

	mu     sync.Mutex
	shared sharedData

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	errOccurred atomic.Bool
}
