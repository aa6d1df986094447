package avsync

import (
	"log/slog"
	"testing"
)

func newTestSynchronizerState(hasVideo, hasAudio bool) *Synchronizer {
	s := &Synchronizer{
		cfg: DefaultConfig(),
		log: slog.Default(),
		shared: sharedData{
			phase:        phaseWaitingForBothStreams,
			audioCanDrop: true,
			drift:        newDriftEstimator(DefaultConfig()),
		},
	}
	if hasVideo {
		s.videoEncoder = &fakeVideoEncoder{}
	}
	if hasAudio {
		s.audioEncoder = &fakeAudioEncoder{frameSize: 1024, sampleRate: 48000, channels: 2, format: 1}
	}
	return s
}

func TestBothStreamsStartedRequiresOnlyEnabledStreams(t *testing.T) {
	t.Parallel()

	s := newTestSynchronizerState(true, false)
	if s.bothStreamsStarted() {
		t.Fatal("video-only Synchronizer should not report started before video starts")
	}
	s.shared.videoStarted = true
	if !s.bothStreamsStarted() {
		t.Error("video-only Synchronizer should report started once video starts, audio disabled")
	}
}

func TestBothStreamsStartedNeedsBothWhenBothEnabled(t *testing.T) {
	t.Parallel()

	s := newTestSynchronizerState(true, true)
	s.shared.videoStarted = true
	if s.bothStreamsStarted() {
		t.Fatal("expected false with only video started")
	}
	s.shared.audioStarted = true
	if !s.bothStreamsStarted() {
		t.Error("expected true once both streams started")
	}
}

func TestMaybeStartRunningTransitionsOnlyFromWaiting(t *testing.T) {
	t.Parallel()

	s := newTestSynchronizerState(true, false)
	s.shared.videoStarted = true
	s.maybeStartRunning()
	if s.shared.phase != phaseRunning {
		t.Fatalf("phase = %v, want running", s.shared.phase)
	}

	s.shared.phase = phaseDraining
	s.maybeStartRunning()
	if s.shared.phase != phaseDraining {
		t.Errorf("phase = %v, want unchanged draining", s.shared.phase)
	}
}

func TestSegmentEmpty(t *testing.T) {
	t.Parallel()

	s := newTestSynchronizerState(true, true)
	if !s.segmentEmpty() {
		t.Fatal("fresh segment with no input should be empty")
	}
	s.shared.videoStarted = true
	if s.segmentEmpty() {
		t.Error("segment with video input should not be empty")
	}
}

func TestSegmentPhaseString(t *testing.T) {
	t.Parallel()

	cases := map[segmentPhase]string{
		phaseIdle:                 "idle",
		phaseWaitingForBothStreams: "waiting",
		phaseRunning:              "running",
		phaseDraining:             "draining",
		phaseClosed:               "closed",
		segmentPhase(99):          "unknown",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("segmentPhase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
