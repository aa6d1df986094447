package avsync

import (
	"testing"
	"time"

	"github.com/zsiec/avsync/internal/avsync/avsynctest"
	"github.com/zsiec/avsync/media"
)

func TestNewRejectsBothStreamsDisabled(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig(), nil, nil, nil, nil)
	if err != ErrBothStreamsDisabled {
		t.Fatalf("New(nil, nil) error = %v, want ErrBothStreamsDisabled", err)
	}
}

func TestNewRejectsZeroFrameSizeAudioEncoder(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioEncoder{frameSize: 0, sampleRate: 48000, channels: 2}
	_, err := New(DefaultConfig(), nil, audio, nil, passthroughResampler{})
	if err != ErrFormatMismatch {
		t.Fatalf("New with zero frame size error = %v, want ErrFormatMismatch", err)
	}
}

func TestNewStartsWaitingForBothStreams(t *testing.T) {
	t.Parallel()

	video := &fakeVideoEncoder{}
	s, err := New(DefaultConfig(), video, nil, passthroughScaler{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.mu.Lock()
	phase := s.shared.phase
	s.mu.Unlock()
	if phase != phaseWaitingForBothStreams {
		t.Errorf("initial phase = %v, want waiting", phase)
	}
}

func TestCloseIsIdempotentAndStopsWorker(t *testing.T) {
	t.Parallel()

	video := &fakeVideoEncoder{}
	s, err := New(DefaultConfig(), video, nil, passthroughScaler{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case <-s.doneCh:
	default:
		t.Error("doneCh should be closed once the worker has exited")
	}
}

func TestNewSegmentNoOpWhenEmpty(t *testing.T) {
	t.Parallel()

	video := &fakeVideoEncoder{}
	s := newClosedSynchronizer(t, video, nil)
	s.shared.phase = phaseWaitingForBothStreams
	s.NewSegment()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared.phase != phaseWaitingForBothStreams {
		t.Errorf("phase = %v, want unchanged waiting (segment had no input)", s.shared.phase)
	}
}

func TestNewSegmentTransitionsRunningToDraining(t *testing.T) {
	t.Parallel()

	video := &fakeVideoEncoder{}
	s := newClosedSynchronizer(t, video, nil)
	s.shared.phase = phaseRunning
	s.shared.videoStarted = true

	s.NewSegment()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared.phase != phaseDraining {
		t.Errorf("phase = %v, want draining", s.shared.phase)
	}
}

func TestGetTotalTimeAccumulatesAcrossSegments(t *testing.T) {
	t.Parallel()

	video := &fakeVideoEncoder{}
	s := newClosedSynchronizer(t, video, nil)
	s.shared.timeOffset = 5_000_000
	s.shared.videoStarted = true
	s.shared.videoStartTime = 1_000_000
	s.shared.videoStopTime = 1_500_000

	if got, want := s.GetTotalTime(), int64(5_500_000); got != want {
		t.Errorf("GetTotalTime() = %d, want %d", got, want)
	}
}

func TestHasErrorOccurredAfterEncoderFailure(t *testing.T) {
	t.Parallel()

	video := &fakeVideoEncoder{failAfter: 0}
	s := newClosedSynchronizer(t, video, nil)
	if s.HasErrorOccurred() {
		t.Fatal("HasErrorOccurred() should be false before any encoder call")
	}

	video.failAfter = 1
	video.frames = append(video.frames, frameAt(0)) // make failAfter trip immediately
	ok := s.runJobs([]*media.RawVideoFrame{frameAt(1)}, nil)
	if ok {
		t.Fatal("runJobs should report false when the video encoder fails")
	}
	if !s.HasErrorOccurred() {
		t.Error("HasErrorOccurred() should be true after a failed encoder call")
	}
}

// TestSteadyStateEndToEnd runs a live Synchronizer (real worker goroutine)
// with matched-rate video and audio input and asserts it emits a
// proportional, monotonically increasing amount of output on both streams —
// the steady-state scenario neither stream ever leads or lags the other
// once both have started.
func TestSteadyStateEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.IdleSleep = time.Millisecond

	video := &fakeVideoEncoder{}
	audio := &fakeAudioEncoder{frameSize: 1024, sampleRate: 48000, channels: 2, format: media.SampleFormatS16}
	s, err := New(cfg, video, audio, passthroughScaler{}, passthroughResampler{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	period := cfg.framePeriodUS()
	frameData := avsynctest.SolidYUV420P(16, 16, 16, 128, 128)
	for i := int64(0); i < 30; i++ {
		s.ReadVideoFrame(16, 16, frameData, 16, media.PixelFormatYUV420P, i*period)
	}
	blockUS := int64(1024) * 1_000_000 / 48000
	for i := int64(0); i < 15; i++ {
		s.ReadAudioSamples(48000, 2, 1024, avsynctest.SilenceS16(48000, 2, 1024), media.SampleFormatS16, i*blockUS)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(video.Frames()) >= 10 && len(audio.Blocks()) >= 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if got := len(video.Frames()); got < 10 {
		t.Fatalf("video frames emitted = %d, want >= 10 within the timeout", got)
	}
	if got := len(audio.Blocks()); got < 3 {
		t.Fatalf("audio blocks emitted = %d, want >= 3 within the timeout", got)
	}
}
