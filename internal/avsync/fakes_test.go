package avsync

import (
	"sync"

	"github.com/zsiec/avsync/media"
)

// fakeVideoEncoder records every frame handed to it, optionally failing
// after a configured number of calls to exercise the error/teardown path.
type fakeVideoEncoder struct {
	mu        sync.Mutex
	frames    []*media.RawVideoFrame
	failAfter int // 0 means never fail
}

func (f *fakeVideoEncoder) EncodeFrame(frame *media.RawVideoFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.frames) >= f.failAfter {
		return errFakeEncoderFailure
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeVideoEncoder) Frames() []*media.RawVideoFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*media.RawVideoFrame, len(f.frames))
	copy(out, f.frames)
	return out
}

// fakeAudioEncoder records every block handed to it; RequiredFrameSize is
// fixed at construction the way a real AAC encoder's frame size is fixed by
// its codec.
type fakeAudioEncoder struct {
	mu         sync.Mutex
	blocks     []*media.RawAudioBlock
	frameSize  int
	sampleRate int
	channels   int
	format     media.SampleFormat
	failAfter  int
}

func (f *fakeAudioEncoder) EncodeFrame(block *media.RawAudioBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.blocks) >= f.failAfter {
		return errFakeEncoderFailure
	}
	f.blocks = append(f.blocks, block)
	return nil
}

func (f *fakeAudioEncoder) Blocks() []*media.RawAudioBlock {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*media.RawAudioBlock, len(f.blocks))
	copy(out, f.blocks)
	return out
}

func (f *fakeAudioEncoder) RequiredFrameSize() int                   { return f.frameSize }
func (f *fakeAudioEncoder) RequiredSampleFormat() media.SampleFormat { return f.format }
func (f *fakeAudioEncoder) RequiredSampleRate() int                  { return f.sampleRate }
func (f *fakeAudioEncoder) RequiredChannels() int                    { return f.channels }

// passthroughScaler returns frames unchanged, standing in for a real
// pixel-format/geometry conversion in tests that only exercise timing.
type passthroughScaler struct{}

func (passthroughScaler) Scale(frame *media.RawVideoFrame) (*media.RawVideoFrame, error) {
	return frame.Clone(), nil
}

// passthroughResampler returns blocks unchanged regardless of the requested
// ratio, standing in for a real resample context in tests that only
// exercise timing and buffering, not sample-rate conversion.
type passthroughResampler struct{}

func (passthroughResampler) Resample(block *media.RawAudioBlock, ratio float64) (*media.RawAudioBlock, error) {
	clone := &media.RawAudioBlock{
		SampleRate: block.SampleRate,
		Channels:   block.Channels,
		Format:     block.Format,
		Timestamp:  block.Timestamp,
	}
	clone.Data = append(clone.Data, block.Data...)
	return clone, nil
}

var errFakeEncoderFailure = &fakeEncoderError{"fake encoder failure"}

type fakeEncoderError struct{ msg string }

func (e *fakeEncoderError) Error() string { return e.msg }
