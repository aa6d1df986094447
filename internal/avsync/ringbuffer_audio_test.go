package avsync

import (
	"testing"

	"github.com/zsiec/avsync/media"
)

func TestAudioRingBufferAppendAndConsume(t *testing.T) {
	t.Parallel()

	b := newAudioRingBuffer(48000, 2, 2, 48000)
	block := &media.RawAudioBlock{
		SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16,
		Data: make([]byte, 100*2*2), Timestamp: 1_000_000,
	}
	b.Append(block)
	if got := b.Samples(); got != 100 {
		t.Fatalf("Samples() = %d, want 100", got)
	}
	if got := b.HeadTimestamp(); got != 1_000_000 {
		t.Fatalf("HeadTimestamp() = %d, want 1000000", got)
	}

	out := b.Consume(40)
	if got := len(out); got != 40*2*2 {
		t.Errorf("Consume(40) returned %d bytes, want %d", got, 40*2*2)
	}
	if got := b.Samples(); got != 60 {
		t.Errorf("Samples() after Consume(40) = %d, want 60", got)
	}
	wantTS := int64(1_000_000) + int64(40)*1_000_000/int64(48000)
	if got := b.HeadTimestamp(); got != wantTS {
		t.Errorf("HeadTimestamp() after Consume(40) = %d, want %d", got, wantTS)
	}
}

func TestAudioRingBufferConsumeClampsToAvailable(t *testing.T) {
	t.Parallel()

	b := newAudioRingBuffer(48000, 2, 2, 48000)
	b.Append(&media.RawAudioBlock{SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16, Data: make([]byte, 10*2*2)})
	out := b.Consume(1000)
	if got := len(out); got != 10*2*2 {
		t.Errorf("Consume(1000) with 10 samples buffered returned %d bytes, want %d", got, 10*2*2)
	}
	if got := b.Samples(); got != 0 {
		t.Errorf("Samples() after over-consuming = %d, want 0", got)
	}
}

func TestAudioRingBufferDropOverflow(t *testing.T) {
	t.Parallel()

	b := newAudioRingBuffer(48000, 2, 2, 100)
	b.Append(&media.RawAudioBlock{SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16, Data: make([]byte, 150*2*2), Timestamp: 0})

	dropped := b.DropOverflow()
	if dropped != 50 {
		t.Fatalf("DropOverflow() = %d, want 50", dropped)
	}
	if got := b.Samples(); got != 100 {
		t.Errorf("Samples() after DropOverflow = %d, want 100", got)
	}
	if b.DropOverflow() != 0 {
		t.Error("DropOverflow() at capacity should return 0")
	}
}

func TestAudioRingBufferHeadTimestampSetOnceUntilEmpty(t *testing.T) {
	t.Parallel()

	b := newAudioRingBuffer(48000, 2, 2, 48000)
	b.Append(&media.RawAudioBlock{SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16, Data: make([]byte, 10*2*2), Timestamp: 500})
	b.Append(&media.RawAudioBlock{SampleRate: 48000, Channels: 2, Format: media.SampleFormatS16, Data: make([]byte, 10*2*2), Timestamp: 999_999})
	if got := b.HeadTimestamp(); got != 500 {
		t.Errorf("HeadTimestamp() after two Appends = %d, want 500 (only first-ever Append sets it)", got)
	}
}
