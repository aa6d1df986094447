package avsync

import "github.com/zsiec/avsync/media"

// audioRingBuffer is a byte-level FIFO of interleaved PCM samples, all
// already converted to the encoder's required rate/channels/format. Only the
// timestamp of the head sample is tracked ("headTimestamp"); every other
// sample's wall-clock position is derived from it plus a sample count.
//
// Overflow drops from the head, since audio cannot be dropped from the tail
// without corrupting future timestamps, which is why this is a plain
// growable byte slice rather than a fixed-capacity ring — the capacity
// check happens after Append, not before.
type audioRingBuffer struct {
	data           []byte
	headTimestamp  int64
	sampleRate     int
	channels       int
	bytesPerSample int
	maxSamples     int
}

func newAudioRingBuffer(sampleRate, channels, bytesPerSample, maxSamples int) *audioRingBuffer {
	return &audioRingBuffer{
		sampleRate:     sampleRate,
		channels:       channels,
		bytesPerSample: bytesPerSample,
		maxSamples:     maxSamples,
	}
}

func (b *audioRingBuffer) frameBytes() int {
	return b.channels * b.bytesPerSample
}

// Samples returns the number of interleaved multi-channel samples currently
// buffered.
func (b *audioRingBuffer) Samples() int {
	fb := b.frameBytes()
	if fb == 0 {
		return 0
	}
	return len(b.data) / fb
}

// Append adds block's data to the tail. block must already be in the
// buffer's configured rate/channels/format (the caller resamples first).
// If the buffer was empty, headTimestamp is set to block.Timestamp.
func (b *audioRingBuffer) Append(block *media.RawAudioBlock) {
	if len(b.data) == 0 {
		b.headTimestamp = block.Timestamp
	}
	b.data = append(b.data, block.Data...)
}

// HeadTimestamp returns the wall-clock timestamp, in microseconds, of the
// first buffered sample.
func (b *audioRingBuffer) HeadTimestamp() int64 {
	return b.headTimestamp
}

// TimestampAt returns the wall-clock timestamp of the sample at the given
// offset from the head.
func (b *audioRingBuffer) TimestampAt(sampleOffset int) int64 {
	return b.headTimestamp + int64(sampleOffset)*1e6/int64(b.sampleRate)
}

// Consume removes n samples from the head, advancing headTimestamp so later
// TimestampAt calls remain correct. It returns the removed bytes.
func (b *audioRingBuffer) Consume(n int) []byte {
	fb := b.frameBytes()
	nBytes := n * fb
	if nBytes > len(b.data) {
		nBytes = len(b.data)
		n = nBytes / fb
	}
	out := make([]byte, nBytes)
	copy(out, b.data[:nBytes])
	b.data = b.data[nBytes:]
	b.headTimestamp += int64(n) * 1e6 / int64(b.sampleRate)
	return out
}

// DropOverflow trims samples from the head until Samples() is within
// maxSamples, returning the number of samples dropped.
func (b *audioRingBuffer) DropOverflow() int {
	over := b.Samples() - b.maxSamples
	if over <= 0 {
		return 0
	}
	b.Consume(over)
	return over
}
