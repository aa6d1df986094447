package avsync

import "github.com/zsiec/avsync/media"

// videoRingBuffer is a FIFO of owned video frames, capped at maxLen. A Go
// slice used as a deque (append at the tail, reslice at the head) plays the
// same role a `std::deque<std::unique_ptr<AVFrame>>` would, matching how the
// rest of this codebase's channel-backed buffers (media.VideoBufferSize) are
// plain slices/channels rather than a generic container type.
type videoRingBuffer struct {
	frames []*media.RawVideoFrame
	maxLen int
}

func newVideoRingBuffer(maxLen int) *videoRingBuffer {
	return &videoRingBuffer{maxLen: maxLen}
}

// Push appends frame to the tail, dropping the oldest frame if the buffer
// is at capacity. It reports whether a frame was dropped.
func (b *videoRingBuffer) Push(frame *media.RawVideoFrame) (dropped bool) {
	b.frames = append(b.frames, frame)
	if len(b.frames) > b.maxLen {
		b.frames = b.frames[1:]
		return true
	}
	return false
}

// Len returns the number of buffered frames.
func (b *videoRingBuffer) Len() int {
	return len(b.frames)
}

// Front returns the oldest buffered frame without removing it, or nil if
// the buffer is empty.
func (b *videoRingBuffer) Front() *media.RawVideoFrame {
	if len(b.frames) == 0 {
		return nil
	}
	return b.frames[0]
}

// PopFront removes and returns the oldest buffered frame, or nil if the
// buffer is empty.
func (b *videoRingBuffer) PopFront() *media.RawVideoFrame {
	if len(b.frames) == 0 {
		return nil
	}
	f := b.frames[0]
	b.frames[0] = nil
	b.frames = b.frames[1:]
	return f
}
