// Package media defines the core frame types that flow through the Prism
// processing pipeline, from demuxing through distribution.
package media

// Channel buffer sizes used by both the demuxer (producer) and viewer sessions
// (consumer) to decouple frame production from consumption. Sized to absorb
// jitter without excessive memory: ~2 seconds of video, ~2.5s of audio.
const (
	VideoBufferSize   = 60
	AudioBufferSize   = 120
	CaptionBufferSize = 30
)

// VideoFrame represents a single decoded video access unit (one picture) ready
// for relay to viewers. It carries the raw NAL units in Annex B format along
// with parameter sets needed by decoders to initialize or reconfigure.
type VideoFrame struct {
	PTS        int64
	DTS        int64
	IsKeyframe bool
	NALUs      [][]byte
	SPS        []byte
	PPS        []byte
	VPS        []byte
	Codec      string // "h264" or "h265"
	GroupID    uint32
	WireData   []byte // pre-serialized AVC1 (length-prefixed) NALUs for distribution
}

// AudioFrame represents a single AAC audio frame (ADTS-wrapped) belonging
// to a specific audio track. Multi-track streams produce separate AudioFrames
// with distinct TrackIndex values.
type AudioFrame struct {
	PTS        int64
	Data       []byte
	SampleRate int
	Channels   int
	TrackIndex int
}

// PixelFormat identifies the raw pixel layout of a RawVideoFrame, as
// reported by a capture source before scaling to the encoder's configured
// format.
type PixelFormat int

// Supported raw pixel formats for avsync ingest. YUV420P is the common case
// for both screen capture (via a format converter) and camera sources;
// RGBA/BGRA cover framebuffer-style capture that needs a color-space
// conversion in addition to any resizing.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatNV12
	PixelFormatRGBA
	PixelFormatBGRA
)

// SampleFormat identifies the PCM sample encoding of a RawAudioBlock.
type SampleFormat int

// Supported raw PCM sample formats for avsync ingest and the audio
// encoder's required input format.
const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatFloat32
)

// BytesPerSample returns the byte width of one sample in one channel for f,
// or 0 if f is not a recognized fixed-width format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatFloat32:
		return 4
	default:
		return 0
	}
}

// RawVideoFrame is a single captured picture in its own pixel format and
// dimensions, borrowed for the duration of a ReadVideoFrame call and copied
// into owned storage by the caller if it needs to survive the call. Unlike
// VideoFrame (a decoded access unit ready for distribution), RawVideoFrame
// carries no codec information — it is pre-encode.
type RawVideoFrame struct {
	Width, Height int
	Stride        int
	Format        PixelFormat
	Data          []byte
	// Timestamp is the wall-clock capture time in microseconds.
	Timestamp int64
}

// Clone returns a deep copy of f, used when a frame must outlive the
// borrowed call that produced it (queued for later encoding, or duplicated
// to fill a gap).
func (f *RawVideoFrame) Clone() *RawVideoFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &RawVideoFrame{
		Width:     f.Width,
		Height:    f.Height,
		Stride:    f.Stride,
		Format:    f.Format,
		Data:      data,
		Timestamp: f.Timestamp,
	}
}

// RawAudioBlock is a contiguous run of interleaved PCM samples anchored to
// wall-clock by the timestamp of its first sample; trailing samples are
// positioned by Timestamp + samplesConsumed*1e6/SampleRate, never stored
// individually.
type RawAudioBlock struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
	Data       []byte
	// Timestamp is the wall-clock capture time of the first sample, in
	// microseconds.
	Timestamp int64
}

// SampleCount returns the number of interleaved multi-channel samples in
// the block, derived from the data length and frame format.
func (b *RawAudioBlock) SampleCount() int {
	bps := b.Format.BytesPerSample()
	if bps == 0 || b.Channels == 0 {
		return 0
	}
	return len(b.Data) / (bps * b.Channels)
}
