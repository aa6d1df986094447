package mediacodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/media"
)

// Muxer is the minimal surface both VideoEncoder and AudioEncoder need from
// an output container: write a packet on its stream, respecting whatever
// interleaving discipline the container format requires. It is satisfied by
// *astiav.FormatContext, kept as an interface here so tests can substitute a
// recording fake instead of opening a real file.
type Muxer interface {
	WriteInterleavedFrame(pkt *astiav.Packet) error
}

// VideoEncoder implements avsync.VideoEncoder over an astiav software
// encoder, writing encoded packets to a Muxer. Grounded on
// other_examples/e1z0-QAnotherRTSP__video.go's closeRecorder/audio-encode
// loop, generalized to video and to any codec the caller opened codecCtx
// with (the example always used AAC; this one is codec-agnostic since the
// CodecContext is opened by the caller, not by this type).
type VideoEncoder struct {
	mu       sync.Mutex
	codecCtx *astiav.CodecContext
	stream   *astiav.Stream
	mux      Muxer
	pixFmt   astiav.PixelFormat
	width    int
	height   int
	nextPTS  int64
}

// NewVideoEncoder wraps an already-open astiav.CodecContext (SetTimeBase,
// SetWidth/Height/PixelFormat and Open must already have been called by the
// caller, since those choices depend on the target codec) and the output
// stream it was registered against.
func NewVideoEncoder(codecCtx *astiav.CodecContext, stream *astiav.Stream, mux Muxer) *VideoEncoder {
	return &VideoEncoder{
		codecCtx: codecCtx,
		stream:   stream,
		mux:      mux,
		pixFmt:   codecCtx.PixelFormat(),
		width:    codecCtx.Width(),
		height:   codecCtx.Height(),
	}
}

// RequiredWidth, RequiredHeight and RequiredPixelFormat report the frame
// geometry this encoder was opened with, for constructing a matching Scaler.
func (e *VideoEncoder) RequiredWidth() int                    { return e.width }
func (e *VideoEncoder) RequiredHeight() int                   { return e.height }
func (e *VideoEncoder) RequiredPixelFormat() media.PixelFormat { return mediaPixelFormatOf(e.pixFmt) }

// EncodeFrame implements avsync.VideoEncoder.
func (e *VideoEncoder) EncodeFrame(frame *media.RawVideoFrame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := astiav.AllocFrame()
	defer f.Free()
	f.SetWidth(frame.Width)
	f.SetHeight(frame.Height)
	f.SetPixelFormat(e.pixFmt)
	if err := f.AllocBuffer(1); err != nil {
		return fmt.Errorf("mediacodec: alloc encode frame: %w", err)
	}
	if _, err := f.ImageCopyFromBuffer(frame.Data, 1); err != nil {
		return fmt.Errorf("mediacodec: copy frame image: %w", err)
	}
	f.SetPts(e.nextPTS)
	e.nextPTS++

	if err := e.codecCtx.SendFrame(f); err != nil {
		return fmt.Errorf("mediacodec: send video frame: %w", err)
	}
	return e.drain()
}

func (e *VideoEncoder) drain() error {
	for {
		pkt := astiav.AllocPacket()
		err := e.codecCtx.ReceivePacket(pkt)
		if err != nil {
			pkt.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("mediacodec: receive video packet: %w", err)
		}
		pkt.SetStreamIndex(e.stream.Index())
		pkt.RescaleTs(e.codecCtx.TimeBase(), e.stream.TimeBase())
		err = e.mux.WriteInterleavedFrame(pkt)
		pkt.Unref()
		pkt.Free()
		if err != nil {
			return fmt.Errorf("mediacodec: write video packet: %w", err)
		}
	}
}

// Flush signals end-of-stream to the encoder and drains any packets it was
// still holding back for B-frame reordering.
func (e *VideoEncoder) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.codecCtx.SendFrame(nil); err != nil {
		return fmt.Errorf("mediacodec: flush video encoder: %w", err)
	}
	return e.drain()
}

// AudioEncoder implements avsync.AudioEncoder over an astiav software
// encoder. Grounded on the same example's AAC path: FrameSize/SampleRate/
// SampleFormat/ChannelLayout are all read directly off the already-open
// CodecContext, matching how AVCodecContext.frame_size is the encoder's
// authoritative fixed input size in the original C API.
type AudioEncoder struct {
	mu       sync.Mutex
	codecCtx *astiav.CodecContext
	stream   *astiav.Stream
	mux      Muxer
	format   astiav.SampleFormat
	layout   astiav.ChannelLayout
	rate     int
	nextPTS  int64
}

// NewAudioEncoder wraps an already-open astiav.CodecContext and the output
// stream it was registered against.
func NewAudioEncoder(codecCtx *astiav.CodecContext, stream *astiav.Stream, mux Muxer) *AudioEncoder {
	return &AudioEncoder{
		codecCtx: codecCtx,
		stream:   stream,
		mux:      mux,
		format:   codecCtx.SampleFormat(),
		layout:   codecCtx.ChannelLayout(),
		rate:     codecCtx.SampleRate(),
	}
}

// RequiredFrameSize implements avsync.AudioEncoder.
func (e *AudioEncoder) RequiredFrameSize() int { return e.codecCtx.FrameSize() }

// RequiredSampleFormat implements avsync.AudioEncoder.
func (e *AudioEncoder) RequiredSampleFormat() media.SampleFormat { return mediaSampleFormatOf(e.format) }

// RequiredSampleRate implements avsync.AudioEncoder.
func (e *AudioEncoder) RequiredSampleRate() int { return e.rate }

// RequiredChannels implements avsync.AudioEncoder.
func (e *AudioEncoder) RequiredChannels() int { return e.layout.Channels() }

// EncodeFrame implements avsync.AudioEncoder.
func (e *AudioEncoder) EncodeFrame(block *media.RawAudioBlock) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := astiav.AllocFrame()
	defer f.Free()
	f.SetSampleRate(e.rate)
	f.SetChannelLayout(e.layout)
	f.SetSampleFormat(e.format)
	f.SetNbSamples(block.SampleCount())
	if err := f.AllocBuffer(0); err != nil {
		return fmt.Errorf("mediacodec: alloc encode samples: %w", err)
	}
	if _, err := f.SamplesCopyFromBuffer(block.Data, 1); err != nil {
		return fmt.Errorf("mediacodec: copy encode samples: %w", err)
	}
	f.SetPts(e.nextPTS)
	e.nextPTS += int64(block.SampleCount())

	if err := e.codecCtx.SendFrame(f); err != nil {
		return fmt.Errorf("mediacodec: send audio frame: %w", err)
	}
	return e.drain()
}

func (e *AudioEncoder) drain() error {
	for {
		pkt := astiav.AllocPacket()
		err := e.codecCtx.ReceivePacket(pkt)
		if err != nil {
			pkt.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("mediacodec: receive audio packet: %w", err)
		}
		pkt.SetStreamIndex(e.stream.Index())
		pkt.RescaleTs(e.codecCtx.TimeBase(), e.stream.TimeBase())
		err = e.mux.WriteInterleavedFrame(pkt)
		pkt.Unref()
		pkt.Free()
		if err != nil {
			return fmt.Errorf("mediacodec: write audio packet: %w", err)
		}
	}
}

// Flush signals end-of-stream to the encoder and drains its remaining
// buffered packets.
func (e *AudioEncoder) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.codecCtx.SendFrame(nil); err != nil {
		return fmt.Errorf("mediacodec: flush audio encoder: %w", err)
	}
	return e.drain()
}

func mediaPixelFormatOf(f astiav.PixelFormat) media.PixelFormat {
	switch f {
	case astiav.PixelFormatYuv420P:
		return media.PixelFormatYUV420P
	case astiav.PixelFormatNv12:
		return media.PixelFormatNV12
	case astiav.PixelFormatRgba:
		return media.PixelFormatRGBA
	case astiav.PixelFormatBgra:
		return media.PixelFormatBGRA
	default:
		return media.PixelFormatUnknown
	}
}
