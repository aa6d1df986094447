package pipeline

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/internal/avsync"
	"github.com/zsiec/avsync/internal/mediacodec"
	"github.com/zsiec/avsync/media"
)

// audioResync decodes ingested ADTS AAC audio to PCM, runs it through an
// audio-only avsync.Synchronizer to correct drift against the video clock,
// and re-encodes the corrected PCM back to AAC before forwarding to the
// relay. The Synchronizer's video side is left disabled (nil encoder and
// scaler): a single ingested video stream has no independent second stream
// to drift against, so a live SRT source only benefits from resyncing its
// audio track relative to the video timestamps already carried on it.
type audioResync struct {
	decoder *mediacodec.AudioDecoder
	encoder *mediacodec.AudioEncoder
	resamp  *mediacodec.Resampler
	sync    *avsync.Synchronizer
	oc      *astiav.FormatContext
	encCtx  *astiav.CodecContext
	frames  chan *media.AudioFrame
}

// relayMuxer adapts mediacodec.Muxer into media.AudioFrame values queued for
// the pipeline to forward, in place of writing into a real container.
type relayMuxer struct {
	frames chan *media.AudioFrame
}

func (m *relayMuxer) WriteInterleavedFrame(pkt *astiav.Packet) error {
	data := make([]byte, len(pkt.Data()))
	copy(data, pkt.Data())
	select {
	case m.frames <- &media.AudioFrame{Data: data, PTS: pkt.Pts()}:
	default:
	}
	return nil
}

// newAudioResync opens a decode/resync/encode chain shaped for the given
// input sample rate and channel count, as reported by the first demuxed
// audio frame of a stream.
func newAudioResync(sampleRate, channels int) (*audioResync, error) {
	decoder, err := mediacodec.NewAudioDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	oc, err := astiav.AllocOutputFormatContext(nil, "adts", "")
	if err != nil || oc == nil {
		decoder.Close()
		return nil, fmt.Errorf("pipeline: alloc resync output context: %w", err)
	}

	codec := astiav.FindEncoder(astiav.CodecIDAac)
	if codec == nil {
		oc.Free()
		decoder.Close()
		return nil, fmt.Errorf("pipeline: aac encoder not available")
	}
	encCtx := astiav.AllocCodecContext(codec)
	if encCtx == nil {
		oc.Free()
		decoder.Close()
		return nil, fmt.Errorf("pipeline: alloc resync encoder context")
	}
	layout := astiav.ChannelLayoutMono
	if channels >= 2 {
		layout = astiav.ChannelLayoutStereo
	}
	encCtx.SetChannelLayout(layout)
	encCtx.SetSampleRate(sampleRate)
	encCtx.SetSampleFormat(astiav.SampleFormatFltP)
	encCtx.SetTimeBase(astiav.NewRational(1, sampleRate))
	encCtx.SetBitRate(128_000)
	if err := encCtx.Open(codec, nil); err != nil {
		encCtx.Free()
		oc.Free()
		decoder.Close()
		return nil, fmt.Errorf("pipeline: open resync encoder: %w", err)
	}

	st := oc.NewStream(codec)
	if st == nil {
		encCtx.Free()
		oc.Free()
		decoder.Close()
		return nil, fmt.Errorf("pipeline: alloc resync stream")
	}
	st.SetTimeBase(encCtx.TimeBase())

	frames := make(chan *media.AudioFrame, 32)
	encoder := mediacodec.NewAudioEncoder(encCtx, st, &relayMuxer{frames: frames})

	resamp, err := mediacodec.NewResampler(encoder.RequiredSampleRate(), encoder.RequiredChannels(), encoder.RequiredSampleFormat())
	if err != nil {
		encCtx.Free()
		oc.Free()
		decoder.Close()
		return nil, err
	}

	sy, err := avsync.New(avsync.DefaultConfig(), nil, encoder, nil, resamp)
	if err != nil {
		resamp.Close()
		encCtx.Free()
		oc.Free()
		decoder.Close()
		return nil, err
	}

	return &audioResync{
		decoder: decoder,
		encoder: encoder,
		resamp:  resamp,
		sync:    sy,
		oc:      oc,
		encCtx:  encCtx,
		frames:  frames,
	}, nil
}

// Push decodes one incoming AAC frame and feeds its PCM to the Synchronizer.
// Resynced, re-encoded frames ready for the relay are returned, if any
// finished draining out of the encoder as a side effect of this call.
func (a *audioResync) Push(frame *media.AudioFrame) ([]*media.AudioFrame, error) {
	blocks, err := a.decoder.Decode(frame.Data, frame.PTS)
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode audio for resync: %w", err)
	}
	for _, block := range blocks {
		a.sync.ReadAudioSamples(block.SampleRate, block.Channels, block.SampleCount(), block.Data, block.Format, block.Timestamp)
	}
	return a.drain(), nil
}

func (a *audioResync) drain() []*media.AudioFrame {
	var out []*media.AudioFrame
	for {
		select {
		case f := <-a.frames:
			out = append(out, f)
		default:
			return out
		}
	}
}

// Close tears down the decode/resync/encode chain, flushing any audio the
// encoder was still holding onto.
func (a *audioResync) Close() error {
	if err := a.sync.Close(); err != nil {
		return err
	}
	if err := a.encoder.Flush(); err != nil {
		return err
	}
	a.resamp.Close()
	a.decoder.Close()
	a.encCtx.Free()
	a.oc.Free()
	return nil
}
