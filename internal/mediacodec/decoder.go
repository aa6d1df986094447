package mediacodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/media"
)

// AudioDecoder implements the decode side of the AAC path encoder.go already
// covers, mirroring the SendPacket/ReceiveFrame loop
// other_examples/obinnaokechukwu-ffgo__avcodec.go drives through raw purego
// bindings (avcodec_send_packet/avcodec_receive_frame), translated onto
// astiav's typed CodecContext instead of that example's manual FFI calls.
type AudioDecoder struct {
	mu       sync.Mutex
	codecCtx *astiav.CodecContext
}

// NewAudioDecoder opens an AAC decoder for the given input stream shape.
// sampleRate and channels describe the encoded bitstream, not any target
// output format -- the decoder reports back whatever native format the
// codec actually produces via the blocks it returns from Decode.
func NewAudioDecoder(sampleRate, channels int) (*AudioDecoder, error) {
	codec := astiav.FindDecoder(astiav.CodecIDAac)
	if codec == nil {
		return nil, fmt.Errorf("mediacodec: aac decoder not available")
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("mediacodec: alloc audio decoder context")
	}
	ctx.SetSampleRate(sampleRate)
	layout := astiav.ChannelLayoutMono
	if channels >= 2 {
		layout = astiav.ChannelLayoutStereo
	}
	ctx.SetChannelLayout(layout)
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("mediacodec: open audio decoder: %w", err)
	}
	return &AudioDecoder{codecCtx: ctx}, nil
}

// Decode feeds one ADTS AAC access unit to the decoder and returns every PCM
// block it produced. AAC's decode pipeline can hold frames back for a short
// startup delay, so a single call may return zero blocks; RTP/TS timestamp
// is not tracked per output block here, hence the explicit timestamp
// parameter stamped onto every block this call does produce.
func (d *AudioDecoder) Decode(data []byte, timestamp int64) ([]*media.RawAudioBlock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	if err := pkt.FromData(data); err != nil {
		return nil, fmt.Errorf("mediacodec: load audio packet: %w", err)
	}

	if err := d.codecCtx.SendPacket(pkt); err != nil {
		return nil, fmt.Errorf("mediacodec: send audio packet: %w", err)
	}

	var blocks []*media.RawAudioBlock
	for {
		f := astiav.AllocFrame()
		err := d.codecCtx.ReceiveFrame(f)
		if err != nil {
			f.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return blocks, nil
			}
			return blocks, fmt.Errorf("mediacodec: receive audio frame: %w", err)
		}
		block, err := audioBlockFromFrame(f, timestamp)
		f.Free()
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, block)
	}
}

func audioBlockFromFrame(f *astiav.Frame, timestamp int64) (*media.RawAudioBlock, error) {
	format := f.SampleFormat()
	channels := f.ChannelLayout().Channels()
	buf := make([]byte, f.NbSamples()*channels*bytesPerAstiavSample(format))
	if _, err := f.SamplesCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("mediacodec: copy decoded samples: %w", err)
	}
	return &media.RawAudioBlock{
		SampleRate: f.SampleRate(),
		Channels:   channels,
		Format:     mediaSampleFormatOf(format),
		Data:       buf,
		Timestamp:  timestamp,
	}, nil
}

// Close releases the underlying codec context.
func (d *AudioDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.codecCtx != nil {
		d.codecCtx.Free()
		d.codecCtx = nil
	}
	return nil
}
