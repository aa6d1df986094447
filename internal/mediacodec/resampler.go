package mediacodec

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/media"
)

// Resampler converts incoming PCM blocks to a fixed destination sample
// rate, channel layout and sample format via libswresample, optionally
// perturbing the output rate to absorb clock drift. Grounded on
// other_examples/sonroyaalmerol-kumabot__pcm.go's PCMStreamer: the resample
// context self-configures from the first ConvertFrame call and is reused
// across blocks rather than reallocated per call.
type Resampler struct {
	dstRate     int
	dstChannels int
	dstFormat   astiav.SampleFormat
	dstLayout   astiav.ChannelLayout

	mu        sync.Mutex
	swr       *astiav.SoftwareResampleContext
	dst       *astiav.Frame
	srcRate   int
	srcLayout astiav.ChannelLayout
	srcFormat astiav.SampleFormat
	lastRatio float64
}

// NewResampler returns a Resampler producing blocks at the given rate,
// channel count and sample format, matching whatever an AudioEncoder built
// alongside it requires.
func NewResampler(rate, channels int, format media.SampleFormat) (*Resampler, error) {
	dstFmt, err := toAstiavSampleFormat(format)
	if err != nil {
		return nil, err
	}
	layout := astiav.ChannelLayoutMono
	if channels == 2 {
		layout = astiav.ChannelLayoutStereo
	}
	return &Resampler{
		dstRate:     rate,
		dstChannels: channels,
		dstFormat:   dstFmt,
		dstLayout:   layout,
	}, nil
}

// Resample implements avsync.Resampler. ratio perturbs the destination
// sample rate presented to swresample by (1+ratio), which is how libswresample
// documents absorbing a clock drift correction without a discontinuity in
// the output stream.
func (r *Resampler) Resample(block *media.RawAudioBlock, ratio float64) (*media.RawAudioBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcFmt, err := toAstiavSampleFormat(block.Format)
	if err != nil {
		return nil, err
	}
	srcLayout := astiav.ChannelLayoutMono
	if block.Channels == 2 {
		srcLayout = astiav.ChannelLayoutStereo
	}

	src := astiav.AllocFrame()
	if src == nil {
		return nil, fmt.Errorf("mediacodec: alloc source frame")
	}
	defer src.Free()

	src.SetSampleRate(block.SampleRate)
	src.SetChannelLayout(srcLayout)
	src.SetSampleFormat(srcFmt)
	src.SetNbSamples(block.SampleCount())
	if err := src.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("mediacodec: alloc source samples: %w", err)
	}
	if _, err := src.SamplesCopyFromBuffer(block.Data, 1); err != nil {
		return nil, fmt.Errorf("mediacodec: copy source samples: %w", err)
	}

	if err := r.ensure(block.SampleRate, srcLayout, srcFmt); err != nil {
		return nil, err
	}
	if ratio != r.lastRatio {
		effectiveRate := int(float64(r.dstRate) * (1 + ratio))
		r.swr.SetCompensation(effectiveRate-r.dstRate, r.dstRate)
		r.lastRatio = ratio
	}

	estimate := int((int64(block.SampleCount())*int64(r.dstRate) + int64(block.SampleRate) - 1) / int64(block.SampleRate))
	if estimate <= 0 {
		estimate = 1
	}
	r.dst.Unref()
	r.dst.SetSampleRate(r.dstRate)
	r.dst.SetChannelLayout(r.dstLayout)
	r.dst.SetSampleFormat(r.dstFormat)
	r.dst.SetNbSamples(estimate)
	if err := r.dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("mediacodec: alloc dest samples: %w", err)
	}
	if err := r.swr.ConvertFrame(src, r.dst); err != nil {
		return nil, fmt.Errorf("mediacodec: resample: %w", err)
	}

	nb := r.dst.NbSamples()
	if nb <= 0 {
		return &media.RawAudioBlock{
			SampleRate: r.dstRate, Channels: r.dstChannels, Format: media.SampleFormatS16,
			Timestamp: block.Timestamp,
		}, nil
	}
	total := nb * r.dstChannels * bytesPerAstiavSample(r.dstFormat)
	out := make([]byte, total)
	if _, err := r.dst.SamplesCopyToBuffer(out, 1); err != nil {
		return nil, fmt.Errorf("mediacodec: copy resampled samples: %w", err)
	}

	return &media.RawAudioBlock{
		SampleRate: r.dstRate,
		Channels:   r.dstChannels,
		Format:     mediaSampleFormatOf(r.dstFormat),
		Data:       out,
		Timestamp:  block.Timestamp,
	}, nil
}

// ensure (re)allocates the resample context and reusable destination frame
// when the source format changes. Must be called with r.mu held.
func (r *Resampler) ensure(srcRate int, srcLayout astiav.ChannelLayout, srcFormat astiav.SampleFormat) error {
	if r.swr != nil && srcRate == r.srcRate && srcLayout == r.srcLayout && srcFormat == r.srcFormat {
		return nil
	}
	r.free()

	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return fmt.Errorf("mediacodec: alloc resample context")
	}
	r.swr = swr
	r.dst = astiav.AllocFrame()
	r.srcRate, r.srcLayout, r.srcFormat = srcRate, srcLayout, srcFormat
	r.lastRatio = 0
	return nil
}

func (r *Resampler) free() {
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
}

// Close releases the underlying resample context.
func (r *Resampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.free()
	return nil
}

func bytesPerAstiavSample(f astiav.SampleFormat) int {
	switch f {
	case astiav.SampleFormatS16, astiav.SampleFormatS16P:
		return 2
	case astiav.SampleFormatS32, astiav.SampleFormatS32P, astiav.SampleFormatFlt, astiav.SampleFormatFltP:
		return 4
	default:
		return 2
	}
}

func mediaSampleFormatOf(f astiav.SampleFormat) media.SampleFormat {
	switch f {
	case astiav.SampleFormatS16, astiav.SampleFormatS16P:
		return media.SampleFormatS16
	case astiav.SampleFormatS32, astiav.SampleFormatS32P:
		return media.SampleFormatS32
	case astiav.SampleFormatFlt, astiav.SampleFormatFltP:
		return media.SampleFormatFloat32
	default:
		return media.SampleFormatUnknown
	}
}
