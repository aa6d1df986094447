package mediacodec

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/media"
)

// Scaler converts incoming video frames of varying source dimensions and
// pixel formats to a single fixed destination format, via libswscale.
// Grounded on other_examples/e1z0-QAnotherRTSP__video.go's bgraScaler: the
// scale context is rebuilt lazily whenever the source geometry changes,
// which handles a capture source that changes resolution mid-session
// without the caller having to know about it up front.
type Scaler struct {
	dstWidth, dstHeight int
	dstFormat           astiav.PixelFormat
	dstFormatMedia      media.PixelFormat

	mu     sync.Mutex
	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	srcW   int
	srcH   int
	srcFmt astiav.PixelFormat
}

// NewScaler returns a Scaler producing frames of the given dimensions and
// pixel format, matching whatever a VideoEncoder built alongside it expects.
func NewScaler(width, height int, format media.PixelFormat) (*Scaler, error) {
	dstFmt, err := toAstiavPixelFormat(format)
	if err != nil {
		return nil, err
	}
	return &Scaler{
		dstWidth:       width,
		dstHeight:      height,
		dstFormat:      dstFmt,
		dstFormatMedia: format,
	}, nil
}

// Scale implements avsync.Scaler.
func (s *Scaler) Scale(frame *media.RawVideoFrame) (*media.RawVideoFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcFmt, err := toAstiavPixelFormat(frame.Format)
	if err != nil {
		return nil, err
	}

	src := astiav.AllocFrame()
	if src == nil {
		return nil, fmt.Errorf("mediacodec: alloc source frame")
	}
	defer src.Free()

	src.SetWidth(frame.Width)
	src.SetHeight(frame.Height)
	src.SetPixelFormat(srcFmt)
	if err := src.AllocBuffer(1); err != nil {
		return nil, fmt.Errorf("mediacodec: alloc source buffer: %w", err)
	}
	if _, err := src.ImageCopyFromBuffer(frame.Data, 1); err != nil {
		return nil, fmt.Errorf("mediacodec: copy source image: %w", err)
	}

	if err := s.ensure(frame.Width, frame.Height, srcFmt); err != nil {
		return nil, err
	}
	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("mediacodec: scale frame: %w", err)
	}

	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("mediacodec: image buffer size: %w", err)
	}
	out := make([]byte, n)
	if _, err := s.dst.ImageCopyToBuffer(out, 1); err != nil {
		return nil, fmt.Errorf("mediacodec: copy scaled image: %w", err)
	}

	return &media.RawVideoFrame{
		Width:     s.dstWidth,
		Height:    s.dstHeight,
		Stride:    n / s.dstHeight,
		Format:    s.dstFormatMedia,
		Data:      out,
		Timestamp: frame.Timestamp,
	}, nil
}

// ensure rebuilds the scale context when the source geometry changes. Must
// be called with s.mu held.
func (s *Scaler) ensure(srcW, srcH int, srcFmt astiav.PixelFormat) error {
	if s.ssc != nil && srcW == s.srcW && srcH == s.srcH && srcFmt == s.srcFmt {
		return nil
	}
	s.free()

	ssc, err := astiav.CreateSoftwareScaleContext(
		srcW, srcH, srcFmt,
		s.dstWidth, s.dstHeight, s.dstFormat,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("mediacodec: create scale context: %w", err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(s.dstWidth)
	dst.SetHeight(s.dstHeight)
	dst.SetPixelFormat(s.dstFormat)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("mediacodec: alloc dest buffer: %w", err)
	}

	s.ssc = ssc
	s.dst = dst
	s.srcW, s.srcH, s.srcFmt = srcW, srcH, srcFmt
	return nil
}

func (s *Scaler) free() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

// Close releases the underlying scale context.
func (s *Scaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free()
	return nil
}
