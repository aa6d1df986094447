package mediacodec

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/media"
)

func toAstiavPixelFormat(f media.PixelFormat) (astiav.PixelFormat, error) {
	switch f {
	case media.PixelFormatYUV420P:
		return astiav.PixelFormatYuv420P, nil
	case media.PixelFormatNV12:
		return astiav.PixelFormatNv12, nil
	case media.PixelFormatRGBA:
		return astiav.PixelFormatRgba, nil
	case media.PixelFormatBGRA:
		return astiav.PixelFormatBgra, nil
	default:
		return astiav.PixelFormatNone, fmt.Errorf("mediacodec: unsupported pixel format %v", f)
	}
}

func toAstiavSampleFormat(f media.SampleFormat) (astiav.SampleFormat, error) {
	switch f {
	case media.SampleFormatS16:
		return astiav.SampleFormatS16, nil
	case media.SampleFormatS32:
		return astiav.SampleFormatS32, nil
	case media.SampleFormatFloat32:
		return astiav.SampleFormatFlt, nil
	default:
		return astiav.SampleFormatNone, fmt.Errorf("mediacodec: unsupported sample format %v", f)
	}
}
