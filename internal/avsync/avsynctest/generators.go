// Package avsynctest generates synthetic raw video and audio content for
// exercising a Synchronizer without a real capture device, the same role
// test/tools/gen-streams plays for the distribution pipeline: known-good
// input so a test can assert on the shape of what comes out the other end
// rather than on frame content it does not control.
package avsynctest

import "math"

// SolidYUV420P returns a width*height YUV420P frame filled with the given
// luma/chroma plane values, sized exactly as width*height*3/2 bytes.
func SolidYUV420P(width, height int, y, u, v byte) []byte {
	ySize := width * height
	data := make([]byte, ySize+ySize/2)
	for i := 0; i < ySize; i++ {
		data[i] = y
	}
	for i := ySize; i < ySize+ySize/4; i++ {
		data[i] = u
	}
	for i := ySize + ySize/4; i < len(data); i++ {
		data[i] = v
	}
	return data
}

// SineWaveS16 returns samples interleaved-multichannel S16 PCM samples of a
// sine wave at freqHz, identical across every channel.
func SineWaveS16(freqHz float64, sampleRate, channels, samples int, amplitude int16) []byte {
	data := make([]byte, samples*channels*2)
	for i := 0; i < samples; i++ {
		v := float64(amplitude) * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate))
		s := int16(v)
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			data[off] = byte(s)
			data[off+1] = byte(s >> 8)
		}
	}
	return data
}

// SilenceS16 returns samples interleaved-multichannel S16 PCM samples that
// are all zero, the same shape SineWaveS16 produces.
func SilenceS16(sampleRate, channels, samples int) []byte {
	return make([]byte, samples*channels*2)
}
