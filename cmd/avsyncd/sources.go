package main

import (
	"context"
	"sync"
	"time"

	"github.com/zsiec/avsync/media"
)

// testPatternSource and silenceSource are placeholder VideoSource/
// AudioSource implementations used when avsyncd is run without a real
// capture backend wired in -- enough to exercise the full ingest/drift/
// flush/encode path end to end. Grounded on
// test/tools/gen-streams's role in this codebase (synthetic content for
// exercising the pipeline), generalized from pre-rendered test films to a
// live, timestamped generator since avsync's whole point is reacting to
// wall-clock arrival time.
type testPatternSource struct {
	once  sync.Once
	start time.Time

	width, height int
	frame         int64
	period        time.Duration
}

func (s *testPatternSource) init() {
	s.once.Do(func() {
		s.start = time.Now()
		s.width, s.height = 1280, 720
		s.period = time.Second / 30
	})
}

// NextFrame implements VideoSource, pacing itself to the configured frame
// rate and returning a flat gray YUV420P frame stamped with elapsed
// wall-clock microseconds since the source started.
func (s *testPatternSource) NextFrame(ctx context.Context) (*media.RawVideoFrame, error) {
	s.init()
	s.frame++
	target := s.start.Add(time.Duration(s.frame) * s.period)
	if d := time.Until(target); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	ySize := s.width * s.height
	data := make([]byte, ySize+ySize/2)
	for i := 0; i < ySize; i++ {
		data[i] = 96
	}
	for i := ySize; i < len(data); i++ {
		data[i] = 128
	}

	return &media.RawVideoFrame{
		Width:     s.width,
		Height:    s.height,
		Stride:    s.width,
		Format:    media.PixelFormatYUV420P,
		Data:      data,
		Timestamp: time.Since(s.start).Microseconds(),
	}, nil
}

type silenceSource struct {
	once       sync.Once
	start      time.Time
	sampleRate int
	channels   int
	blockSize  int
	produced   int64
}

func (s *silenceSource) init() {
	s.once.Do(func() {
		s.start = time.Now()
		s.sampleRate = 48000
		s.channels = 2
		s.blockSize = 960
	})
}

// NextBlock implements AudioSource, pacing itself so blockSize samples are
// produced roughly every blockSize/sampleRate seconds, matching a live
// capture device's cadence.
func (s *silenceSource) NextBlock(ctx context.Context) (*media.RawAudioBlock, error) {
	s.init()
	target := s.start.Add(time.Duration(s.produced) * time.Second / time.Duration(s.sampleRate))
	if d := time.Until(target); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	timestamp := s.produced * 1_000_000 / int64(s.sampleRate)
	s.produced += int64(s.blockSize)

	return &media.RawAudioBlock{
		SampleRate: s.sampleRate,
		Channels:   s.channels,
		Format:     media.SampleFormatS16,
		Data:       make([]byte, s.blockSize*s.channels*2),
		Timestamp:  timestamp,
	}, nil
}
