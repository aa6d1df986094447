package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/avsync/internal/avsync"
	"github.com/zsiec/avsync/internal/mediacodec"
	"github.com/zsiec/avsync/media"
)

// VideoSource and AudioSource are the capture-side collaborators avsyncd's
// recording mode needs; a real deployment implements them against whatever
// hardware or virtual capture API is available (X11/PipeWire screen capture,
// a webcam device, a virtual audio sink), the same boundary
// SimpleScreenRecorder draws between its GUI/capture layer and its
// Synchronizer core. Neither is implemented here — recording mode reads
// video from a solid test pattern and audio from silence when no real
// source is wired in, purely so the pipeline below has something to run.
type VideoSource interface {
	// NextFrame blocks until a frame is available or ctx is done.
	NextFrame(ctx context.Context) (*media.RawVideoFrame, error)
}

type AudioSource interface {
	// NextBlock blocks until a PCM block is available or ctx is done.
	NextBlock(ctx context.Context) (*media.RawAudioBlock, error)
}

// runRecording wires a video and audio capture source through an
// avsync.Synchronizer into an MP4 file at outputPath, encoding with astiav.
// It runs until ctx is canceled, then flushes and closes the output cleanly
// -- the resynced-recording use case this whole component was built around,
// independent of the SRT/WebTransport server in main.go.
func runRecording(ctx context.Context, outputPath string) error {
	oc, err := astiav.AllocOutputFormatContext(nil, "", outputPath)
	if err != nil || oc == nil {
		return fmt.Errorf("alloc output format context: %w", err)
	}
	defer oc.Free()

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	pb, err := astiav.OpenIOContext(outputPath, ioFlags, nil, nil)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer pb.Close()
	oc.SetPb(pb)

	videoCtx, videoStream, err := newVideoCodec(oc, 1280, 720, 30)
	if err != nil {
		return fmt.Errorf("init video encoder: %w", err)
	}
	defer videoCtx.Free()

	audioCtx, audioStream, err := newAudioCodec(oc, 48000, 2)
	if err != nil {
		return fmt.Errorf("init audio encoder: %w", err)
	}
	defer audioCtx.Free()

	if err := oc.WriteHeader(nil); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	videoEnc := mediacodec.NewVideoEncoder(videoCtx, videoStream, oc)
	audioEnc := mediacodec.NewAudioEncoder(audioCtx, audioStream, oc)

	scaler, err := mediacodec.NewScaler(videoEnc.RequiredWidth(), videoEnc.RequiredHeight(), videoEnc.RequiredPixelFormat())
	if err != nil {
		return fmt.Errorf("init scaler: %w", err)
	}
	defer scaler.Close()

	resampler, err := mediacodec.NewResampler(audioEnc.RequiredSampleRate(), audioEnc.RequiredChannels(), audioEnc.RequiredSampleFormat())
	if err != nil {
		return fmt.Errorf("init resampler: %w", err)
	}
	defer resampler.Close()

	sync, err := avsync.New(avsync.DefaultConfig(), videoEnc, audioEnc, scaler, resampler)
	if err != nil {
		return fmt.Errorf("init synchronizer: %w", err)
	}
	defer sync.Close()

	videoSrc := testPatternSource{}
	audioSrc := silenceSource{}

	g := make(chan error, 2)
	go func() { g <- pumpVideo(ctx, sync, videoSrc) }()
	go func() { g <- pumpAudio(ctx, sync, audioSrc) }()

	<-ctx.Done()
	err1, err2 := <-g, <-g
	sync.NewSegment()
	if err := sync.Close(); err != nil {
		return err
	}
	if err := videoEnc.Flush(); err != nil {
		slog.Error("flush video encoder", "error", err)
	}
	if err := audioEnc.Flush(); err != nil {
		slog.Error("flush audio encoder", "error", err)
	}
	if err := oc.WriteTrailer(); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	if err1 != nil && err1 != context.Canceled {
		return err1
	}
	return err2
}

func pumpVideo(ctx context.Context, sync *avsync.Synchronizer, src VideoSource) error {
	for {
		frame, err := src.NextFrame(ctx)
		if err != nil {
			return err
		}
		sync.ReadVideoFrame(frame.Width, frame.Height, frame.Data, frame.Stride, frame.Format, frame.Timestamp)
	}
}

func pumpAudio(ctx context.Context, sync *avsync.Synchronizer, src AudioSource) error {
	for {
		block, err := src.NextBlock(ctx)
		if err != nil {
			return err
		}
		sync.ReadAudioSamples(block.SampleRate, block.Channels, block.SampleCount(), block.Data, block.Format, block.Timestamp)
	}
}

func newVideoCodec(oc *astiav.FormatContext, width, height, fps int) (*astiav.CodecContext, *astiav.Stream, error) {
	c := astiav.FindEncoder(astiav.CodecIDH264)
	if c == nil {
		return nil, nil, fmt.Errorf("h264 encoder not available")
	}
	ctx := astiav.AllocCodecContext(c)
	if ctx == nil {
		return nil, nil, fmt.Errorf("alloc video codec context")
	}
	ctx.SetWidth(width)
	ctx.SetHeight(height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(1, fps))
	ctx.SetFramerate(astiav.NewRational(fps, 1))
	ctx.SetBitRate(4_000_000)
	if oc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalHeader) {
		ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}
	if err := ctx.Open(c, nil); err != nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("open video codec: %w", err)
	}
	st := oc.NewStream(c)
	if st == nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("new video stream")
	}
	if err := ctx.ToCodecParameters(st.CodecParameters()); err != nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("video codec parameters: %w", err)
	}
	st.SetTimeBase(ctx.TimeBase())
	return ctx, st, nil
}

func newAudioCodec(oc *astiav.FormatContext, sampleRate, channels int) (*astiav.CodecContext, *astiav.Stream, error) {
	c := astiav.FindEncoder(astiav.CodecIDAac)
	if c == nil {
		return nil, nil, fmt.Errorf("aac encoder not available")
	}
	ctx := astiav.AllocCodecContext(c)
	if ctx == nil {
		return nil, nil, fmt.Errorf("alloc audio codec context")
	}
	layout := astiav.ChannelLayoutMono
	if channels == 2 {
		layout = astiav.ChannelLayoutStereo
	}
	ctx.SetChannelLayout(layout)
	ctx.SetSampleRate(sampleRate)
	ctx.SetSampleFormat(astiav.SampleFormatFltP)
	ctx.SetTimeBase(astiav.NewRational(1, sampleRate))
	ctx.SetBitRate(128_000)
	if oc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalHeader) {
		ctx.SetFlags(ctx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}
	if err := ctx.Open(c, nil); err != nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("open audio codec: %w", err)
	}
	st := oc.NewStream(c)
	if st == nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("new audio stream")
	}
	if err := ctx.ToCodecParameters(st.CodecParameters()); err != nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("audio codec parameters: %w", err)
	}
	st.SetTimeBase(ctx.TimeBase())
	return ctx, st, nil
}
