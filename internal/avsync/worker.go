package avsync

import (
	"math"
	"time"

	"github.com/zsiec/avsync/media"
)

// run is the emit worker's loop, started as a goroutine by New and stopped
// by Close. Each iteration acquires s.mu, decides whether there is a window
// of buffered data ready to flush, mutates the shared state to build a list
// of encoder jobs, releases s.mu, then calls the encoders outside any lock.
// Bookkeeping (videoPTS, audioSamples, ring buffer contents) is updated
// while still holding s.mu, before the encoder calls run — an encoder
// failure is fatal and tears the whole session down, so there is nothing to
// roll back if a call after the first job in a batch fails.
func (s *Synchronizer) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.mu.Lock()
		start, stop, ok := s.segmentWindowLocked()
		if !ok || stop < start+s.cfg.framePeriodUS() {
			s.mu.Unlock()
			s.sleepOrStop()
			continue
		}

		videoJobs := s.flushVideoLocked(stop)
		audioJobs := s.flushAudioLocked(start, stop)
		draining := s.shared.phase == phaseDraining
		buffersEmpty := s.shared.videoBuf.Len() == 0 &&
			(s.shared.audioBuf == nil || s.shared.audioBuf.Samples() == 0)
		if draining && buffersEmpty {
			if final := s.finalizeAudioSegmentLocked(); final != nil {
				audioJobs = append(audioJobs, final)
			}
		}
		drained := buffersEmpty && s.shared.partialAudioSamples == 0
		s.mu.Unlock()

		if !s.runJobs(videoJobs, audioJobs) {
			return
		}

		if dt := float64(stop-start) / 1e6; dt > 0 {
			s.mu.Lock()
			s.applyEmittedDesyncCorrectionLocked(dt)
			s.mu.Unlock()
		}

		if draining && drained {
			s.mu.Lock()
			s.shared.timeOffset += stop - start
			s.shared.resetSegment()
			s.transition(phaseWaitingForBothStreams)
			s.mu.Unlock()
		}
	}
}

// sleepOrStop sleeps for cfg.IdleSleep or returns early if Close is called,
// so shutdown never waits out a full idle period.
func (s *Synchronizer) sleepOrStop() {
	timer := time.NewTimer(s.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopCh:
	}
}

// runJobs calls the video and audio encoders for the given jobs, in order.
// It reports false (and sets errOccurred) if any encoder call fails.
func (s *Synchronizer) runJobs(videoJobs []*media.RawVideoFrame, audioJobs []*media.RawAudioBlock) bool {
	for _, frame := range videoJobs {
		if err := s.videoEncoder.EncodeFrame(frame); err != nil {
			s.log.Error("video encoder failed, stopping synchronizer", "error", err)
			s.errOccurred.Store(true)
			return false
		}
	}
	for _, block := range audioJobs {
		if err := s.audioEncoder.EncodeFrame(block); err != nil {
			s.log.Error("audio encoder failed, stopping synchronizer", "error", err)
			s.errOccurred.Store(true)
			return false
		}
	}
	return true
}

// flushVideoLocked pops video frames whose timestamp falls within the
// current window, deciding for each buffered frame whether to drop it (the
// buffer underran and its target PTS has already passed), duplicate the
// last emitted frame to fill a gap, or hand it to the encoder as-is. Must be
// called with s.mu held.
func (s *Synchronizer) flushVideoLocked(segStop int64) []*media.RawVideoFrame {
	if s.videoEncoder == nil {
		return nil
	}
	var jobs []*media.RawVideoFrame
	duplicated := int64(0)
	for {
		front := s.shared.videoBuf.Front()
		if front == nil || front.Timestamp > segStop {
			return jobs
		}

		targetPTS := roundPTS(front.Timestamp-s.shared.videoStartTime+s.shared.timeOffset, s.cfg.FrameRate)
		switch {
		case targetPTS < s.shared.videoPTS:
			if !s.cfg.AllowFrameSkipping {
				return jobs // stall until the encoder catches up
			}
			s.shared.videoBuf.PopFront() // buffer underran; too late to emit

		case targetPTS > s.shared.videoPTS+1:
			if duplicated >= s.cfg.MaxFrameDelay || s.shared.lastVideoFrameData == nil {
				return jobs
			}
			dup := s.shared.cloneLastVideoFrame(s.shared.lastVideoFrameData.Timestamp)
			jobs = append(jobs, dup)
			s.shared.videoPTS++
			s.shared.videoAccumulatedDelay += s.cfg.framePeriodUS()
			duplicated++

		default:
			frame := s.shared.videoBuf.PopFront()
			jobs = append(jobs, frame)
			s.shared.videoPTS++
			s.shared.lastVideoFrameData = frame
		}
	}
}

// flushAudioLocked consumes audio samples that fall within [segStart,
// segStop), discarding leading samples on the first-ever emission to align
// with segStart, packaging exact-size encoder frames from the ring buffer
// plus any carried-over partial frame, and stashing a new partial frame
// from whatever remains. Must be called with s.mu held.
func (s *Synchronizer) flushAudioLocked(segStart, segStop int64) []*media.RawAudioBlock {
	if s.audioEncoder == nil || s.shared.audioBuf == nil {
		return nil
	}
	buf := s.shared.audioBuf

	if s.shared.audioCanDrop && buf.Samples() > 0 {
		if skip := samplesBetween(buf.HeadTimestamp(), segStart, s.audioRequiredSampleRate); skip > 0 {
			if skip > buf.Samples() {
				skip = buf.Samples()
			}
			buf.Consume(skip)
			s.shared.audioSamplesRead += int64(skip)
		}
	}

	var jobs []*media.RawAudioBlock
	for {
		windowSamples := clampSamples(samplesBetween(buf.HeadTimestamp(), segStop, s.audioRequiredSampleRate), buf.Samples())
		needed := s.audioRequiredFrameSize - s.shared.partialAudioSamples
		if windowSamples < needed {
			break
		}
		chunk := buf.Consume(needed)
		s.shared.audioSamplesRead += int64(needed)

		data := make([]byte, 0, len(s.shared.partialAudio)+len(chunk))
		data = append(data, s.shared.partialAudio...)
		data = append(data, chunk...)
		s.shared.partialAudio = nil
		s.shared.partialAudioSamples = 0

		jobs = append(jobs, &media.RawAudioBlock{
			SampleRate: s.audioRequiredSampleRate,
			Channels:   s.audioRequiredChannels,
			Format:     s.audioRequiredFormat,
			Data:       data,
		})
		s.shared.audioSamples += int64(s.audioRequiredFrameSize)
		s.shared.audioCanDrop = false
	}

	if remaining := clampSamples(samplesBetween(buf.HeadTimestamp(), segStop, s.audioRequiredSampleRate), buf.Samples()); remaining > 0 {
		extra := buf.Consume(remaining)
		s.shared.audioSamplesRead += int64(remaining)
		s.shared.partialAudio = append(s.shared.partialAudio, extra...)
		s.shared.partialAudioSamples += remaining
	}
	return jobs
}

// finalizeAudioSegmentLocked pads a leftover partial audio frame with
// silence to audioRequiredFrameSize (or, in the pathological case that it
// somehow holds a full frame or more, truncates it), so a segment never
// closes with samples stashed for concatenation onto whatever segment comes
// next. required_frame_size rarely divides a segment's duration evenly, so
// without this the ring buffer's last few samples would otherwise sit in
// partialAudio across the Draining->Closed boundary and get silently
// spliced onto the following segment's first real samples in
// flushAudioLocked, producing one encoder frame that spans the pause with
// no silence and a PTS the encoder treats as perfectly continuous. Returns
// nil if there is nothing to flush. Must be called with s.mu held.
func (s *Synchronizer) finalizeAudioSegmentLocked() *media.RawAudioBlock {
	if s.audioEncoder == nil || s.shared.partialAudioSamples == 0 {
		return nil
	}
	frameBytes := s.audioRequiredChannels * s.audioRequiredFormat.BytesPerSample()
	data := s.shared.partialAudio
	switch {
	case s.shared.partialAudioSamples < s.audioRequiredFrameSize:
		pad := (s.audioRequiredFrameSize - s.shared.partialAudioSamples) * frameBytes
		data = append(data, make([]byte, pad)...)
	case s.shared.partialAudioSamples > s.audioRequiredFrameSize:
		data = data[:s.audioRequiredFrameSize*frameBytes]
	}

	block := &media.RawAudioBlock{
		SampleRate: s.audioRequiredSampleRate,
		Channels:   s.audioRequiredChannels,
		Format:     s.audioRequiredFormat,
		Data:       data,
	}
	s.shared.audioSamples += int64(s.audioRequiredFrameSize)
	s.shared.partialAudio = nil
	s.shared.partialAudioSamples = 0
	return block
}

// EmittedDesyncSeconds returns the signed difference between emitted-video
// and emitted-audio wall-clock position, in seconds, as of the last flush.
func (s *Synchronizer) EmittedDesyncSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emittedDesyncSecondsLocked()
}

func (s *Synchronizer) emittedDesyncSecondsLocked() float64 {
	if s.videoEncoder == nil || s.audioEncoder == nil {
		return 0
	}
	videoSeconds := float64(s.shared.videoPTS) / s.cfg.FrameRate
	audioSamplesEmitted := s.shared.audioSamples + int64(s.shared.partialAudioSamples)
	audioSeconds := float64(audioSamplesEmitted) / float64(s.audioRequiredSampleRate)
	return videoSeconds - audioSeconds
}

// applyEmittedDesyncCorrectionLocked is the flush-time half of the drift
// feedback loop: ReadAudioSamples already feeds the PI controller from the
// ingest-side arrival-time error, but that alone doesn't see backpressure
// introduced by buffer overflow drops or gap-fill duplication downstream of
// ingest. Feeding the actual emitted audio/video position difference back
// into the same controller after every flush closes that gap, at the cost
// of only applying with a flush-cycle's worth of lag. A no-op when either
// stream is disabled, since desync against a nonexistent stream is
// meaningless. Must be called with s.mu held.
func (s *Synchronizer) applyEmittedDesyncCorrectionLocked(dt float64) {
	if s.videoEncoder == nil || s.audioEncoder == nil {
		return
	}
	measured := s.emittedDesyncSecondsLocked()
	if _, excursion := s.shared.drift.Update(measured, dt); excursion && !s.shared.warnDesync {
		s.shared.warnDesync = true
		s.log.Warn("audio/video desync exceeds threshold after flush", "desync_seconds", s.shared.drift.Desync())
	}
}

// roundPTS converts a segment-local offset in microseconds to a frame
// index at the given frame rate, rounding to the nearest frame.
func roundPTS(deltaUS int64, frameRate float64) int64 {
	return int64(math.Round(float64(deltaUS) * frameRate / 1e6))
}

// samplesBetween returns the number of samples at sampleRate spanned by
// [fromUS, toUS), which may be negative if toUS precedes fromUS.
func samplesBetween(fromUS, toUS int64, sampleRate int) int {
	return int((toUS - fromUS) * int64(sampleRate) / 1e6)
}

// clampSamples clamps n to [0, max].
func clampSamples(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
