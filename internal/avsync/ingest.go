package avsync

import "github.com/zsiec/avsync/media"

// GetNextVideoTimestamp returns the earliest capture timestamp the next
// video frame may have, letting a capture source skip frames it knows will
// be discarded.
func (s *Synchronizer) GetNextVideoTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shared.videoStarted {
		return 0
	}
	return max64(s.shared.videoLastTimestamp+s.cfg.framePeriodUS(), s.shared.videoStopTime)
}

// ReadVideoFrame accepts a captured video frame, borrowed for the duration
// of the call.
func (s *Synchronizer) ReadVideoFrame(width, height int, data []byte, stride int, format media.PixelFormat, timestamp int64) {
	if s.videoEncoder == nil {
		return
	}

	s.mu.Lock()
	if !s.shared.videoStarted {
		s.shared.videoStartTime = timestamp
		s.shared.videoStopTime = timestamp
		s.shared.videoStarted = true
		s.shared.videoLastTimestamp = timestamp
		s.maybeStartRunning()
	} else {
		if timestamp < s.shared.videoLastTimestamp {
			s.mu.Unlock()
			return // late arrival
		}
		s.fillVideoGapLocked(timestamp)
	}
	s.mu.Unlock()

	frame := &media.RawVideoFrame{
		Width: width, Height: height, Stride: stride,
		Format: format, Data: data, Timestamp: timestamp,
	}
	scaled, err := s.scaleFrame(frame)
	if err != nil {
		s.log.Warn("scaling video frame failed, dropping", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dropped := s.shared.videoBuf.Push(scaled); dropped {
		s.warnDropVideoLocked()
	}
	if timestamp > s.shared.videoLastTimestamp {
		s.shared.videoLastTimestamp = timestamp
	}
	if timestamp > s.shared.videoStopTime {
		s.shared.videoStopTime = timestamp
	}
}

// fillVideoGapLocked synthesizes duplicate frames when the gap since the
// last accepted frame exceeds two frame periods, cloning the last emitted
// frame's pixel data at evenly spaced timestamps up to (but not including)
// timestamp, capped at MaxFrameDelay frames. Must be
// called with s.mu held.
func (s *Synchronizer) fillVideoGapLocked(timestamp int64) {
	period := s.cfg.framePeriodUS()
	if timestamp-s.shared.videoLastTimestamp <= 2*period {
		return
	}
	if s.shared.lastVideoFrameData == nil {
		return
	}
	t := s.shared.videoLastTimestamp + period
	for count := int64(0); t < timestamp && count < s.cfg.MaxFrameDelay; count++ {
		clone := s.shared.cloneLastVideoFrame(t)
		if dropped := s.shared.videoBuf.Push(clone); dropped {
			s.warnDropVideoLocked()
		}
		t += period
	}
}

func (s *Synchronizer) warnDropVideoLocked() {
	if s.shared.warnDropVideo {
		return
	}
	s.shared.warnDropVideo = true
	s.log.Warn("dropping video frames: consumer cannot keep up")
}

// ReadVideoPing advances video_stop_time without enqueuing a frame, keeping
// the common stop time moving forward while capture is quiet but healthy.
func (s *Synchronizer) ReadVideoPing(timestamp int64) {
	if s.videoEncoder == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if timestamp > s.shared.videoStopTime {
		s.shared.videoStopTime = timestamp
	}
}

// ReadAudioSamples accepts a captured PCM block, borrowed for the duration
// of the call. timestamp is the wall-clock time of the first sample.
func (s *Synchronizer) ReadAudioSamples(sampleRate, channels, sampleCount int, data []byte, format media.SampleFormat, timestamp int64) {
	if s.audioEncoder == nil {
		return
	}
	blockDurationSec := float64(sampleCount) / float64(sampleRate)

	s.mu.Lock()
	isFirst := !s.shared.audioStarted
	if isFirst {
		s.shared.audioStartTime = timestamp
		s.shared.audioStopTime = timestamp
		s.shared.audioStarted = true
		s.shared.audioLastTimestamp = timestamp
		s.maybeStartRunning()
	} else {
		s.fillAudioGapLocked(timestamp, blockDurationSec)

		expected := s.shared.audioStartTime + s.shared.audioSamplesRead*1e6/int64(s.audioRequiredSampleRate)
		measured := float64(timestamp-expected) / 1e6
		_, excursion := s.shared.drift.Update(measured, blockDurationSec)
		if excursion && !s.shared.warnDesync {
			s.shared.warnDesync = true
			s.log.Warn("audio/video desync exceeds threshold", "desync_seconds", s.shared.drift.Desync())
		}
	}
	ratio := s.shared.drift.Ratio()
	s.mu.Unlock()

	block := &media.RawAudioBlock{
		SampleRate: sampleRate, Channels: channels, Format: format,
		Data: data, Timestamp: timestamp,
	}
	resampled, err := s.resampleBlock(block, ratio)
	if err != nil {
		s.log.Warn("resampling audio block failed, dropping", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared.audioBuf.Append(resampled)
	if dropped := s.shared.audioBuf.DropOverflow(); dropped > 0 {
		s.shared.audioSamplesRead += int64(dropped)
	}
	if timestamp > s.shared.audioLastTimestamp {
		s.shared.audioLastTimestamp = timestamp
	}
	if timestamp > s.shared.audioStopTime {
		s.shared.audioStopTime = timestamp
	}
}

// fillAudioGapLocked inserts silence, already in the encoder's required
// format, when the incoming timestamp implies data was lost since the last
// accepted block. A gap over one second is a capture fault: it is logged
// once but still filled, keeping the output timeline monotone. Must be
// called with s.mu held.
func (s *Synchronizer) fillAudioGapLocked(timestamp int64, blockDurationSec float64) {
	blockPeriod := int64(blockDurationSec * 1e6)
	gap := timestamp - s.shared.audioLastTimestamp
	if gap <= blockPeriod {
		return
	}
	if gap > 1_000_000 {
		s.log.Warn("audio capture gap exceeds one second, filling with silence", "gap_us", gap)
	}
	samples := int(gap) * s.audioRequiredSampleRate / 1e6
	if samples <= 0 {
		return
	}
	frameBytes := s.audioRequiredChannels * s.audioRequiredFormat.BytesPerSample()
	silence := &media.RawAudioBlock{
		SampleRate: s.audioRequiredSampleRate,
		Channels:   s.audioRequiredChannels,
		Format:     s.audioRequiredFormat,
		Data:       make([]byte, samples*frameBytes),
		Timestamp:  s.shared.audioLastTimestamp,
	}
	s.shared.audioBuf.Append(silence)
}

// ReadAudioHole signals that the audio source lost an unknown amount of
// data. If no audio has been handed to the encoder yet this segment
// (audio_can_drop), the buffered lead-in is discarded and the next real
// block re-establishes the segment's audio start time — a discontinuity
// realigned to whatever video position exists when audio resumes. Otherwise
// the hole is a no-op here: the next ReadAudioSamples call will observe a
// timestamp gap and zero-pad through fillAudioGapLocked.
func (s *Synchronizer) ReadAudioHole() {
	if s.audioEncoder == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shared.audioStarted || !s.shared.audioCanDrop {
		return
	}
	if n := s.shared.audioBuf.Samples(); n > 0 {
		s.shared.audioBuf.Consume(n)
		s.shared.audioSamplesRead += int64(n)
	}
	s.shared.audioStarted = false
}

// scaleFrame converts frame to the encoder's configured pixel format under
// the scaler's own mutex, separate from the shared-state lock.
func (s *Synchronizer) scaleFrame(frame *media.RawVideoFrame) (*media.RawVideoFrame, error) {
	s.scalerMu.Lock()
	defer s.scalerMu.Unlock()
	return s.scaler.Scale(frame)
}

// resampleBlock converts block to the encoder's required format under the
// resampler's own mutex, separate from the shared-state lock.
func (s *Synchronizer) resampleBlock(block *media.RawAudioBlock, ratio float64) (*media.RawAudioBlock, error) {
	s.resamplerMu.Lock()
	defer s.resamplerMu.Unlock()
	return s.resampler.Resample(block, ratio)
}
