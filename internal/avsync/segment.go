package avsync

// segmentPhase enumerates the lifecycle of a recording segment. Transitions:
//
//	Idle -> WaitingForBothStreams: segment created (construction, or
//	  NewSegment after a non-empty previous segment).
//	WaitingForBothStreams -> Running: every enabled stream has reported its
//	  first input (a disabled stream counts as satisfied immediately).
//	Running -> Draining: NewSegment called while the segment holds data.
//	Draining -> Closed: the emit worker has flushed everything up to the
//	  frozen common stop time; time_offset advances, buffers clear, PI state
//	  resets, and a new WaitingForBothStreams segment begins immediately.
type segmentPhase int

const (
	phaseIdle segmentPhase = iota
	phaseWaitingForBothStreams
	phaseRunning
	phaseDraining
	phaseClosed
)

func (p segmentPhase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseWaitingForBothStreams:
		return "waiting"
	case phaseRunning:
		return "running"
	case phaseDraining:
		return "draining"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transition moves to next, logging the change at debug level. Called only
// while s.mu is held.
func (s *Synchronizer) transition(next segmentPhase) {
	if s.shared.phase == next {
		return
	}
	s.log.Debug("segment phase transition", "from", s.shared.phase, "to", next)
	s.shared.phase = next
}

// bothStreamsStarted reports whether every enabled stream has accepted its
// first input, the condition for WaitingForBothStreams -> Running.
func (s *Synchronizer) bothStreamsStarted() bool {
	videoOK := s.videoEncoder == nil || s.shared.videoStarted
	audioOK := s.audioEncoder == nil || s.shared.audioStarted
	return videoOK && audioOK
}

// maybeStartRunning transitions Waiting -> Running once both enabled
// streams have started. Called only while s.mu is held.
func (s *Synchronizer) maybeStartRunning() {
	if s.shared.phase == phaseWaitingForBothStreams && s.bothStreamsStarted() {
		s.transition(phaseRunning)
	}
}

// segmentEmpty reports whether the current segment has received no input on
// either enabled stream, the condition that makes NewSegment a no-op.
func (s *Synchronizer) segmentEmpty() bool {
	videoEmpty := s.videoEncoder == nil || !s.shared.videoStarted
	audioEmpty := s.audioEncoder == nil || !s.shared.audioStarted
	return videoEmpty && audioEmpty
}
