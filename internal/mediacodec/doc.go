// Package mediacodec adapts github.com/asticode/go-astiav (Go bindings over
// libav*) to the avsync.Scaler, avsync.Resampler, avsync.VideoEncoder and
// avsync.AudioEncoder interfaces, so a Synchronizer can hand off finished
// frames to a real software scaler/resampler and a real encoder writing into
// an output container. AudioDecoder covers the reverse direction, turning
// already-encoded AAC back into PCM so a live stream's audio can be run
// through a Synchronizer before re-encoding, not just a fresh capture
// source.
package mediacodec
