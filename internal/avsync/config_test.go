package avsync

import "testing"

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	t.Parallel()

	c := Config{FrameRate: 60}
	got := c.withDefaults()

	if got.FrameRate != 60 {
		t.Errorf("FrameRate: got %v, want 60 (explicit value must survive)", got.FrameRate)
	}
	d := DefaultConfig()
	if got.DesyncCorrectionP != d.DesyncCorrectionP {
		t.Errorf("DesyncCorrectionP: got %v, want default %v", got.DesyncCorrectionP, d.DesyncCorrectionP)
	}
	if got.MaxVideoFramesBuffered != d.MaxVideoFramesBuffered {
		t.Errorf("MaxVideoFramesBuffered: got %v, want default %v", got.MaxVideoFramesBuffered, d.MaxVideoFramesBuffered)
	}
	if got.IdleSleep != d.IdleSleep {
		t.Errorf("IdleSleep: got %v, want default %v", got.IdleSleep, d.IdleSleep)
	}
}

func TestWithDefaultsPreservesFalseAllowFrameSkipping(t *testing.T) {
	t.Parallel()

	c := Config{AllowFrameSkipping: false}
	got := c.withDefaults()
	if got.AllowFrameSkipping {
		t.Error("AllowFrameSkipping: false must not be treated as unset")
	}
}

func TestFramePeriodUS(t *testing.T) {
	t.Parallel()

	c := Config{FrameRate: 30}
	if got, want := c.framePeriodUS(), int64(33333); got != want {
		t.Errorf("framePeriodUS() = %d, want %d", got, want)
	}
}
