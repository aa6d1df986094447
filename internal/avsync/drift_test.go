package avsync

import "testing"

func TestDriftEstimatorConvergesTowardMeasured(t *testing.T) {
	t.Parallel()

	d := newDriftEstimator(Config{DesyncCorrectionP: 0.3, DesyncCorrectionI: 0.05, DesyncErrorThreshold: 20})
	var last float64
	for i := 0; i < 50; i++ {
		last, _ = d.Update(0.1, 1.0)
	}
	if last <= 0 {
		t.Fatalf("desync estimate did not track a sustained positive measured error, got %v", last)
	}
	if got := d.Desync(); got != last {
		t.Errorf("Desync() = %v, want %v (last Update return)", got, last)
	}
}

func TestDriftEstimatorClampsToThreshold(t *testing.T) {
	t.Parallel()

	d := newDriftEstimator(Config{DesyncCorrectionP: 1, DesyncCorrectionI: 1, DesyncErrorThreshold: 5})
	desync, excursion := d.Update(100, 1.0)
	if desync != 5 {
		t.Errorf("desync = %v, want clamped to threshold 5", desync)
	}
	if !excursion {
		t.Error("expected first excursion past threshold to be reported")
	}
	if ratio := d.Ratio(); ratio != 5 {
		t.Errorf("Ratio() = %v, want 5", ratio)
	}
}

func TestDriftEstimatorWarnsOnlyOncePerSegment(t *testing.T) {
	t.Parallel()

	d := newDriftEstimator(Config{DesyncCorrectionP: 1, DesyncCorrectionI: 1, DesyncErrorThreshold: 1})
	_, first := d.Update(100, 1.0)
	_, second := d.Update(100, 1.0)
	if !first {
		t.Fatal("expected first Update past threshold to report an excursion")
	}
	if second {
		t.Error("expected second Update past threshold to not report a new excursion")
	}

	d.Reset()
	_, again := d.Update(100, 1.0)
	if !again {
		t.Error("expected Reset to clear the once-per-segment warning latch")
	}
}

func TestDriftEstimatorResetZeroesState(t *testing.T) {
	t.Parallel()

	d := newDriftEstimator(Config{DesyncCorrectionP: 0.5, DesyncCorrectionI: 0.5, DesyncErrorThreshold: 20})
	d.Update(2, 1.0)
	d.Reset()
	if d.Desync() != 0 {
		t.Errorf("Desync() after Reset = %v, want 0", d.Desync())
	}
	if d.desyncI != 0 {
		t.Errorf("desyncI after Reset = %v, want 0", d.desyncI)
	}
}
