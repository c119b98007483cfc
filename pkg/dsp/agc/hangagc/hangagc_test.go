package hangagc

import (
	"math"
	"testing"
)

func testParams() Params {
	return Params{
		FastRiseT:      4,
		FastFallT:      8,
		SlowRiseT:      40,
		SlowFallT:      80,
		HangMax:        2,
		DelayLineSize:  4,
		MagHistorySize: 4,
	}
}

func TestNewRejectsEmptyBuffers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero delay line", func(p *Params) { p.DelayLineSize = 0 }},
		{"zero mag history", func(p *Params) { p.MagHistorySize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			if _, err := New(p); err == nil {
				t.Fatal("expected construction failure")
			}
		})
	}
}

func TestOutputIsDelayed(t *testing.T) {
	a, err := New(testParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The first DelayLineSize outputs are the zero-initialized delay
	// line contents.
	for i := 0; i < 4; i++ {
		if got := a.Feed(complex(1, 0)); got != 0 {
			t.Fatalf("output %d = %v, want 0", i, got)
		}
	}
	if got := a.Feed(complex(1, 0)); got == 0 {
		t.Fatal("delayed input never surfaced")
	}
}

func TestConvergesToTargetLevel(t *testing.T) {
	a, err := New(testParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var out complex64
	for i := 0; i < 2000; i++ {
		out = a.Feed(complex(2, 0))
	}

	mag := math.Hypot(float64(real(out)), float64(imag(out)))
	if math.Abs(mag-targetLevel) > 0.05*targetLevel {
		t.Fatalf("converged magnitude = %g, want about %g", mag, targetLevel)
	}
}

func TestGainScalesWeakAndStrongAlike(t *testing.T) {
	weak, _ := New(testParams())
	strong, _ := New(testParams())

	var weakOut, strongOut complex64
	for i := 0; i < 2000; i++ {
		weakOut = weak.Feed(complex(0.05, 0))
		strongOut = strong.Feed(complex(5, 0))
	}

	weakMag := math.Abs(float64(real(weakOut)))
	strongMag := math.Abs(float64(real(strongOut)))

	if math.Abs(weakMag-strongMag) > 0.1*targetLevel {
		t.Fatalf("weak %g vs strong %g: levels should match after AGC", weakMag, strongMag)
	}
}

func TestZeroInputPassesThrough(t *testing.T) {
	a, _ := New(testParams())
	for i := 0; i < 100; i++ {
		if got := a.Feed(0); got != 0 {
			t.Fatalf("zero input produced %v", got)
		}
	}
}
