package gbvs

import (
	"testing"

	"github.com/emer/etable/etensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestGaborFilterZeroMean(t *testing.T) {
	for _, g := range newGaborBank([]float64{0, 45, 90, 135}) {
		if s := floats.Sum(g.Even); !scalar.EqualWithinAbs(s, 0, 1e-12) {
			t.Errorf("%v°: even kernel sums to %v", g.Angle, s)
		}
		if s := floats.Sum(g.Odd); !scalar.EqualWithinAbs(s, 0, 1e-12) {
			t.Errorf("%v°: odd kernel sums to %v", g.Angle, s)
		}
		if len(g.Even) != g.Size*g.Size {
			t.Errorf("%v°: kernel has %d taps, want %d", g.Angle, len(g.Even), g.Size*g.Size)
		}
	}
}

func TestGaborOrientationSelectivity(t *testing.T) {
	// Vertical stripes with the filter's wavelength.
	stripes := NewMap(40, 40)
	for y := range 40 {
		for x := range 40 {
			if x%5 < 2 {
				stripes.Set(x, y, 1)
			}
		}
	}
	at0 := NewGaborFilter(0).Energy(stripes, true)
	at90 := NewGaborFilter(90).Energy(stripes, true)
	if a, b := at0.At(20, 20), at90.At(20, 20); a <= 2*b {
		t.Errorf("0° energy %v not well above 90° energy %v on vertical stripes", a, b)
	}
}

func TestGaborAngleSteps(t *testing.T) {
	tests := []struct {
		angles []float64
		want   int
	}{
		{[]float64{0}, 1},
		{[]float64{90, 0, 45, 135}, 4},
		{[]float64{30, 120}, 6},
		{[]float64{22.5}, 8},
	}
	for _, tt := range tests {
		if got := gaborAngleSteps(tt.angles); got != tt.want {
			t.Errorf("gaborAngleSteps(%v) = %d, want %d", tt.angles, got, tt.want)
		}
	}
}

func TestGaborBankOrientationsDiffer(t *testing.T) {
	bank := newGaborBank([]float64{0, 90, 180})
	if floats.Equal(bank[0].Even, bank[1].Even) {
		t.Error("0° and 90° share a kernel")
	}
	if !floats.Equal(bank[0].Even, bank[2].Even) {
		t.Error("0° and 180° kernels differ")
	}
}

func TestConvolveWrap(t *testing.T) {
	m := NewMap(8, 3)
	m.Set(0, 1, 1)
	// Correlation with a left tap reads the pixel to the left.
	var kern etensor.Float32
	kern.SetShape([]int{1, 3, 3}, nil, []string{"Filter", "Y", "X"})
	kern.Set([]int{0, 1, 0}, 1)
	wrapped := convolve(m, &kern, true)[0]
	clamped := convolve(m, &kern, false)[0]
	if wrapped.At(1, 1) != 1 || clamped.At(1, 1) != 1 {
		t.Error("left tap did not shift the impulse right")
	}
	if clamped.At(0, 1) != 1 {
		t.Errorf("clamped border reads %v, want the edge pixel", clamped.At(0, 1))
	}
	if wrapped.At(0, 1) != 0 {
		t.Errorf("wrapped border reads %v, want the far column", wrapped.At(0, 1))
	}

	// Negative taps come back signed.
	kern.Set([]int{0, 1, 0}, -1)
	if v := convolve(m, &kern, false)[0].At(1, 1); v != -1 {
		t.Errorf("negative tap gives %v, want -1", v)
	}
}
