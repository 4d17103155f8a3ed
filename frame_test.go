package gbvs

import (
	"errors"
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func mustFrame(t *testing.T, w, h int, levels []int, cyclic bool, connect Connectivity) *Frame {
	t.Helper()
	f, err := newFrame(w, h, levels, cyclic, connect, 4096)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFrameLayout(t *testing.T) {
	f := mustFrame(t, 64, 32, []int{2, 3, 4}, false, ConnectAll)
	wantDims := [][2]int{{16, 8}, {8, 4}, {4, 2}}
	for i, d := range wantDims {
		if f.Dims[i].X != d[0] || f.Dims[i].Y != d[1] {
			t.Errorf("level %d dims = %v, want %v", f.Levels[i], f.Dims[i], d)
		}
	}
	if f.N != 128+32+8 {
		t.Errorf("N = %d, want 168", f.N)
	}
	if f.Offsets[len(f.Offsets)-1] != f.N {
		t.Errorf("last offset %d, want N", f.Offsets[len(f.Offsets)-1])
	}
	// Centres of coarse and fine nodes covering the same area coincide.
	fine := f.Node(0, 1, 1)
	coarse := f.Node(2, 0, 0)
	if f.NodeX[coarse] != 8 || f.NodeY[coarse] != 8 {
		t.Errorf("coarse centre = (%v, %v), want (8, 8)", f.NodeX[coarse], f.NodeY[coarse])
	}
	if f.NodeX[fine] != 6 || f.NodeY[fine] != 6 {
		t.Errorf("fine centre = (%v, %v), want (6, 6)", f.NodeX[fine], f.NodeY[fine])
	}
}

func TestFrameCyclicSeam(t *testing.T) {
	tests := []struct {
		name     string
		cyclic   bool
		seamLink bool
	}{
		{"planar", false, false},
		{"cyclic", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustFrame(t, 32, 16, []int{2}, tt.cyclic, ConnectAll)
			k := f.Kernel(0.15)
			cols := f.Dims[0].X
			for y := range f.Dims[0].Y {
				seam := k.At(f.Node(0, 0, y), f.Node(0, cols-1, y))
				inner := k.At(f.Node(0, 3, y), f.Node(0, 4, y))
				if got := seam == inner; got != tt.seamLink {
					t.Errorf("row %d: seam weight %v, adjacent weight %v", y, seam, inner)
				}
			}
		})
	}
}

func TestFrameCyclicShiftInvariance(t *testing.T) {
	f := mustFrame(t, 32, 16, []int{2, 3}, true, ConnectAll)
	k := f.Kernel(0.15)
	cols := f.Dims[0].X
	// Shifting both nodes by one column around the seam keeps every weight.
	for x1 := range cols {
		for x2 := range cols {
			a := k.At(f.Node(0, x1, 1), f.Node(0, x2, 2))
			b := k.At(f.Node(0, (x1+1)%cols, 1), f.Node(0, (x2+1)%cols, 2))
			if math.Abs(a-b) > 1e-15 {
				t.Fatalf("(%d,%d): %v vs shifted %v", x1, x2, a, b)
			}
		}
	}
}

func TestFrameConnectivity(t *testing.T) {
	all := mustFrame(t, 32, 32, []int{2, 3}, false, ConnectAll)
	intra := mustFrame(t, 32, 32, []int{2, 3}, false, ConnectIntraLevel)
	i, j := all.Node(0, 0, 0), all.Node(1, 0, 0)
	if all.Kernel(0.15).At(i, j) == 0 {
		t.Error("ConnectAll: no edge across levels")
	}
	if intra.Kernel(0.15).At(i, j) != 0 {
		t.Error("ConnectIntraLevel: edge across levels")
	}
	if intra.Kernel(0.15).At(i, intra.Node(0, 1, 0)) == 0 {
		t.Error("ConnectIntraLevel: no edge within a level")
	}
	for _, f := range []*Frame{all, intra} {
		k := f.Kernel(0.15)
		for n := range f.N {
			if k.At(n, n) != 0 {
				t.Fatalf("self-loop at %d", n)
			}
		}
		if !mat.EqualApprox(k, k.T(), 0) {
			t.Error("kernel is not symmetric")
		}
	}
}

func TestFrameErrors(t *testing.T) {
	if _, err := newFrame(64, 64, []int{0}, false, ConnectAll, 100); !errors.Is(err, ErrGraphTooLarge) {
		t.Errorf("err = %v, want ErrGraphTooLarge", err)
	}
	if _, err := newFrame(0, 0, []int{1}, false, ConnectAll, 100); !errors.Is(err, ErrNoLevels) {
		t.Errorf("err = %v, want ErrNoLevels", err)
	}
}

func TestFrameCache(t *testing.T) {
	o := DefaultOptions()
	c := newFrameCache()
	var wg sync.WaitGroup
	frames := make([]*Frame, 8)
	for i := range frames {
		wg.Go(func() {
			f, err := c.get(64, 32, []int{2, 3}, &o)
			if err != nil {
				t.Error(err)
			}
			frames[i] = f
		})
	}
	wg.Wait()
	for _, f := range frames[1:] {
		if f != frames[0] {
			t.Fatal("cache returned distinct frames for one shape")
		}
	}
	if k1, k2 := frames[0].Kernel(0.1), frames[0].Kernel(0.1); k1 != k2 {
		t.Error("kernel not memoized")
	}
	o.CyclicType = DistanceCyclic
	if _, err := c.get(64, 32, []int{2, 3}, &o); err != nil {
		t.Fatal(err)
	}
	if n := len(c.frames); n != 2 {
		t.Errorf("cache holds %d frames, want 2", n)
	}
}

func TestActivationGraph(t *testing.T) {
	f := mustFrame(t, 16, 16, []int{2}, false, ConnectAll)
	values := make([]float64, f.N)
	values[5] = 1
	for _, kernel := range []Kernel{KernelDissimilarity, KernelAffinity} {
		o := DefaultOptions()
		o.Kernel = kernel
		W := activationGraph(values, f, &o)
		for i := range f.N {
			if W.At(i, i) != 0 {
				t.Fatalf("kernel %d: self-loop at %d", kernel, i)
			}
			for j := range f.N {
				if W.At(i, j) < 0 || W.At(i, j) != W.At(j, i) {
					t.Fatalf("kernel %d: bad weight at (%d,%d)", kernel, i, j)
				}
			}
		}
		// Node 5 differs from its neighbours; under the dissimilarity kernel
		// it has the largest degree.
		if kernel == KernelDissimilarity {
			best, bestSum := -1, -1.0
			for i := range f.N {
				s := 0.0
				for j := range f.N {
					s += W.At(i, j)
				}
				if s > bestSum {
					best, bestSum = i, s
				}
			}
			if best != 5 {
				t.Errorf("heaviest node %d, want 5", best)
			}
		}
	}
}

func TestDissimilarity(t *testing.T) {
	if d := dissimilarity(DissimAbs, 0.25, 1); d != 0.75 {
		t.Errorf("abs = %v", d)
	}
	if d := dissimilarity(DissimLogRatio, 2, 1); math.Abs(d-math.Ln2) > 1e-9 {
		t.Errorf("log ratio = %v, want ln 2", d)
	}
	if d := dissimilarity(DissimLogRatio, 0, 0); d != 0 {
		t.Errorf("log ratio of zeros = %v", d)
	}
}
