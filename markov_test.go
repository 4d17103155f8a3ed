package gbvs

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomWeights(n int, density float64, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 1))
	W := mat.NewDense(n, n, nil)
	for i := range n {
		for j := range n {
			if i != j && rng.Float64() < density {
				W.Set(i, j, rng.Float64())
			}
		}
	}
	return W
}

func TestColumnNormalize(t *testing.T) {
	W := randomWeights(12, 0.6, 7)
	// Isolated node.
	for i := range 12 {
		W.Set(i, 3, 0)
	}
	columnNormalize(W)
	for j := range 12 {
		sum := floats.Sum(mat.Col(nil, j, W))
		if j == 3 {
			if sum != 0 {
				t.Errorf("zero column sums to %v after normalization", sum)
			}
			continue
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("column %d sums to %v, want 1", j, sum)
		}
	}
}

func TestPowerIterationStartIndependence(t *testing.T) {
	W := randomWeights(20, 1, 3)
	columnNormalize(W)

	starts := map[string][]float64{
		"uniform": nil,
		"spike":   make([]float64, 20),
		"ramp":    make([]float64, 20),
	}
	starts["spike"][5] = 1
	for i := range starts["ramp"] {
		starts["ramp"][i] = float64(i + 1)
	}

	want := principalEigenvector(W, 1e-12, 10000, 0).V
	for name, v0 := range starts {
		t.Run(name, func(t *testing.T) {
			var res eigenResult
			if v0 == nil {
				res = principalEigenvector(W, 1e-12, 10000, 0)
			} else {
				res = powerIterate(W, v0, 1e-12, 10000, 0)
			}
			if !res.Converged {
				t.Fatalf("did not converge in %d iterations", res.Iters)
			}
			if !floats.EqualApprox(res.V, want, 1e-8) {
				t.Errorf("fixed point differs from the uniform start:\n got %v\nwant %v", res.V, want)
			}
			if s := floats.Sum(res.V); math.Abs(s-1) > 1e-12 {
				t.Errorf("vector sums to %v, want 1", s)
			}
		})
	}
}

func TestPowerIterationSparsePath(t *testing.T) {
	W := randomWeights(40, 0.1, 11)
	// Keep the chain irreducible.
	for i := range 40 {
		W.Set(i, (i+1)%40, 1)
	}
	columnNormalize(W)
	if s := sparseness(W); s >= 0.5 {
		t.Fatalf("sparseness = %v, want a sparse matrix", s)
	}
	dense := principalEigenvector(W, 1e-12, 5000, 0)
	sparse := principalEigenvector(W, 1e-12, 5000, 1)
	if !floats.EqualApprox(dense.V, sparse.V, 1e-10) {
		t.Errorf("sparse and dense paths disagree")
	}
	if !dense.Converged || !sparse.Converged {
		t.Errorf("converged: dense %v, sparse %v", dense.Converged, sparse.Converged)
	}
}

func TestPowerIterationCap(t *testing.T) {
	// A 2-cycle never converges from a non-stationary start.
	W := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	res := powerIterate(W, []float64{0.9, 0.1}, 1e-9, 25, 0)
	if res.Converged {
		t.Fatal("oscillating chain reported convergence")
	}
	if res.Iters != 25 {
		t.Errorf("Iters = %d, want the cap 25", res.Iters)
	}
	if s := floats.Sum(res.V); math.Abs(s-1) > 1e-12 {
		t.Errorf("vector sums to %v, want 1", s)
	}
}

func TestPowerIterationZeroMatrix(t *testing.T) {
	res := principalEigenvector(mat.NewDense(5, 5, nil), 1e-6, 100, 0.25)
	if len(res.V) != 5 {
		t.Fatalf("got %d entries, want 5", len(res.V))
	}
	for i, v := range res.V {
		if v != 0 {
			t.Errorf("V[%d] = %v, want 0", i, v)
		}
	}
	if res.Iters != 1 {
		t.Errorf("Iters = %d, want 1", res.Iters)
	}
}

func TestSparseness(t *testing.T) {
	tests := []struct {
		name string
		m    *mat.Dense
		want float64
	}{
		{"empty", mat.NewDense(4, 4, nil), 0},
		{"identity", mat.NewDense(2, 2, []float64{1, 0, 0, 1}), 0.5},
		{"full", mat.NewDense(2, 2, []float64{1, 2, 3, 4}), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sparseness(tt.m); got != tt.want {
				t.Errorf("sparseness = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxNormalize(t *testing.T) {
	single := NewMap(9, 9)
	single.Set(4, 4, 1)
	many := NewMap(9, 9)
	for _, p := range [][2]int{{1, 1}, {4, 4}, {7, 7}, {1, 7}, {7, 1}} {
		many.Set(p[0], p[1], 1)
	}
	s := maxNormalize(single)
	m := maxNormalize(many)
	if _, hi := s.MinMax(); hi != 1 {
		t.Errorf("single peak max = %v, want 1", hi)
	}
	if _, hi := m.MinMax(); hi != 0 {
		t.Errorf("equal peaks max = %v, want 0", hi)
	}
}
