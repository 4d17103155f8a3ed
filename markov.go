package gbvs

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// columnNormalize divides every column of W by its sum in place, making it
// column-stochastic. All-zero columns stay zero. W is returned for chaining.
func columnNormalize(W *mat.Dense) *mat.Dense {
	raw := W.RawMatrix()
	sums := make([]float64, raw.Cols)
	for i := range raw.Rows {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		floats.Add(sums, row)
	}
	for j, s := range sums {
		if s > 0 {
			sums[j] = 1 / s
		}
	}
	for i := range raw.Rows {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		floats.Mul(row, sums)
	}
	return W
}

// sparseness is the fraction of non-zero entries of W. It only selects the
// multiply path.
func sparseness(W mat.Matrix) float64 {
	r, c := W.Dims()
	if r*c == 0 {
		return 0
	}
	nnz := 0
	if d, ok := W.(*mat.Dense); ok {
		raw := d.RawMatrix()
		for i := range raw.Rows {
			for _, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
				if v != 0 {
					nnz++
				}
			}
		}
	} else {
		for i := range r {
			for j := range c {
				if W.At(i, j) != 0 {
					nnz++
				}
			}
		}
	}
	return float64(nnz) / float64(r*c)
}

// csr is a compressed-row copy of a sparse transition matrix.
type csr struct {
	rowPtr []int
	col    []int
	val    []float64
}

func compressRows(W *mat.Dense) csr {
	raw := W.RawMatrix()
	c := csr{rowPtr: make([]int, raw.Rows+1)}
	for i := range raw.Rows {
		for j, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
			if v != 0 {
				c.col = append(c.col, j)
				c.val = append(c.val, v)
			}
		}
		c.rowPtr[i+1] = len(c.col)
	}
	return c
}

func (c csr) mulVec(dst, x []float64) {
	for i := range len(c.rowPtr) - 1 {
		sum := 0.0
		for k := c.rowPtr[i]; k < c.rowPtr[i+1]; k++ {
			sum += c.val[k] * x[c.col[k]]
		}
		dst[i] = sum
	}
}

// eigenResult is the outcome of a power iteration.
type eigenResult struct {
	V         []float64
	Iters     int
	Converged bool
}

// principalEigenvector runs power iteration on a column-stochastic M from
// the uniform vector. See powerIterate.
func principalEigenvector(M *mat.Dense, tol float64, maxIters int, sparseBelow float64) eigenResult {
	n, _ := M.Dims()
	v0 := make([]float64, n)
	for i := range v0 {
		v0[i] = 1 / float64(n)
	}
	return powerIterate(M, v0, tol, maxIters, sparseBelow)
}

// powerIterate repeats v = M·v / |M·v|₁ until max|Δv| < tol or maxIters is
// reached. It never fails. A vanishing product means no mass survives, so
// the zero vector is returned; a non-finite one stops the loop with the
// last good vector.
func powerIterate(M *mat.Dense, v0 []float64, tol float64, maxIters int, sparseBelow float64) eigenResult {
	n := len(v0)
	cur := make([]float64, n)
	copy(cur, v0)
	if s := floats.Sum(cur); s > 0 {
		floats.Scale(1/s, cur)
	}
	next := make([]float64, n)

	var mul func(dst, x []float64)
	if sparseness(M) < sparseBelow {
		c := compressRows(M)
		mul = c.mulVec
	} else {
		dst := mat.NewVecDense(n, next)
		mul = func(_, x []float64) {
			dst.MulVec(M, mat.NewVecDense(n, x))
		}
	}

	for it := 1; it <= maxIters; it++ {
		mul(next, cur)
		norm := floats.Norm(next, 1)
		if norm == 0 {
			return eigenResult{V: make([]float64, n), Iters: it, Converged: true}
		}
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			return eigenResult{V: cur, Iters: it, Converged: false}
		}
		floats.Scale(1/norm, next)
		diff := floats.Distance(next, cur, math.Inf(1))
		copy(cur, next)
		if diff < tol {
			return eigenResult{V: cur, Iters: it, Converged: true}
		}
	}
	return eigenResult{V: cur, Iters: maxIters, Converged: false}
}

// maxNormalize scales m into [0, 1] and multiplies it by (1 - m̄)², m̄ being
// the mean of the local maxima other than the global one. Maps with one
// dominant peak are promoted, maps with many similar peaks suppressed.
func maxNormalize(m *Map) *Map {
	out := m.Clone()
	out.Normalize()
	sum, count := 0.0, 0
	gx, gy := out.Argmax()
	for y := range out.H {
		for x := range out.W {
			if x == gx && y == gy {
				continue
			}
			v := out.At(x, y)
			if v <= 0 || !isLocalMax(out, x, y) {
				continue
			}
			sum += v
			count++
		}
	}
	if count > 0 {
		mean := sum / float64(count)
		out.Scale((1 - mean) * (1 - mean))
	}
	return out
}

func isLocalMax(m *Map, x, y int) bool {
	v := m.At(x, y)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= m.W || ny >= m.H {
				continue
			}
			if m.At(nx, ny) > v {
				return false
			}
		}
	}
	return true
}
