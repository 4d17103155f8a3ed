package gbvs

import "math"

// gaussianKernel1D returns a normalized Gaussian kernel with radius
// ceil(4σ).
func gaussianKernel1D(sigma float64) []float64 {
	radius := int(math.Ceil(4 * sigma))
	kern := make([]float64, 2*radius+1)
	sfactor := -0.5 / (sigma * sigma)
	sum := 0.0
	for i := range kern {
		x := float64(i - radius)
		kern[i] = math.Exp(sfactor * x * x)
		sum += kern[i]
	}
	for i := range kern {
		kern[i] /= sum
	}
	return kern
}

// reflect folds an out-of-range index back into [0, n) by mirroring at
// the edges, repeating the edge pixel.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// blurMap convolves m with a separable Gaussian. Rows mirror at the
// borders; columns mirror too unless wrapX is set, in which case they wrap.
func blurMap(m *Map, sigma float64, wrapX bool) *Map {
	if sigma <= 0 {
		return m.Clone()
	}
	kern := gaussianKernel1D(sigma)
	radius := len(kern) / 2
	colIndex := reflect
	if wrapX {
		colIndex = wrap
	}

	tmp := NewMap(m.W, m.H)
	for y := range m.H {
		row := m.Pix[y*m.W : (y+1)*m.W]
		for x := range m.W {
			sum := 0.0
			for k, kv := range kern {
				sum += kv * row[colIndex(x+k-radius, m.W)]
			}
			tmp.Pix[y*m.W+x] = sum
		}
	}
	out := NewMap(m.W, m.H)
	for y := range m.H {
		for x := range m.W {
			sum := 0.0
			for k, kv := range kern {
				sum += kv * tmp.Pix[reflect(y+k-radius, m.H)*m.W+x]
			}
			out.Pix[y*m.W+x] = sum
		}
	}
	return out
}
