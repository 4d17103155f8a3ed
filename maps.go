package gbvs

import (
	"math"
	"slices"
)

// Map is a row-major grid of real values.
type Map struct {
	W, H int
	Pix  []float64 // len = W*H
}

func NewMap(w, h int) *Map {
	return &Map{W: w, H: h, Pix: make([]float64, w*h)}
}

func (m *Map) At(x, y int) float64 {
	return m.Pix[y*m.W+x]
}

func (m *Map) Set(x, y int, v float64) {
	m.Pix[y*m.W+x] = v
}

func (m *Map) Clone() *Map {
	return &Map{W: m.W, H: m.H, Pix: slices.Clone(m.Pix)}
}

// MinMax returns the smallest and largest value. An empty map returns 0, 0.
func (m *Map) MinMax() (lo, hi float64) {
	if len(m.Pix) == 0 {
		return 0, 0
	}
	return slices.Min(m.Pix), slices.Max(m.Pix)
}

// AddScaled accumulates alpha*o into m. Both maps must share dimensions.
func (m *Map) AddScaled(alpha float64, o *Map) {
	for i, v := range o.Pix {
		m.Pix[i] += alpha * v
	}
}

func (m *Map) Fill(v float64) {
	for i := range m.Pix {
		m.Pix[i] = v
	}
}

func (m *Map) Scale(c float64) {
	for i := range m.Pix {
		m.Pix[i] *= c
	}
}

// Normalize rescales m into [0, 1]. A flat map becomes all ones when its
// value is positive and all zeros otherwise.
func (m *Map) Normalize() {
	lo, hi := m.MinMax()
	span := hi - lo
	if span <= 1e-12*math.Max(1, math.Abs(hi)) {
		fill := 0.0
		if hi > 0 {
			fill = 1
		}
		for i := range m.Pix {
			m.Pix[i] = fill
		}
		return
	}
	inv := 1 / span
	for i, v := range m.Pix {
		m.Pix[i] = (v - lo) * inv
	}
}

// Argmax returns the position of the largest value.
func (m *Map) Argmax() (x, y int) {
	best := 0
	for i, v := range m.Pix {
		if v > m.Pix[best] {
			best = i
		}
	}
	return best % m.W, best / m.W
}

// MapType records how far a FeatureMap has travelled through the pipeline.
type MapType int

const (
	MapRaw MapType = iota
	MapActivation
	MapNormalized
)

func (t MapType) String() string {
	switch t {
	case MapActivation:
		return "activation"
	case MapNormalized:
		return "normalized"
	default:
		return "raw"
	}
}

// FeatureMap is one pyramid level of one feature.
type FeatureMap struct {
	Map     *Map
	Type    MapType
	Level   int
	Channel byte
	Done    bool
}

// Feature is one sub-feature of a channel (e.g. one Gabor orientation) with
// a map per pyramid level, coarsening with the index.
type Feature struct {
	Maps        []*FeatureMap
	Description string
	Weight      float64
	Channel     byte
}

// nodeValues concatenates the level maps in node order.
func (f *Feature) nodeValues() []float64 {
	n := 0
	for _, fm := range f.Maps {
		n += len(fm.Map.Pix)
	}
	values := make([]float64, 0, n)
	for _, fm := range f.Maps {
		values = append(values, fm.Map.Pix...)
	}
	return values
}

// setNodeValues writes a node-ordered vector back into the level maps.
func (f *Feature) setNodeValues(values []float64, t MapType) {
	off := 0
	for _, fm := range f.Maps {
		n := len(fm.Map.Pix)
		fm.Map = &Map{W: fm.Map.W, H: fm.Map.H, Pix: slices.Clone(values[off : off+n])}
		fm.Type = t
		fm.Done = t == MapNormalized
		off += n
	}
}
