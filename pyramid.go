package gbvs

import "fmt"

// levelDims returns (cols, rows) of pyramid level l over a w×h raster.
func levelDims(w, h, l int) (int, int) {
	s := 1 << l
	return (w + s - 1) / s, (h + s - 1) / s
}

// decimate halves m by averaging each 2×2 block. Blocks cut by an odd edge
// average only the pixels they cover, so every output value is the mean
// of the area it replaces.
func decimate(m *Map) *Map {
	w, h := (m.W+1)/2, (m.H+1)/2
	out := NewMap(w, h)
	for y := range h {
		y0, y1 := 2*y, min(2*y+2, m.H)
		for x := range w {
			x0, x1 := 2*x, min(2*x+2, m.W)
			sum := 0.0
			for sy := y0; sy < y1; sy++ {
				row := sy * m.W
				for sx := x0; sx < x1; sx++ {
					sum += m.Pix[row+sx]
				}
			}
			out.Pix[y*w+x] = sum / float64((y1-y0)*(x1-x0))
		}
	}
	return out
}

// buildPyramid subsamples a level-0 raw map to each of levels, which must
// be increasing.
func buildPyramid(raw *Map, levels []int, channel byte) []*FeatureMap {
	out := make([]*FeatureMap, 0, len(levels))
	cur, curLevel := raw, 0
	for _, l := range levels {
		for curLevel < l {
			cur = decimate(cur)
			curLevel++
		}
		out = append(out, &FeatureMap{
			Map:     cur,
			Type:    MapRaw,
			Level:   l,
			Channel: channel,
		})
	}
	return out
}

// pyramid builds the level maps of rf over a w×h working raster.
func (rf RawFeature) pyramid(w, h int, levels []int, channel byte) ([]*FeatureMap, error) {
	base := rf.Map
	if base == nil {
		base = NewMap(w, h)
	} else if base.W != w || base.H != h {
		return nil, fmt.Errorf("%w: %q is %dx%d, raster is %dx%d", ErrFeatureShape, rf.Description, base.W, base.H, w, h)
	}
	maps := buildPyramid(base, levels, channel)
	for _, fm := range maps {
		m, ok := rf.Levels[fm.Level]
		if !ok {
			continue
		}
		cols, rows := levelDims(w, h, fm.Level)
		if m.W != cols || m.H != rows {
			return nil, fmt.Errorf("%w: %q level %d is %dx%d, want %dx%d", ErrFeatureShape, rf.Description, fm.Level, m.W, m.H, cols, rows)
		}
		fm.Map = m.Clone()
	}
	return maps, nil
}
