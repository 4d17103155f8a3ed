package gbvs

import (
	"math"
	"slices"

	"github.com/samber/lo"
)

// sample bilinearly interpolates m at continuous pixel coordinates, where
// pixel (x, y) has its centre at (x, y). Out-of-range rows clamp; columns
// clamp, or wrap when wrapX is set.
func sample(m *Map, x, y float64, wrapX bool) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)

	col := func(c int) int {
		if wrapX {
			c %= m.W
			if c < 0 {
				c += m.W
			}
			return c
		}
		return clampInt(c, 0, m.W-1)
	}
	row := func(r int) int { return clampInt(r, 0, m.H-1) }

	xa, xb := col(ix), col(ix+1)
	ya, yb := row(iy), row(iy+1)
	top := m.Pix[ya*m.W+xa]*(1-fx) + m.Pix[ya*m.W+xb]*fx
	bot := m.Pix[yb*m.W+xa]*(1-fx) + m.Pix[yb*m.W+xb]*fx
	return top*(1-fy) + bot*fy
}

// backProject resamples m onto a w×h grid covering the same extent.
func backProject(m *Map, w, h int, wrapX bool) *Map {
	out := NewMap(w, h)
	if m.W == w && m.H == h {
		copy(out.Pix, m.Pix)
		return out
	}
	sx := float64(m.W) / float64(w)
	sy := float64(m.H) / float64(h)
	for y := range h {
		srcY := (float64(y)+0.5)*sy - 0.5
		for x := range w {
			srcX := (float64(x)+0.5)*sx - 0.5
			out.Pix[y*w+x] = sample(m, srcX, srcY, wrapX)
		}
	}
	return out
}

// sumOverScales back-projects every level of f to w×h and adds them up.
func sumOverScales(f *Feature, w, h int, wrapX bool) *Map {
	out := NewMap(w, h)
	for _, fm := range f.Maps {
		out.AddScaled(1, backProject(fm.Map, w, h, wrapX))
	}
	return out
}

// averageByFeatureChannel sums the scale-summed maps of the features of each
// channel and, when average is set, divides by their count, so a channel's
// contribution does not depend on how many sub-features implement it.
func averageByFeatureChannel(features []*Feature, w, h int, wrapX, average bool) map[byte]*Map {
	groups := lo.GroupBy(features, func(f *Feature) byte { return f.Channel })
	out := make(map[byte]*Map, len(groups))
	for ch, group := range groups {
		acc := NewMap(w, h)
		for _, f := range group {
			acc.AddScaled(1, sumOverScales(f, w, h, wrapX))
		}
		if average {
			acc.Scale(1 / float64(len(group)))
		}
		out[ch] = acc
	}
	return out
}

// sumChannels accumulates weight·map over channels in letter order.
func sumChannels(channels map[byte]*Map, weights map[byte]float64, w, h int) *Map {
	out := NewMap(w, h)
	letters := lo.Keys(channels)
	slices.Sort(letters)
	for _, ch := range letters {
		out.AddScaled(weights[ch], channels[ch])
	}
	return out
}

// fuse combines normalized features into the master map.
func fuse(features []*Feature, w, h int, o *Options) (*Map, map[byte]*Map) {
	wrapX := o.CyclicType == DistanceCyclic
	channels := averageByFeatureChannel(features, w, h, wrapX, o.AverageByFeatureChannel)
	weights := make(map[byte]float64, len(channels))
	for _, f := range features {
		weights[f.Channel] = f.Weight
	}
	return sumChannels(channels, weights, w, h), channels
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
