package gbvs

import (
	"image"
	"math"

	"github.com/emer/etable/etensor"
	"github.com/emer/vision/gabor"
	"github.com/emer/vision/vfilter"
)

// GaborFilter is a quadrature pair of Gabor kernels at one orientation.
// Even is the cosine phase, Odd the sine phase. Both are zero-mean, so a
// flat region responds with the same value everywhere.
type GaborFilter struct {
	Angle float64 // degrees; 0 responds to vertical structure
	Size  int     // kernel side, odd
	Even  []float64
	Odd   []float64

	// [2][Size][Size]: Even then Odd, the layout vfilter.Conv expects.
	kernels etensor.Float32
}

const (
	gaborSize       = 9
	gaborWavelength = 5
	gaborSigLen     = 0.45
	gaborSigWd      = 0.4
	maxGaborAngles  = 720
)

func gaborParams() gabor.Filter {
	var gf gabor.Filter
	gf.Defaults()
	gf.SetSize(gaborSize, 1)
	gf.WvLen = gaborWavelength
	gf.SigLen = gaborSigLen
	gf.SigWd = gaborSigWd
	return gf
}

// gaborAngleSteps returns the smallest number of evenly spaced orientations
// over 180° that contains every angle, capped at maxGaborAngles.
func gaborAngleSteps(angles []float64) int {
	for n := 1; n <= maxGaborAngles; n++ {
		ok := true
		for _, a := range angles {
			s := a * float64(n) / 180
			if math.Abs(s-math.Round(s)) > 1e-6 {
				ok = false
				break
			}
		}
		if ok {
			return n
		}
	}
	return maxGaborAngles
}

// newGaborBank renders one filter per angle. The library modulates along
// the rendered angle's normal, so angles are offset by 90° to keep 0°
// tuned to vertical structure.
func newGaborBank(angles []float64) []GaborFilter {
	shifted := make([]float64, len(angles))
	for i, a := range angles {
		shifted[i] = math.Mod(a+90, 180)
		if shifted[i] < 0 {
			shifted[i] += 180
		}
	}
	gf := gaborParams()
	gf.NAngles = gaborAngleSteps(shifted)
	var even, odd etensor.Float32
	gf.Phase = math.Pi / 2
	gf.ToTensor(&even)
	gf.Phase = 0
	gf.ToTensor(&odd)

	bank := make([]GaborFilter, len(angles))
	for i, a := range angles {
		idx := int(math.Round(shifted[i]*float64(gf.NAngles)/180)) % gf.NAngles
		g := GaborFilter{
			Angle: a,
			Size:  gf.Size,
			Even:  kernelAt(&even, idx),
			Odd:   kernelAt(&odd, idx),
		}
		zeroMean(g.Even)
		zeroMean(g.Odd)
		g.kernels.SetShape([]int{2, g.Size, g.Size}, nil, []string{"Phase", "Y", "X"})
		for y := range g.Size {
			for x := range g.Size {
				g.kernels.Set([]int{0, y, x}, float32(g.Even[y*g.Size+x]))
				g.kernels.Set([]int{1, y, x}, float32(g.Odd[y*g.Size+x]))
			}
		}
		bank[i] = g
	}
	return bank
}

func NewGaborFilter(angle float64) GaborFilter {
	return newGaborBank([]float64{angle})[0]
}

func kernelAt(t *etensor.Float32, idx int) []float64 {
	sy, sx := t.Dim(1), t.Dim(2)
	k := make([]float64, sy*sx)
	for y := range sy {
		for x := range sx {
			k[y*sx+x] = float64(t.Value([]int{idx, y, x}))
		}
	}
	return k
}

func zeroMean(k []float64) {
	mean := 0.0
	for _, v := range k {
		mean += v
	}
	mean /= float64(len(k))
	for i := range k {
		k[i] -= mean
	}
}

// convolve correlates m with every kernel of flt ([n][size][size], size
// odd) through vfilter.Conv. Rows clamp at the borders; columns clamp, or
// wrap when wrapX is set.
func convolve(m *Map, flt *etensor.Float32, wrapX bool) []*Map {
	size := flt.Dim(1)
	border := size - size/2
	var pad etensor.Float32
	pad.SetShape([]int{m.H + 2*border, m.W + 2*border}, nil, []string{"Y", "X"})
	for py := range m.H + 2*border {
		sy := clampInt(py-border, 0, m.H-1)
		for px := range m.W + 2*border {
			sx := px - border
			if wrapX {
				sx = wrap(sx, m.W)
			} else {
				sx = clampInt(sx, 0, m.W-1)
			}
			pad.Set([]int{py, px}, float32(m.Pix[sy*m.W+sx]))
		}
	}

	var geom vfilter.Geom
	geom.Set(image.Pt(border, border), image.Pt(1, 1), image.Pt(size, size))
	var res etensor.Float32
	vfilter.Conv(&geom, flt, &pad, &res, 1)

	// res is [y][x][polarity][filter]: on and off magnitudes.
	out := make([]*Map, flt.Dim(0))
	for fi := range out {
		o := NewMap(m.W, m.H)
		for y := range m.H {
			for x := range m.W {
				on := res.Value([]int{y, x, 0, fi})
				off := res.Value([]int{y, x, 1, fi})
				o.Pix[y*m.W+x] = float64(on) - float64(off)
			}
		}
		out[fi] = o
	}
	return out
}

// Response returns the even and odd responses of g over m.
func (g GaborFilter) Response(m *Map, wrapX bool) (even, odd *Map) {
	r := convolve(m, &g.kernels, wrapX)
	return r[0], r[1]
}

// Energy returns sqrt(even² + odd²).
func (g GaborFilter) Energy(m *Map, wrapX bool) *Map {
	even, odd := g.Response(m, wrapX)
	out := NewMap(m.W, m.H)
	for i := range out.Pix {
		out.Pix[i] = math.Hypot(even.Pix[i], odd.Pix[i])
	}
	return out
}
