package gbvs

import (
	"fmt"
	"image"
	"math"
	"math/cmplx"

	"github.com/anthonynsimon/bild/blur"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mjibson/go-dsp/fft"

	"github.com/setanarut/gbvs/utils"
)

// RawFeature is one feature produced by a channel. Map is at working
// resolution and is decimated into every pyramid level; Levels, when set,
// supplies some levels directly (keyed by level, sized per levelDims).
// Either may be nil.
type RawFeature struct {
	Description string
	Map         *Map
	Levels      map[int]*Map
}

// ProviderFunc computes the raw features of a channel. It must not modify
// src and may return no features when its input is unavailable (e.g. a
// motion channel without a previous frame).
type ProviderFunc func(src *Source) ([]RawFeature, error)

// Channel is a named feature channel. Built-in letters:
//
//	C color        RG / BY double opponency
//	D dkl          CIE Lab L, a, b opponent axes
//	I intensity
//	O orientation  Gabor energy per Options.GaborAngles
//	R contrast     deviation from the local Gaussian mean
//	F flicker      frame difference
//	M motion       Reichardt-style Gabor correlation across frames
//	B blur         block spectral sharpness
//	S segmentation palette region rarity
//	X face         blobs at Options.Detector boxes
//	L perspective  proximity to Options.VanishingPoint
type Channel struct {
	Letter  byte
	Name    string
	Weight  float64
	Provide ProviderFunc
}

// VanishingPointFunc locates the vanishing point of img in its own
// coordinates.
type VanishingPointFunc func(img image.Image) (image.Point, bool)

// builtinChannels returns the built-in registry for o.
func builtinChannels(o *Options, bank []GaborFilter) map[byte]Channel {
	chans := []Channel{
		{'C', "color", o.ColorWeight, colorFeatures},
		{'D', "dkl", o.DKLWeight, dklFeatures},
		{'I', "intensity", o.IntensityWeight, intensityFeatures},
		{'O', "orientation", o.OrientationWeight, orientationFeatures(bank)},
		{'R', "contrast", o.ContrastWeight, contrastFeatures(o.ContrastRadius)},
		{'F', "flicker", o.FlickerWeight, flickerFeatures},
		{'M', "motion", o.MotionWeight, motionFeatures(bank, o.MotionShift)},
		{'B', "blur", o.BlurWeight, sharpnessFeatures(o.BlurBlockSize)},
		{'S', "segmentation", o.SegmentationWeight, segmentationFeatures(o.SegmentColors, o.SegmentMethod)},
	}
	if o.Detector != nil {
		chans = append(chans, Channel{'X', "face", o.FaceWeight, faceFeatures})
	}
	if o.VanishingPoint != nil {
		chans = append(chans, Channel{'L', "perspective", o.PerspectiveWeight, perspectiveFeatures(o.VanishingPoint)})
	}
	out := make(map[byte]Channel, len(chans))
	for _, c := range chans {
		out[c.Letter] = c
	}
	return out
}

// Below this brightness the colour opponency is undefined and set to 0.
const colorMinLum = 0.1

func colorFeatures(src *Source) ([]RawFeature, error) {
	w, h := src.W(), src.H()
	rg, by := NewMap(w, h), NewMap(w, h)
	for i := range w * h {
		off := i * 3
		r := float64(src.Rgb.Pix[off])
		g := float64(src.Rgb.Pix[off+1])
		b := float64(src.Rgb.Pix[off+2])
		mx := max(r, g, b)
		if mx < colorMinLum {
			continue
		}
		rg.Pix[i] = math.Abs(r-g) / mx
		by.Pix[i] = math.Abs(b-min(r, g)) / mx
	}
	return []RawFeature{{Description: "color RG", Map: rg}, {Description: "color BY", Map: by}}, nil
}

func dklFeatures(src *Source) ([]RawFeature, error) {
	w, h := src.W(), src.H()
	lum, rg, by := NewMap(w, h), NewMap(w, h), NewMap(w, h)
	for i := range w * h {
		off := i * 3
		c := colorful.Color{
			R: float64(src.Rgb.Pix[off]),
			G: float64(src.Rgb.Pix[off+1]),
			B: float64(src.Rgb.Pix[off+2]),
		}
		l, a, b := c.Lab()
		lum.Pix[i], rg.Pix[i], by.Pix[i] = l, a, b
	}
	return []RawFeature{{Description: "dkl luminance", Map: lum}, {Description: "dkl RG", Map: rg}, {Description: "dkl BY", Map: by}}, nil
}

func intensityFeatures(src *Source) ([]RawFeature, error) {
	return []RawFeature{{Description: "intensity", Map: src.Intensity.Clone()}}, nil
}

func orientationFeatures(bank []GaborFilter) ProviderFunc {
	return func(src *Source) ([]RawFeature, error) {
		out := make([]RawFeature, len(bank))
		for i, g := range bank {
			out[i] = RawFeature{
				Description: fmt.Sprintf("orientation %g°", g.Angle),
				Map:         g.Energy(src.Intensity, src.Cyclic),
			}
		}
		return out, nil
	}
}

func contrastFeatures(radius float64) ProviderFunc {
	return func(src *Source) ([]RawFeature, error) {
		gray := utils.GrayFromValues(src.W(), src.H(), src.Intensity.Pix)
		mean := blur.Gaussian(gray, radius)
		out := NewMap(src.W(), src.H())
		for y := range out.H {
			for x := range out.W {
				v := float64(gray.GrayAt(x, y).Y)
				m := float64(mean.Pix[mean.PixOffset(x, y)])
				out.Pix[y*out.W+x] = math.Abs(v-m) / 255
			}
		}
		return []RawFeature{{Description: "contrast", Map: out}}, nil
	}
}

func flickerFeatures(src *Source) ([]RawFeature, error) {
	if src.PreviousIntensity == nil {
		return nil, nil
	}
	out := NewMap(src.W(), src.H())
	for i, v := range src.Intensity.Pix {
		out.Pix[i] = math.Abs(v - src.PreviousIntensity.Pix[i])
	}
	return []RawFeature{{Description: "flicker", Map: out}}, nil
}

// motionFeatures correlates each orientation's energy with the previous
// frame's energy displaced by shift pixels along the orientation.
func motionFeatures(bank []GaborFilter, shift int) ProviderFunc {
	return func(src *Source) ([]RawFeature, error) {
		if src.PreviousIntensity == nil {
			return nil, nil
		}
		w, h := src.W(), src.H()
		at := func(m *Map, x, y int) float64 {
			if src.Cyclic {
				x = wrap(x, w)
			} else {
				x = clampInt(x, 0, w-1)
			}
			return m.Pix[clampInt(y, 0, h-1)*w+x]
		}
		out := make([]RawFeature, 0, len(bank))
		for _, g := range bank {
			theta := g.Angle * math.Pi / 180
			dx := int(math.Round(float64(shift) * math.Cos(theta)))
			dy := int(math.Round(float64(shift) * math.Sin(theta)))
			cur := g.Energy(src.Intensity, src.Cyclic)
			prev := g.Energy(src.PreviousIntensity, src.Cyclic)
			m := NewMap(w, h)
			for y := range h {
				for x := range w {
					v := at(cur, x, y)*at(prev, x+dx, y+dy) - at(cur, x+dx, y+dy)*at(prev, x, y)
					m.Pix[y*w+x] = math.Abs(v)
				}
			}
			out = append(out, RawFeature{Description: fmt.Sprintf("motion %g°", g.Angle), Map: m})
		}
		return out, nil
	}
}

// sharpnessFeatures measures, per block, the share of AC spectral power in
// the upper half of the frequency range. Blurred regions score low.
func sharpnessFeatures(block int) ProviderFunc {
	if block < 2 {
		block = 2
	}
	return func(src *Source) ([]RawFeature, error) {
		in := src.Intensity
		out := NewMap(in.W, in.H)
		buf := make([][]float64, block)
		for i := range buf {
			buf[i] = make([]float64, block)
		}
		cut := max(1, block/4)
		for by := 0; by < in.H; by += block {
			for bx := 0; bx < in.W; bx += block {
				for y := range block {
					sy := clampInt(by+y, 0, in.H-1)
					for x := range block {
						buf[y][x] = in.Pix[sy*in.W+clampInt(bx+x, 0, in.W-1)]
					}
				}
				spec := fft.FFT2Real(buf)
				dc := cmplx.Abs(spec[0][0])
				high, total := 0.0, 0.0
				for u := range block {
					fu := min(u, block-u)
					for v := range block {
						if u == 0 && v == 0 {
							continue
						}
						p := cmplx.Abs(spec[u][v])
						p *= p
						total += p
						if fu >= cut || min(v, block-v) >= cut {
							high += p
						}
					}
				}
				s := 0.0
				if total > 1e-12*(dc*dc+1e-30) {
					s = high / total
				}
				for y := by; y < min(by+block, in.H); y++ {
					for x := bx; x < min(bx+block, in.W); x++ {
						out.Pix[y*in.W+x] = s
					}
				}
			}
		}
		return []RawFeature{{Description: "blur", Map: out}}, nil
	}
}

// faceFeatures places a Gaussian blob over every detection.
func faceFeatures(src *Source) ([]RawFeature, error) {
	if len(src.Detections) == 0 {
		return nil, nil
	}
	w, h := src.W(), src.H()
	out := NewMap(w, h)
	for _, r := range src.Detections {
		cx := float64(r.Min.X+r.Max.X) / 2
		cy := float64(r.Min.Y+r.Max.Y) / 2
		sigma := math.Max(1, float64(max(r.Dx(), r.Dy()))/2)
		inv := 1 / (2 * sigma * sigma)
		for y := range h {
			dy := float64(y) + 0.5 - cy
			for x := range w {
				dx := math.Abs(float64(x) + 0.5 - cx)
				if src.Cyclic {
					dx = math.Min(dx, float64(w)-dx)
				}
				out.Pix[y*w+x] += math.Exp(-(dx*dx + dy*dy) * inv)
			}
		}
	}
	return []RawFeature{{Description: "face", Map: out}}, nil
}

func perspectiveFeatures(find VanishingPointFunc) ProviderFunc {
	return func(src *Source) ([]RawFeature, error) {
		p, ok := find(src.Image)
		if !ok {
			return nil, nil
		}
		r := src.scaleRect(image.Rectangle{Min: p, Max: p})
		px, py := float64(r.Min.X), float64(r.Min.Y)
		w, h := src.W(), src.H()
		sigma := 0.25 * math.Hypot(float64(w), float64(h))
		inv := 1 / (2 * sigma * sigma)
		out := NewMap(w, h)
		for y := range h {
			dy := float64(y) + 0.5 - py
			for x := range w {
				dx := float64(x) + 0.5 - px
				out.Pix[y*w+x] = math.Exp(-(dx*dx + dy*dy) * inv)
			}
		}
		return []RawFeature{{Description: "linear perspective", Map: out}}, nil
	}
}
