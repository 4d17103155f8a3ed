package gbvs

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/clone"
	"github.com/nfnt/resize"
)

type rgb32 struct {
	W, H int
	Pix  []float32 // Interleaved RGB in [0,1], len = W*H*3
}

func pixOffset(w, x, y int) int {
	return (y*w + x) * 3
}

// Source is everything a channel provider may read. Providers must treat it
// as read-only; it is shared by all channel workers.
type Source struct {
	// Input as given by the caller.
	Image image.Image
	// Working-resolution raster and its RGBA form.
	Rgb     rgb32
	Working *image.RGBA
	// (r+g+b)/3 of Rgb.
	Intensity *Map
	// Previous frame at the same working resolution, or nil.
	Previous          *rgb32
	PreviousIntensity *Map
	// Detector boxes in working-raster coordinates.
	Detections []image.Rectangle
	Cyclic     bool
}

func (s *Source) W() int { return s.Rgb.W }
func (s *Source) H() int { return s.Rgb.H }

// workingSize scales (w, h) so the larger side is at most maxSize.
func workingSize(w, h, maxSize int) (int, int) {
	side := max(w, h)
	if side <= maxSize {
		return w, h
	}
	scale := float64(maxSize) / float64(side)
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}

func toWorking(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		img = resize.Resize(uint(w), uint(h), img, resize.Bicubic)
	}
	return clone.AsRGBA(img)
}

func makeRGB32Image(img *image.RGBA) rgb32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := rgb32{
		W:   w,
		H:   h,
		Pix: make([]float32, w*h*3),
	}
	for y := range h {
		for x := range w {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			off := pixOffset(w, x, y)
			out.Pix[off] = float32(img.Pix[i]) / 255
			out.Pix[off+1] = float32(img.Pix[i+1]) / 255
			out.Pix[off+2] = float32(img.Pix[i+2]) / 255
		}
	}
	return out
}

func (r rgb32) intensity() *Map {
	m := NewMap(r.W, r.H)
	for i := range m.Pix {
		off := i * 3
		m.Pix[i] = (float64(r.Pix[off]) + float64(r.Pix[off+1]) + float64(r.Pix[off+2])) / 3
	}
	return m
}

// newSource prepares the working raster for one compute call.
func newSource(in Input, o *Options) *Source {
	b := in.Image.Bounds()
	w, h := workingSize(b.Dx(), b.Dy(), o.ComputeMaxSize)
	working := toWorking(in.Image, w, h)
	src := &Source{
		Image:   in.Image,
		Working: working,
		Rgb:     makeRGB32Image(working),
		Cyclic:  o.CyclicType == DistanceCyclic,
	}
	src.Intensity = src.Rgb.intensity()
	if in.Previous != nil {
		prev := makeRGB32Image(toWorking(in.Previous, w, h))
		src.Previous = &prev
		src.PreviousIntensity = prev.intensity()
	}
	return src
}

// scaleRect maps a rectangle from input coordinates to working coordinates.
func (s *Source) scaleRect(r image.Rectangle) image.Rectangle {
	b := s.Image.Bounds()
	sx := float64(s.W()) / float64(b.Dx())
	sy := float64(s.H()) / float64(b.Dy())
	return image.Rect(
		int(math.Floor(float64(r.Min.X-b.Min.X)*sx)),
		int(math.Floor(float64(r.Min.Y-b.Min.Y)*sy)),
		int(math.Ceil(float64(r.Max.X-b.Min.X)*sx)),
		int(math.Ceil(float64(r.Max.Y-b.Min.Y)*sy)),
	)
}
