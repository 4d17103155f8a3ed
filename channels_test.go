package gbvs

import (
	"image"
	"image/color"
	"testing"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/setanarut/gbvs/utils"
)

func uniformImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func testSource(t *testing.T, in Input) *Source {
	t.Helper()
	o := DefaultOptions()
	o.ComputeMaxSize = 64
	return newSource(in, &o)
}

func isFlat(m *Map) bool {
	lo, hi := m.MinMax()
	return lo == hi
}

func TestChannelsOnUniformImage(t *testing.T) {
	o := DefaultOptions()
	o.Detector = DetectorFunc(func(image.Image) []image.Rectangle { return nil })
	o.VanishingPoint = func(image.Image) (image.Point, bool) { return image.Point{}, false }
	chans := builtinChannels(&o, newGaborBank(o.GaborAngles))
	if len(chans) != 11 {
		t.Fatalf("got %d built-in channels, want 11", len(chans))
	}
	src := testSource(t, Input{Image: uniformImage(48, 24, color.RGBA{90, 140, 200, 255})})
	for letter, ch := range chans {
		t.Run(ch.Name, func(t *testing.T) {
			raws, err := ch.Provide(src)
			if err != nil {
				t.Fatal(err)
			}
			switch letter {
			case 'F', 'M', 'X', 'L':
				if len(raws) != 0 {
					t.Errorf("%c produced %d features without its input", letter, len(raws))
				}
				return
			}
			if len(raws) == 0 {
				t.Fatalf("%c produced no features", letter)
			}
			for _, rf := range raws {
				if rf.Map.W != 48 || rf.Map.H != 24 {
					t.Errorf("%s is %dx%d", rf.Description, rf.Map.W, rf.Map.H)
				}
				if letter == 'R' {
					// The local mean is computed on 8-bit pixels.
					if _, hi := rf.Map.MinMax(); hi > 1.0/255+1e-12 {
						t.Errorf("%s: contrast %v on a uniform image", rf.Description, hi)
					}
					continue
				}
				if !isFlat(rf.Map) {
					lo, hi := rf.Map.MinMax()
					t.Errorf("%s varies over a uniform image: [%v, %v]", rf.Description, lo, hi)
				}
			}
		})
	}
}

func TestOptionalChannelsRegistered(t *testing.T) {
	o := DefaultOptions()
	chans := builtinChannels(&o, nil)
	for _, l := range []byte{'X', 'L'} {
		if _, ok := chans[l]; ok {
			t.Errorf("%c registered without its collaborator", l)
		}
	}
}

func TestColorFeatures(t *testing.T) {
	img := uniformImage(8, 8, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(0, 0, color.RGBA{10, 10, 10, 255})
	raws, err := colorFeatures(testSource(t, Input{Image: img}))
	if err != nil {
		t.Fatal(err)
	}
	rg := raws[0].Map
	if rg.At(1, 1) != 1 {
		t.Errorf("pure red RG = %v, want 1", rg.At(1, 1))
	}
	if rg.At(0, 0) != 0 {
		t.Errorf("dark pixel RG = %v, want 0", rg.At(0, 0))
	}
}

func TestFlickerAndMotion(t *testing.T) {
	prev := uniformImage(32, 16, color.RGBA{0, 0, 0, 255})
	cur := uniformImage(32, 16, color.RGBA{0, 0, 0, 255})
	// A square moving one pixel to the right.
	for y := 6; y < 10; y++ {
		for x := 10; x < 14; x++ {
			cur.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			prev.SetRGBA(x-1, y, color.RGBA{255, 255, 255, 255})
		}
	}
	src := testSource(t, Input{Image: cur, Previous: prev})
	raws, err := flickerFeatures(src)
	if err != nil {
		t.Fatal(err)
	}
	f := raws[0].Map
	if f.At(13, 7) != 1 || f.At(11, 7) != 0 || f.At(0, 0) != 0 {
		t.Errorf("flicker inside %v, outside %v", f.At(11, 7), f.At(0, 0))
	}

	bank := newGaborBank([]float64{0, 90})
	raws, err = motionFeatures(bank, 1)(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 2 {
		t.Fatalf("got %d motion features, want 2", len(raws))
	}
	for _, rf := range raws {
		if _, hi := rf.Map.MinMax(); hi <= 0 {
			t.Errorf("%s: no response to a moving object", rf.Description)
		}
	}
}

func TestFaceFeatures(t *testing.T) {
	src := testSource(t, Input{Image: uniformImage(40, 20, color.RGBA{})})
	src.Detections = []image.Rectangle{image.Rect(4, 4, 10, 10)}
	raws, err := faceFeatures(src)
	if err != nil {
		t.Fatal(err)
	}
	if x, y := raws[0].Map.Argmax(); x != 6 && x != 7 || y != 6 && y != 7 {
		t.Errorf("face blob peak at (%d, %d), want near (7, 7)", x, y)
	}
}

func TestSharpnessFeatures(t *testing.T) {
	img := uniformImage(32, 16, color.RGBA{128, 128, 128, 255})
	// Checkerboard in the left half only.
	for y := range 16 {
		for x := range 16 {
			if (x+y)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	raws, err := sharpnessFeatures(8)(testSource(t, Input{Image: img}))
	if err != nil {
		t.Fatal(err)
	}
	m := raws[0].Map
	if m.At(4, 4) <= m.At(24, 4) {
		t.Errorf("sharp block %v not above flat block %v", m.At(4, 4), m.At(24, 4))
	}
}

func TestSegmentationFeatures(t *testing.T) {
	img := uniformImage(20, 20, color.RGBA{20, 120, 20, 255})
	for y := range 20 {
		for x := 15; x < 20; x++ {
			img.SetRGBA(x, y, color.RGBA{230, 30, 30, 255})
		}
	}
	for _, method := range []utils.PaletteMethod{utils.PaletteMethodDominantColor, utils.PaletteMethodKMeans} {
		t.Run(method.String(), func(t *testing.T) {
			raws, err := segmentationFeatures(2, method)(testSource(t, Input{Image: img}))
			if err != nil {
				t.Fatal(err)
			}
			m := raws[0].Map
			lo, hi := m.MinMax()
			if lo < 0 || hi >= 1 {
				t.Errorf("scores outside [0, 1): [%v, %v]", lo, hi)
			}
			// Palettes are sampled, so the red region may merge into the
			// green one; it must never score below it.
			if m.At(17, 10) < m.At(2, 10) {
				t.Errorf("rare region %v below common region %v", m.At(17, 10), m.At(2, 10))
			}
		})
	}
}

func TestNearestColor(t *testing.T) {
	palette := []colorful.Color{
		{R: 0, G: 0, B: 0},
		{R: 1, G: 0, B: 0},
		{R: 1, G: 1, B: 1},
	}
	tests := []struct {
		c    colorful.Color
		want int
	}{
		{colorful.Color{R: 0.1, G: 0.1, B: 0.1}, 0},
		{colorful.Color{R: 0.9, G: 0.1, B: 0}, 1},
		{colorful.Color{R: 0.95, G: 0.95, B: 0.9}, 2},
	}
	for _, tt := range tests {
		if got := nearestColor(tt.c, palette); got != tt.want {
			t.Errorf("nearestColor(%v) = %d, want %d", tt.c, got, tt.want)
		}
	}
}
