package gbvs

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Detector finds objects (typically faces) in an image. Boxes are in the
// image's own coordinates.
type Detector interface {
	Detect(img image.Image) []image.Rectangle
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(img image.Image) []image.Rectangle

func (f DetectorFunc) Detect(img image.Image) []image.Rectangle { return f(img) }

// EquatorSource names the cue an equator estimate came from.
type EquatorSource int

const (
	EquatorGeometric EquatorSource = iota
	EquatorSalient
	EquatorDetections
)

func (s EquatorSource) String() string {
	switch s {
	case EquatorSalient:
		return "salient-center"
	case EquatorDetections:
		return "detections"
	default:
		return "geometric-center"
	}
}

// Equator is an estimated horizon line.
type Equator struct {
	// Row in continuous output-map rows; pixel row r spans [r, r+1).
	Row float64
	// Latitude in degrees, in [-90, 90].
	Latitude float64
	Source   EquatorSource
}

// rowLatitude maps a continuous row coordinate to degrees of latitude.
func rowLatitude(row float64, rows int) float64 {
	return (0.5 - row/float64(rows)) * 180
}

// pixelLatitude is the latitude of the centre of pixel row r.
func pixelLatitude(r, rows int) float64 {
	return rowLatitude(float64(r)+0.5, rows)
}

// detectionsRow returns the two-pass trimmed mean of the vertical centres of
// boxes, in rows of a map of the given height. It needs at least two boxes
// that do not overlap.
func detectionsRow(boxes []image.Rectangle, bounds image.Rectangle, rows int, outlierSigma float64) (float64, bool) {
	if len(boxes) < 2 || bounds.Dy() <= 0 || !separated(boxes) {
		return 0, false
	}
	ys := make([]float64, len(boxes))
	for i, b := range boxes {
		ys[i] = (float64(b.Min.Y+b.Max.Y)/2 - float64(bounds.Min.Y)) / float64(bounds.Dy())
	}
	mean, std := stat.MeanStdDev(ys, nil)
	kept := ys[:0:0]
	for _, y := range ys {
		if std == 0 || math.Abs(y-mean) <= outlierSigma*std {
			kept = append(kept, y)
		}
	}
	if len(kept) == 0 {
		kept = ys
	}
	return stat.Mean(kept, nil) * float64(rows), true
}

func separated(boxes []image.Rectangle) bool {
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if !boxes[i].Overlaps(boxes[j]) {
				return true
			}
		}
	}
	return false
}

// salientCenter is the energy-weighted centroid of the row sums of m,
// clamped to ±clamp·rows around the geometric centre. A map without
// positive energy yields the geometric centre.
func salientCenter(m *Map, clamp float64) (float64, bool) {
	centre := float64(m.H) / 2
	rows := make([]float64, m.H)
	energy := make([]float64, m.H)
	total := 0.0
	for y := range m.H {
		rows[y] = float64(y) + 0.5
		for x := range m.W {
			energy[y] += math.Max(0, m.At(x, y))
		}
		total += energy[y]
	}
	if total <= 0 {
		return centre, false
	}
	row := stat.Mean(rows, energy)
	limit := clamp * float64(m.H)
	return math.Max(centre-limit, math.Min(centre+limit, row)), true
}

// estimateEquator applies the fallback chain detections → salient centre →
// geometric centre. Detections are in input-image coordinates.
func estimateEquator(m *Map, boxes []image.Rectangle, bounds image.Rectangle, o *Options) Equator {
	if row, ok := detectionsRow(boxes, bounds, m.H, o.FaceOutlierSigma); ok {
		return Equator{Row: row, Latitude: rowLatitude(row, m.H), Source: EquatorDetections}
	}
	row, ok := salientCenter(m, o.EquatorClamp)
	src := EquatorSalient
	if !ok {
		o.logger().Println("gbvs warning: no saliency energy, equator falls back to the geometric centre")
		src = EquatorGeometric
	}
	return Equator{Row: row, Latitude: rowLatitude(row, m.H), Source: src}
}

// applyGaussianEquatorialPrior multiplies each row of m in place by
// exp(-(lat(row) - phi)² / spread).
func applyGaussianEquatorialPrior(m *Map, phi, spread float64) {
	for y := range m.H {
		d := pixelLatitude(y, m.H) - phi
		w := math.Exp(-d * d / spread)
		row := m.Pix[y*m.W : (y+1)*m.W]
		for x := range row {
			row[x] *= w
		}
	}
}
