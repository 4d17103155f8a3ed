package gbvs

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/setanarut/gbvs/utils"
)

// segmentationFeatures splits the working raster into palette regions and
// scores each pixel by how rare its region is: 1 - area fraction.
func segmentationFeatures(k int, method utils.PaletteMethod) ProviderFunc {
	return func(src *Source) ([]RawFeature, error) {
		palette := utils.ExtractPalette(src.Working, k, method)
		if len(palette) == 0 {
			return nil, nil
		}
		w, h := src.W(), src.H()
		labels := make([]int, w*h)
		counts := make([]int, len(palette))
		for i := range labels {
			off := i * 3
			c := colorful.Color{
				R: float64(src.Rgb.Pix[off]),
				G: float64(src.Rgb.Pix[off+1]),
				B: float64(src.Rgb.Pix[off+2]),
			}
			labels[i] = nearestColor(c, palette)
			counts[labels[i]]++
		}
		out := NewMap(w, h)
		total := float64(w * h)
		for i, l := range labels {
			out.Pix[i] = 1 - float64(counts[l])/total
		}
		return []RawFeature{{Description: "segmentation", Map: out}}, nil
	}
}

func nearestColor(c colorful.Color, palette []colorful.Color) int {
	best, bestD := 0, c.DistanceLab(palette[0])
	for i := 1; i < len(palette); i++ {
		if d := c.DistanceLab(palette[i]); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
