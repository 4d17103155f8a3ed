package utils

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func ReadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// GrayFromValues converts a row-major w×h grid of values in [0, 1] to an
// 8-bit image. Values outside the range are clamped.
func GrayFromValues(w, h int, pix []float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range pix {
		img.Pix[i] = uint8(math.Round(255 * max(0, min(1, v))))
	}
	return img
}

// SaveGrayImages writes each image to dir as <prefix><name>.png.
func SaveGrayImages(images map[string]*image.Gray, dir, prefix string) error {
	for _, name := range slices.Sorted(maps.Keys(images)) {
		if err := SaveImage(images[name], filepath.Join(dir, prefix+name+".png")); err != nil {
			return err
		}
	}
	return nil
}

func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
