// Package imaging converts camera frames into model input tensors.
package imaging

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/agroscan/leafscan-go/internal/errors"
)

// Preprocess scales img to size x size and returns a row-major RGB tensor
// with channel values normalized to [0, 1].
func Preprocess(img image.Image, size int) ([]float32, error) {
	if img == nil {
		return nil, errors.Newf("nil image").
			Component("imaging").
			Category(errors.CategoryImageDecode).
			Build()
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.Newf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy()).
			Component("imaging").
			Category(errors.CategoryImageDecode).
			Build()
	}
	if size <= 0 {
		return nil, errors.Newf("invalid target size %d", size).
			Component("imaging").
			Category(errors.CategoryValidation).
			Build()
	}

	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)

	tensor := make([]float32, size*size*3)
	i := 0
	for y := 0; y < size; y++ {
		row := scaled.Pix[y*scaled.Stride : y*scaled.Stride+size*4]
		for x := 0; x < size; x++ {
			tensor[i] = float32(row[x*4]) / 255.0
			tensor[i+1] = float32(row[x*4+1]) / 255.0
			tensor[i+2] = float32(row[x*4+2]) / 255.0
			i += 3
		}
	}
	return tensor, nil
}

// DecodeFile reads and decodes a JPEG or PNG image from disk.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImageDecode).
			FileContext(path, 0).
			Build()
	}
	return img, nil
}
