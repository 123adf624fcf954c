package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/leafscan-go/internal/errors"
)

func solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPreprocessShape(t *testing.T) {
	t.Parallel()

	tensor, err := Preprocess(solid(640, 480, color.RGBA{R: 255, A: 255}), 224)
	require.NoError(t, err)
	assert.Len(t, tensor, 224*224*3)
}

func TestPreprocessNormalization(t *testing.T) {
	t.Parallel()

	// Pure green scales to pure green: R=0, G=1, B=0 everywhere.
	tensor, err := Preprocess(solid(10, 10, color.RGBA{G: 255, A: 255}), 4)
	require.NoError(t, err)

	for i := 0; i < len(tensor); i += 3 {
		assert.InDelta(t, 0.0, tensor[i], 0.01)
		assert.InDelta(t, 1.0, tensor[i+1], 0.01)
		assert.InDelta(t, 0.0, tensor[i+2], 0.01)
	}
}

func TestPreprocessInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Preprocess(nil, 224)
	assert.True(t, errors.HasCategory(err, errors.CategoryImageDecode))

	_, err = Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)), 224)
	assert.True(t, errors.HasCategory(err, errors.CategoryImageDecode))

	_, err = Preprocess(solid(10, 10, color.RGBA{A: 255}), 0)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestDecodeFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(8, 8, color.RGBA{B: 255, A: 255})))
	require.NoError(t, f.Close())

	img, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, errors.HasCategory(err, errors.CategoryFileIO))
}
