package capture

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/leafscan-go/internal/conf"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	return img
}

func TestSaveFrame(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store := NewStore(&conf.CaptureSettings{Path: base, JPEGQuality: 80})
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }

	path, err := store.SaveFrame(testImage(), "North Field 3", 0.87)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "north-field-3", "pest_north-field-3_1700000000000_c87.jpg"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSaveFrameNilImage(t *testing.T) {
	t.Parallel()

	store := NewStore(&conf.CaptureSettings{Path: t.TempDir(), JPEGQuality: 80})
	_, err := store.SaveFrame(nil, "field", 0.5)
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "north-field-3", slugify("North Field 3"))
	assert.Equal(t, "unknown", slugify(""))
	assert.Equal(t, "unknown", slugify("---"))
	assert.Equal(t, "parcela-sur", slugify("  Parcela Sur "))
}
