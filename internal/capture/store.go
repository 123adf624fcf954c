// Package capture persists positive-detection frames as evidence images.
package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/logging"
)

// Store writes evidence JPEGs under a base directory, one subdirectory
// per field.
type Store struct {
	basePath string
	quality  int
	log      *slog.Logger
	now      func() time.Time
}

// NewStore creates an evidence store rooted at the configured capture path.
func NewStore(settings *conf.CaptureSettings) *Store {
	log := logging.ForService("capture")
	if log == nil {
		log = slog.Default().With("service", "capture")
	}
	return &Store{
		basePath: settings.Path,
		quality:  settings.JPEGQuality,
		log:      log,
		now:      time.Now,
	}
}

// SaveFrame encodes the frame as JPEG and returns the stored path.
// File names carry the field, capture time and rounded confidence so
// operators can triage evidence directories without opening files.
func (s *Store) SaveFrame(img image.Image, field string, confidence float64) (string, error) {
	if img == nil {
		return "", errors.Newf("nil frame").
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}

	fieldSlug := slugify(field)
	dir := filepath.Join(s.basePath, fieldSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	name := fmt.Sprintf("pest_%s_%d_c%02d.jpg", fieldSlug, s.now().UnixMilli(), int(confidence*100))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: s.quality}); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	if err := f.Close(); err != nil {
		return "", errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	s.log.Debug("Saved evidence frame", "path", path, "confidence", confidence)
	return path, nil
}

// slugify makes a field name safe for file paths.
func slugify(field string) string {
	field = strings.TrimSpace(strings.ToLower(field))
	if field == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "unknown"
	}
	return slug
}
