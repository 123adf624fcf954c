// Package frames supplies camera frames to the analysis loop.
package frames

import (
	"context"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/agroscan/leafscan-go/internal/imaging"
	"github.com/agroscan/leafscan-go/internal/logging"
)

// Frame is a single decoded camera frame with its arrival time.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	// SourcePath is set when the frame came from a file rather than a
	// live feed.
	SourcePath string
}

// Source produces a stream of frames. The channel closes when the
// source is exhausted or the context is cancelled.
type Source interface {
	Frames(ctx context.Context) <-chan Frame
}

// DirectorySource polls a directory for image files and emits each one
// as a frame, oldest first. It stands in for a live camera feed on
// devices that drop captures into a spool directory.
type DirectorySource struct {
	Dir      string
	Poll     time.Duration
	FollowUp bool // keep polling for new files after the initial pass
	log      *slog.Logger
	seen     map[string]struct{}
}

// NewDirectorySource creates a source over the given spool directory.
func NewDirectorySource(dir string, poll time.Duration, followUp bool) *DirectorySource {
	log := logging.ForService("frames")
	if log == nil {
		log = slog.Default().With("service", "frames")
	}
	return &DirectorySource{
		Dir:      dir,
		Poll:     poll,
		FollowUp: followUp,
		log:      log,
		seen:     make(map[string]struct{}),
	}
}

// Frames starts emitting frames on the returned channel.
func (ds *DirectorySource) Frames(ctx context.Context) <-chan Frame {
	out := make(chan Frame)
	go func() {
		defer close(out)
		for {
			emitted := ds.emitNew(ctx, out)
			if !ds.FollowUp {
				return
			}
			if !emitted {
				select {
				case <-ctx.Done():
					return
				case <-time.After(ds.Poll):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}

// emitNew decodes and sends any files not yet seen, returning whether
// anything was emitted.
func (ds *DirectorySource) emitNew(ctx context.Context, out chan<- Frame) bool {
	entries, err := os.ReadDir(ds.Dir)
	if err != nil {
		ds.log.Warn("Cannot read frame directory", "dir", ds.Dir, "error", err)
		return false
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
		default:
			continue
		}
		path := filepath.Join(ds.Dir, e.Name())
		if _, ok := ds.seen[path]; ok {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	emitted := false
	for _, path := range paths {
		ds.seen[path] = struct{}{}
		img, err := imaging.DecodeFile(path)
		if err != nil {
			ds.log.Warn("Skipping undecodable frame file", "path", path, "error", err)
			continue
		}
		select {
		case <-ctx.Done():
			return emitted
		case out <- Frame{Image: img, Timestamp: time.Now(), SourcePath: path}:
			emitted = true
		}
	}
	return emitted
}
