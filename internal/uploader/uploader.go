// Package uploader pushes evidence images to the backend in throttled
// parallel batches with per-image retry.
package uploader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agroscan/leafscan-go/internal/backend"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/observability"
	"github.com/agroscan/leafscan-go/internal/scanner"
)

// ImageService is the single-image upload operation wrapped by the
// batch and retry logic.
type ImageService interface {
	UploadImage(ctx context.Context, path string, plaguePercentage float64) (int, error)
}

// Uploader batches evidence uploads: parallel within a group,
// sequential across groups, linear backoff per image.
type Uploader struct {
	svc        ImageService
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	batchDelay time.Duration
	metrics    *observability.Metrics
	log        *slog.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates an uploader over the given image service. metrics may be nil.
func New(svc ImageService, settings *conf.UploadSettings, metrics *observability.Metrics) *Uploader {
	log := logging.ForService("uploader")
	if log == nil {
		log = slog.Default().With("service", "uploader")
	}
	return &Uploader{
		svc:        svc,
		batchSize:  settings.BatchSize,
		maxRetries: settings.MaxRetries,
		retryDelay: settings.RetryDelay,
		batchDelay: settings.BatchDelay,
		metrics:    metrics,
		log:        log,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// UploadAll uploads every evidence image and returns the server ids of
// the ones that succeeded, in completion order. Individual failures are
// logged and skipped; the call fails only when a non-empty input yields
// zero successful uploads.
func (u *Uploader) UploadAll(ctx context.Context, evidence []scanner.Evidence) ([]int, error) {
	if len(evidence) == 0 {
		return []int{}, nil
	}

	ids := make([]int, 0, len(evidence))
	var mu sync.Mutex
	failed := 0

	groups := (len(evidence) + u.batchSize - 1) / u.batchSize
	for g := 0; g < groups; g++ {
		lo := g * u.batchSize
		hi := min(lo+u.batchSize, len(evidence))

		eg, groupCtx := errgroup.WithContext(ctx)
		for _, e := range evidence[lo:hi] {
			eg.Go(func() error {
				id, err := u.uploadWithRetry(groupCtx, e)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					u.log.Error("Evidence upload failed permanently", "path", e.Path, "error", err)
					return nil // individual failures do not abort the batch
				}
				ids = append(ids, id)
				return nil
			})
		}
		_ = eg.Wait()

		if g < groups-1 {
			u.sleep(ctx, u.batchDelay)
		}
	}

	if len(ids) == 0 {
		return nil, errors.Newf("all %d evidence uploads failed", len(evidence)).
			Component("uploader").
			Category(errors.CategoryUpload).
			Context("failed", failed).
			Build()
	}

	u.log.Info("Evidence upload batch finished",
		"total", len(evidence),
		"succeeded", len(ids),
		"failed", failed)
	return ids, nil
}

// uploadWithRetry attempts one image up to maxRetries times with a
// linearly growing delay between attempts.
func (u *Uploader) uploadWithRetry(ctx context.Context, e scanner.Evidence) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		u.metrics.RecordUploadAttempt()
		id, err := u.svc.UploadImage(ctx, e.Path, e.Confidence*100)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if !backend.IsRetryable(err) {
			u.log.Warn("Upload error is not retryable", "path", e.Path, "error", err)
			break
		}
		if attempt < u.maxRetries {
			delay := time.Duration(attempt) * u.retryDelay
			u.log.Warn("Upload attempt failed, retrying",
				"path", e.Path,
				"attempt", attempt,
				"delay", delay,
				"error", err)
			u.sleep(ctx, delay)
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}
	u.metrics.RecordUploadFailure()
	return 0, lastErr
}
