package scanner

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/agroscan/leafscan-go/internal/classifier"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/frames"
	"github.com/agroscan/leafscan-go/internal/imaging"
	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/observability"
)

// Sampler states.
const (
	StateIdle int32 = iota
	StateScanning
	StateStopped
)

// Classifier is the cascade contract the sampler drives.
type Classifier interface {
	Classify(tensor []float32) classifier.Outcome
}

// CaptureStore persists a positive-detection frame and returns its path.
type CaptureStore interface {
	SaveFrame(img image.Image, field string, confidence float64) (string, error)
}

// Sampler consumes a frame stream, throttles it to the configured
// minimum inter-analysis interval and feeds eligible frames through the
// cascade. Positive detections are persisted and appended to the session.
type Sampler struct {
	session   *Session
	classify  Classifier
	store     CaptureStore
	metrics   *observability.Metrics
	limiter   *rate.Limiter
	inputSize int

	state    atomic.Int32
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	snapshot *Snapshot

	log *slog.Logger
}

// NewSampler wires a sampler over the given session, cascade and
// capture store. metrics may be nil.
func NewSampler(session *Session, classify Classifier, store CaptureStore, settings *conf.ScannerSettings, metrics *observability.Metrics) *Sampler {
	log := logging.ForService("scanner")
	if log == nil {
		log = slog.Default().With("service", "scanner")
	}
	return &Sampler{
		session:   session,
		classify:  classify,
		store:     store,
		metrics:   metrics,
		limiter:   rate.NewLimiter(rate.Every(settings.Interval), 1),
		inputSize: settings.InputSize,
		done:      make(chan struct{}),
		log:       log,
	}
}

// Start transitions Idle to Scanning and begins consuming the frame
// stream on its own goroutine. Calling Start twice, or after Stop, is
// a state error.
func (s *Sampler) Start(in <-chan frames.Frame) error {
	if !s.state.CompareAndSwap(StateIdle, StateScanning) {
		return errors.Newf("sampler not idle").
			Component("scanner").
			Category(errors.CategoryState).
			Context("state", s.state.Load()).
			Build()
	}

	s.session.Start()
	s.log.Info("Scan session started",
		"session", s.session.ID,
		"field", s.session.FieldName,
		"interval", s.limiter.Limit())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case f, ok := <-in:
				if !ok {
					return
				}
				s.handle(f)
			}
		}
	}()
	return nil
}

// handle runs one frame through throttle, preprocessing and the cascade.
func (s *Sampler) handle(f frames.Frame) {
	if !s.limiter.Allow() {
		s.metrics.RecordFrameThrottled()
		return
	}

	start := time.Now()
	tensor, err := imaging.Preprocess(f.Image, s.inputSize)
	if err != nil {
		s.session.MarkSkipped()
		s.metrics.RecordFrameSkipped()
		s.log.Warn("Skipping frame, preprocess failed", "session", s.session.ID, "error", err)
		return
	}

	outcome := s.classify.Classify(tensor)
	elapsed := time.Since(start)
	s.session.MarkAnalyzed()
	s.metrics.RecordFrameAnalyzed()
	s.metrics.RecordInferenceDuration(elapsed)

	if outcome.Kind != classifier.LeafInfested {
		return
	}

	path, err := s.store.SaveFrame(f.Image, s.session.FieldName, float64(outcome.Confidence))
	if err != nil {
		s.session.MarkSkipped()
		s.metrics.RecordFrameSkipped()
		s.log.Error("Cannot persist evidence frame", "session", s.session.ID, "error", err)
		return
	}

	// Consult the current state, not a cached one. A classification that
	// was in flight when Stop was called completes but is discarded.
	if s.state.Load() != StateScanning {
		s.log.Debug("Discarding detection, session already stopped", "session", s.session.ID, "path", path)
		return
	}

	s.session.AppendEvidence(Evidence{
		Path:           path,
		Confidence:     float64(outcome.Confidence),
		ProcessingTime: elapsed,
	})
	s.metrics.RecordDetection()
	s.log.Info("Pest detected",
		"session", s.session.ID,
		"path", path,
		"confidence", outcome.Confidence,
		"processing_ms", elapsed.Milliseconds())
}

// Stop transitions to Stopped, waits for the analysis goroutine to
// quiesce and returns the session's authoritative snapshot. Stop is
// idempotent; repeat calls return the same snapshot.
func (s *Sampler) Stop() *Snapshot {
	s.stopOnce.Do(func() {
		s.state.Store(StateStopped)
		close(s.done)
		s.wg.Wait()
		s.snapshot = s.session.Close()
		s.log.Info("Scan session stopped",
			"session", s.session.ID,
			"frames_analyzed", s.snapshot.FramesAnalyzed,
			"detections", s.snapshot.Detections,
			"skipped", s.snapshot.Skipped)
	})
	return s.snapshot
}

// State returns the current sampler state.
func (s *Sampler) State() int32 {
	return s.state.Load()
}
