// Package scanner drives frame sampling and accumulates a scan session.
package scanner

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agroscan/leafscan-go/internal/logging"
)

// Evidence is one positive detection: the persisted frame, the pest
// confidence that triggered it and how long analysis took.
type Evidence struct {
	Path           string
	Confidence     float64
	ProcessingTime time.Duration
}

// ConfidenceMissing marks an evidence record whose confidence was never
// recorded. Close replaces it with the configured default.
var ConfidenceMissing = math.NaN()

// Session accumulates one scan over a field. The evidence slice has
// exactly one writer, the analysis goroutine; readers see counters via
// atomics and get the authoritative evidence only from the Close snapshot.
type Session struct {
	ID        string
	FieldID   int
	FieldName string

	framesAnalyzed atomic.Int64
	detections     atomic.Int64
	skipped        atomic.Int64
	padded         atomic.Int64

	evidence  []Evidence
	startedAt time.Time
	endedAt   time.Time

	defaultPadding float64
	log            *slog.Logger
}

// Snapshot is the immutable result of a closed session.
type Snapshot struct {
	ID             string
	FieldID        int
	FieldName      string
	StartedAt      time.Time
	EndedAt        time.Time
	FramesAnalyzed int64
	Detections     int64
	Skipped        int64
	Padded         int64
	Evidence       []Evidence
}

// NewSession creates a session for the given field.
func NewSession(fieldID int, fieldName string, defaultPadding float64) *Session {
	log := logging.ForService("scanner")
	if log == nil {
		log = slog.Default().With("service", "scanner")
	}
	return &Session{
		ID:             uuid.New().String(),
		FieldID:        fieldID,
		FieldName:      fieldName,
		defaultPadding: defaultPadding,
		log:            log,
	}
}

// Start records the session start time and resets counters.
func (s *Session) Start() {
	s.framesAnalyzed.Store(0)
	s.detections.Store(0)
	s.skipped.Store(0)
	s.padded.Store(0)
	s.evidence = s.evidence[:0]
	s.startedAt = time.Now()
}

// MarkAnalyzed increments the analyzed-frame counter.
func (s *Session) MarkAnalyzed() { s.framesAnalyzed.Add(1) }

// MarkSkipped increments the skipped-frame counter.
func (s *Session) MarkSkipped() { s.skipped.Add(1) }

// AppendEvidence records a positive detection. Only the analysis
// goroutine may call this.
func (s *Session) AppendEvidence(e Evidence) {
	s.evidence = append(s.evidence, e)
	s.detections.Add(1)
}

// FramesAnalyzed returns a best-effort count for progress display.
func (s *Session) FramesAnalyzed() int64 { return s.framesAnalyzed.Load() }

// Detections returns a best-effort count for progress display.
func (s *Session) Detections() int64 { return s.detections.Load() }

// Skipped returns a best-effort count for progress display.
func (s *Session) Skipped() int64 { return s.skipped.Load() }

// Padded returns how many evidence records had a missing confidence
// replaced at close time.
func (s *Session) Padded() int64 { return s.padded.Load() }

// Close seals the session and returns its authoritative snapshot. The
// analysis goroutine must have quiesced before Close is called.
//
// Evidence records with a missing confidence are padded with the
// configured default rather than dropped. This keeps the record count
// aligned with the persisted images; the padding is counted and logged
// because it indicates a recording defect upstream.
func (s *Session) Close() *Snapshot {
	s.endedAt = time.Now()

	evidence := make([]Evidence, len(s.evidence))
	copy(evidence, s.evidence)
	for i := range evidence {
		if math.IsNaN(evidence[i].Confidence) {
			evidence[i].Confidence = s.defaultPadding
			s.padded.Add(1)
			s.log.Warn("Padding missing evidence confidence",
				"session", s.ID,
				"path", evidence[i].Path,
				"default", s.defaultPadding)
		}
	}

	return &Snapshot{
		ID:             s.ID,
		FieldID:        s.FieldID,
		FieldName:      s.FieldName,
		StartedAt:      s.startedAt,
		EndedAt:        s.endedAt,
		FramesAnalyzed: s.framesAnalyzed.Load(),
		Detections:     s.detections.Load(),
		Skipped:        s.skipped.Load(),
		Padded:         s.padded.Load(),
		Evidence:       evidence,
	}
}

// Confidences returns the snapshot's confidence values in evidence order.
func (sn *Snapshot) Confidences() []float64 {
	out := make([]float64, len(sn.Evidence))
	for i, e := range sn.Evidence {
		out[i] = e.Confidence
	}
	return out
}

// Paths returns the snapshot's evidence file paths in evidence order.
func (sn *Snapshot) Paths() []string {
	out := make([]string, len(sn.Evidence))
	for i, e := range sn.Evidence {
		out[i] = e.Path
	}
	return out
}
