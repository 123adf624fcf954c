package analysis

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/leafscan-go/internal/backend"
	"github.com/agroscan/leafscan-go/internal/classifier"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/datastore"
	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/frames"
	"github.com/agroscan/leafscan-go/internal/scanner"
	"github.com/agroscan/leafscan-go/internal/synthesis"
	"github.com/agroscan/leafscan-go/internal/uploader"
)

type stubFields struct {
	field *backend.Field
	err   error
}

func (s *stubFields) GetField(ctx context.Context, fieldID int) (*backend.Field, error) {
	return s.field, s.err
}

type stubDetections struct {
	err     error
	records []*synthesis.Record
}

func (s *stubDetections) CreateDetection(ctx context.Context, record *synthesis.Record) (int, error) {
	s.records = append(s.records, record)
	if s.err != nil {
		return 0, s.err
	}
	return 99, nil
}

type stubImages struct{ nextID int }

func (s *stubImages) UploadImage(ctx context.Context, path string, plaguePercentage float64) (int, error) {
	s.nextID++
	return s.nextID, nil
}

type infestedCascade struct{}

func (infestedCascade) Classify(tensor []float32) classifier.Outcome {
	return classifier.Outcome{Kind: classifier.LeafInfested, Confidence: 0.8}
}

type memStore struct{ n int }

func (m *memStore) SaveFrame(img image.Image, field string, confidence float64) (string, error) {
	m.n++
	return "/tmp/evidence.jpg", nil
}

type chanSource struct{ ch chan frames.Frame }

func (c *chanSource) Frames(ctx context.Context) <-chan frames.Frame { return c.ch }

func testFrame() frames.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(0, 0, color.RGBA{G: 255, A: 255})
	return frames.Frame{Image: img, Timestamp: time.Now()}
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Scanner = conf.ScannerSettings{Interval: time.Millisecond, InputSize: 4, DefaultPadding: 0.5}
	s.Upload = conf.UploadSettings{BatchSize: 5, MaxRetries: 3, RetryDelay: time.Millisecond, BatchDelay: time.Millisecond}
	s.Backend = conf.BackendSettings{DefaultPlantCount: 100}
	return s
}

func newRunner(t *testing.T, fields *stubFields, detections *stubDetections, withLocal bool) (*Runner, *datastore.Store) {
	t.Helper()
	settings := testSettings()

	var local *datastore.Store
	if withLocal {
		var err error
		local, err = datastore.Open(filepath.Join(t.TempDir(), "leafscan.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = local.Close() })
	}

	return &Runner{
		Settings:  settings,
		Cascade:   infestedCascade{},
		Store:     &memStore{},
		Fields:    fields,
		Detection: detections,
		Uploader:  uploader.New(&stubImages{}, &settings.Upload, nil),
		Local:     local,
	}, local
}

func runShortSession(t *testing.T, r *Runner, fieldID int) (*Outcome, error) {
	t.Helper()
	src := &chanSource{ch: make(chan frames.Frame, 16)}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for i := 0; i < 4; i++ {
			src.ch <- testFrame()
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	return r.RunSession(ctx, fieldID, src)
}

func TestRunSessionHappyPath(t *testing.T) {
	fields := &stubFields{field: &backend.Field{ID: 12, Name: "North Field", PlantCount: 50}}
	detections := &stubDetections{}
	r, local := newRunner(t, fields, detections, true)

	outcome, err := runShortSession(t, r, 12)
	require.NoError(t, err)

	assert.Equal(t, 99, outcome.ServerDetectionID)
	assert.Positive(t, outcome.Snapshot.Detections)
	assert.Len(t, outcome.ImageIDs, int(outcome.Snapshot.Detections))
	assert.Equal(t, synthesis.ResultPestsDetected, outcome.Record.Result)
	assert.NoError(t, outcome.UploadErr)

	pending, err := local.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending, "an accepted session is not pending")
}

func TestRunSessionFieldLookupFallback(t *testing.T) {
	fields := &stubFields{err: errors.NewStd("backend down")}
	detections := &stubDetections{}
	r, _ := newRunner(t, fields, detections, false)

	outcome, err := runShortSession(t, r, 12)
	require.NoError(t, err)

	// affected = 100 * detections / default plant count of 100
	expected := float64(outcome.Snapshot.Detections)
	assert.InDelta(t, expected, outcome.Record.PlaguePercentage, 1e-9)
}

func TestRunSessionRejectedDetectionIsRetained(t *testing.T) {
	fields := &stubFields{field: &backend.Field{ID: 12, PlantCount: 50}}
	detections := &stubDetections{err: &backend.ServerRejectedError{Code: 422, Body: "bad payload"}}
	r, local := newRunner(t, fields, detections, true)

	outcome, err := r.SubmitSnapshot(context.Background(), &scanner.Snapshot{
		ID:         "s-retained",
		FieldID:    12,
		Detections: 1,
		Evidence:   []scanner.Evidence{{Path: "a.jpg", Confidence: 0.8}},
	})
	require.Error(t, err)
	require.NotNil(t, outcome.Record)

	pending, listErr := local.ListPending()
	require.NoError(t, listErr)
	require.Len(t, pending, 1, "a rejected session must be retained for resubmission")

	// The backend recovers; the retained record goes through unchanged.
	detections.err = nil
	accepted, retryErr := r.RetryPending(context.Background())
	require.NoError(t, retryErr)
	assert.Equal(t, 1, accepted)

	pending, listErr = local.ListPending()
	require.NoError(t, listErr)
	assert.Empty(t, pending)

	replayed := detections.records[len(detections.records)-1]
	assert.Equal(t, outcome.Record.ImageIDs, replayed.ImageIDs)
	assert.Equal(t, outcome.Record.PredictionValue, replayed.PredictionValue)
}
