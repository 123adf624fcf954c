package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/leafscan-go/internal/scanner"
	"github.com/agroscan/leafscan-go/internal/synthesis"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "leafscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSnapshot(id string) *scanner.Snapshot {
	started := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	return &scanner.Snapshot{
		ID:             id,
		FieldID:        12,
		FieldName:      "North Field",
		StartedAt:      started,
		EndedAt:        started.Add(3 * time.Minute),
		FramesAnalyzed: 40,
		Detections:     2,
		Evidence: []scanner.Evidence{
			{Path: "a.jpg", Confidence: 0.8, ProcessingTime: 120 * time.Millisecond},
			{Path: "b.jpg", Confidence: 0.6, ProcessingTime: 95 * time.Millisecond},
		},
	}
}

func testRecord() *synthesis.Record {
	return &synthesis.Record{
		ImageIDs:         []int{41, 42},
		FieldID:          12,
		Result:           synthesis.ResultPestsDetected,
		PredictionValue:  "0.70",
		TimeInitial:      "09:00:00",
		TimeFinal:        "09:03:00",
		DateDetection:    "2026-08-30",
		PlaguePercentage: 4,
	}
}

func TestSaveAndListPending(t *testing.T) {
	store := openTestStore(t)

	_, err := store.SaveSession(testSnapshot("s-pending"), testRecord(), 0, false)
	require.NoError(t, err)
	_, err = store.SaveSession(testSnapshot("s-done"), testRecord(), 9, true)
	require.NoError(t, err)

	pending, err := store.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s-pending", pending[0].SessionID)
	assert.Len(t, pending[0].Evidence, 2)
	require.NotNil(t, pending[0].Detection)
	assert.False(t, pending[0].Detection.Submitted)
	assert.InDelta(t, 0.8, pending[0].Evidence[0].Confidence, 1e-9)

	replay, err := pending[0].Detection.ToRecord()
	require.NoError(t, err)
	assert.Equal(t, []int{41, 42}, replay.ImageIDs)
	assert.Equal(t, synthesis.ResultPestsDetected, replay.Result)
}

func TestServerImageIDAttribution(t *testing.T) {
	store := openTestStore(t)

	// A single evidence row with a single uploaded image is attributable.
	snap := testSnapshot("s-single")
	snap.Detections = 1
	snap.Evidence = snap.Evidence[:1]
	record := testRecord()
	record.ImageIDs = []int{41}

	saved, err := store.SaveSession(snap, record, 5, true)
	require.NoError(t, err)
	require.Len(t, saved.Evidence, 1)
	assert.Equal(t, 41, saved.Evidence[0].ServerImageID)

	// With several evidence rows the ids arrive in completion order and
	// cannot be matched to rows, so no attribution is recorded.
	multi, err := store.SaveSession(testSnapshot("s-multi"), testRecord(), 6, true)
	require.NoError(t, err)
	require.Len(t, multi.Evidence, 2)
	assert.Zero(t, multi.Evidence[0].ServerImageID)
	assert.Zero(t, multi.Evidence[1].ServerImageID)
}

func TestMarkSubmitted(t *testing.T) {
	store := openTestStore(t)

	_, err := store.SaveSession(testSnapshot("s1"), testRecord(), 0, false)
	require.NoError(t, err)

	require.NoError(t, store.MarkSubmitted("s1", 77))

	pending, err := store.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkSubmittedUnknownSession(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.MarkSubmitted("nope", 1))
}
