package scanner

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/leafscan-go/internal/classifier"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/frames"
)

type stubCascade struct {
	outcome classifier.Outcome
	entered chan struct{}
	release chan struct{}
}

func (s *stubCascade) Classify(tensor []float32) classifier.Outcome {
	if s.entered != nil {
		close(s.entered)
		s.entered = nil
	}
	if s.release != nil {
		<-s.release
	}
	return s.outcome
}

type stubStore struct {
	saved int
	err   error
}

func (s *stubStore) SaveFrame(img image.Image, field string, confidence float64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved++
	return "/tmp/evidence.jpg", nil
}

func testFrame() frames.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(0, 0, color.RGBA{G: 255, A: 255})
	return frames.Frame{Image: img, Timestamp: time.Now()}
}

func samplerSettings(interval time.Duration) *conf.ScannerSettings {
	return &conf.ScannerSettings{Interval: interval, InputSize: 4, DefaultPadding: 0.5}
}

func TestSamplerStateMachine(t *testing.T) {
	t.Parallel()

	session := NewSession(1, "north-field", 0.5)
	s := NewSampler(session, &stubCascade{}, &stubStore{}, samplerSettings(time.Millisecond), nil)

	in := make(chan frames.Frame)
	require.NoError(t, s.Start(in))
	assert.Error(t, s.Start(in), "second start must fail")

	snap := s.Stop()
	require.NotNil(t, snap)
	assert.Same(t, snap, s.Stop(), "stop must be idempotent")
	assert.Equal(t, StateStopped, s.State())
}

func TestSamplerAppendsEvidenceOnDetection(t *testing.T) {
	t.Parallel()

	session := NewSession(7, "east-field", 0.5)
	store := &stubStore{}
	cascade := &stubCascade{outcome: classifier.Outcome{Kind: classifier.LeafInfested, Confidence: 0.8}}
	s := NewSampler(session, cascade, store, samplerSettings(time.Millisecond), nil)

	in := make(chan frames.Frame, 3)
	require.NoError(t, s.Start(in))
	for i := 0; i < 3; i++ {
		in <- testFrame()
		time.Sleep(5 * time.Millisecond)
	}
	close(in)

	snap := s.Stop()
	assert.EqualValues(t, 3, snap.Detections)
	require.Len(t, snap.Evidence, 3)
	for _, e := range snap.Evidence {
		assert.Equal(t, "/tmp/evidence.jpg", e.Path)
		assert.InDelta(t, 0.8, e.Confidence, 1e-6)
		assert.Greater(t, e.ProcessingTime, time.Duration(0))
	}
	assert.Len(t, snap.Confidences(), len(snap.Paths()))
}

func TestSamplerThrottle(t *testing.T) {
	t.Parallel()

	// Scaled-down version of the rate cap: a 50 ms throttle fed for
	// 150 ms admits at most 4 frames, counting both boundaries.
	session := NewSession(1, "field", 0.5)
	cascade := &stubCascade{outcome: classifier.Outcome{Kind: classifier.LeafHealthy, Confidence: 0.9}}
	s := NewSampler(session, cascade, &stubStore{}, samplerSettings(50*time.Millisecond), nil)

	in := make(chan frames.Frame)
	require.NoError(t, s.Start(in))

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case in <- testFrame():
		default:
		}
		time.Sleep(2 * time.Millisecond)
	}
	close(in)

	snap := s.Stop()
	assert.LessOrEqual(t, snap.FramesAnalyzed, int64(4))
	assert.GreaterOrEqual(t, snap.FramesAnalyzed, int64(2))
}

func TestSamplerSkipsBadFrames(t *testing.T) {
	t.Parallel()

	session := NewSession(1, "field", 0.5)
	s := NewSampler(session, &stubCascade{}, &stubStore{}, samplerSettings(time.Millisecond), nil)

	in := make(chan frames.Frame, 1)
	require.NoError(t, s.Start(in))
	in <- frames.Frame{Image: nil, Timestamp: time.Now()}
	close(in)

	// Let the consumer drain before stopping.
	time.Sleep(20 * time.Millisecond)
	snap := s.Stop()
	assert.EqualValues(t, 1, snap.Skipped)
	assert.EqualValues(t, 0, snap.FramesAnalyzed)
}

func TestSamplerDiscardsDetectionAfterStop(t *testing.T) {
	t.Parallel()

	session := NewSession(1, "field", 0.5)
	store := &stubStore{}
	cascade := &stubCascade{
		outcome: classifier.Outcome{Kind: classifier.LeafInfested, Confidence: 0.9},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	entered := cascade.entered
	s := NewSampler(session, cascade, store, samplerSettings(time.Millisecond), nil)

	in := make(chan frames.Frame, 1)
	require.NoError(t, s.Start(in))
	in <- testFrame()

	<-entered

	stopped := make(chan *Snapshot)
	go func() { stopped <- s.Stop() }()

	// Wait for Stop to flip the state, then let the in-flight
	// classification finish.
	require.Eventually(t, func() bool { return s.State() == StateStopped }, time.Second, time.Millisecond)
	close(cascade.release)

	snap := <-stopped
	assert.EqualValues(t, 0, snap.Detections, "in-flight detection must be discarded after stop")
	assert.Empty(t, snap.Evidence)
	assert.Equal(t, 1, store.saved, "frame persistence may complete, only the append is discarded")
}

func TestSessionPadsMissingConfidence(t *testing.T) {
	t.Parallel()

	session := NewSession(3, "west-field", 0.5)
	session.Start()
	session.AppendEvidence(Evidence{Path: "a.jpg", Confidence: 0.7})
	session.AppendEvidence(Evidence{Path: "b.jpg", Confidence: ConfidenceMissing})
	session.AppendEvidence(Evidence{Path: "c.jpg", Confidence: 0.9})

	snap := session.Close()
	require.Len(t, snap.Evidence, 3)
	assert.InDelta(t, 0.5, snap.Evidence[1].Confidence, 1e-6)
	assert.EqualValues(t, 1, snap.Padded)
	assert.InDelta(t, 0.7, snap.Evidence[0].Confidence, 1e-6)
}

func TestSessionSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	session := NewSession(1, "field", 0.5)
	session.Start()
	session.AppendEvidence(Evidence{Path: "a.jpg", Confidence: 0.6})

	snap := session.Close()
	session.AppendEvidence(Evidence{Path: "b.jpg", Confidence: 0.7})
	assert.Len(t, snap.Evidence, 1)
}
