package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/errors"
)

type stubLeafStage struct {
	pred  LeafPrediction
	err   error
	calls int
}

func (s *stubLeafStage) Predict(tensor []float32) (LeafPrediction, error) {
	s.calls++
	return s.pred, s.err
}

type stubPestStage struct {
	prob  float32
	err   error
	calls int
}

func (s *stubPestStage) Predict(tensor []float32) (float32, error) {
	s.calls++
	return s.prob, s.err
}

func testSettings() *conf.ScannerSettings {
	return &conf.ScannerSettings{LeafThreshold: 0.5, PestThreshold: 0.5}
}

func TestCascadeShortCircuit(t *testing.T) {
	t.Parallel()

	leaf := &stubLeafStage{pred: LeafPrediction{Label: LabelOther, Confidence: 0.9}}
	pest := &stubPestStage{prob: 0.99}
	c := NewCascade(leaf, pest, testSettings())

	out := c.Classify(nil)

	assert.Equal(t, NotALeaf, out.Kind)
	assert.InDelta(t, 0.9, out.Confidence, 1e-6)
	assert.Equal(t, 1, leaf.calls)
	assert.Equal(t, 0, pest.calls, "stage 2 must not run for non-leaf frames")
}

func TestCascadeLowConfidenceLeaf(t *testing.T) {
	t.Parallel()

	leaf := &stubLeafStage{pred: LeafPrediction{Label: LabelLeaf, Confidence: 0.49}}
	pest := &stubPestStage{prob: 0.99}
	c := NewCascade(leaf, pest, testSettings())

	out := c.Classify(nil)

	assert.Equal(t, NotALeaf, out.Kind)
	assert.Equal(t, 0, pest.calls)
}

func TestCascadeInfested(t *testing.T) {
	t.Parallel()

	leaf := &stubLeafStage{pred: LeafPrediction{Label: LabelLeaf, Confidence: 0.8}}
	pest := &stubPestStage{prob: 0.73}
	c := NewCascade(leaf, pest, testSettings())

	out := c.Classify(nil)

	assert.Equal(t, LeafInfested, out.Kind)
	assert.InDelta(t, 0.73, out.Confidence, 1e-6)
	assert.Equal(t, 1, pest.calls)
}

func TestCascadeHealthy(t *testing.T) {
	t.Parallel()

	leaf := &stubLeafStage{pred: LeafPrediction{Label: LabelLeaf, Confidence: 0.8}}
	pest := &stubPestStage{prob: 0.5} // exactly at threshold is not infested
	c := NewCascade(leaf, pest, testSettings())

	out := c.Classify(nil)

	assert.Equal(t, LeafHealthy, out.Kind)
	assert.InDelta(t, 0.5, out.Confidence, 1e-6)
}

func TestCascadeDegradesOnModelError(t *testing.T) {
	t.Parallel()

	inferErr := errors.Newf("invoke failed").Category(errors.CategoryModelInference).Build()

	t.Run("stage 1 error", func(t *testing.T) {
		t.Parallel()
		leaf := &stubLeafStage{err: inferErr}
		pest := &stubPestStage{}
		out := NewCascade(leaf, pest, testSettings()).Classify(nil)
		assert.Equal(t, Outcome{Kind: NotALeaf, Confidence: 0}, out)
		assert.Equal(t, 0, pest.calls)
	})

	t.Run("stage 2 error", func(t *testing.T) {
		t.Parallel()
		leaf := &stubLeafStage{pred: LeafPrediction{Label: LabelLeaf, Confidence: 0.9}}
		pest := &stubPestStage{err: inferErr}
		out := NewCascade(leaf, pest, testSettings()).Classify(nil)
		assert.Equal(t, Outcome{Kind: NotALeaf, Confidence: 0}, out)
	})
}

func TestArgmaxFirstIndexWins(t *testing.T) {
	t.Parallel()

	pred := Argmax([]float32{0.4, 0.4, 0.2})
	assert.Equal(t, LabelLeaf, pred.Label)
	assert.InDelta(t, 0.4, pred.Confidence, 1e-6)

	pred = Argmax([]float32{0.1, 0.3, 0.6})
	assert.Equal(t, LabelAnimal, pred.Label)

	pred = Argmax(nil)
	assert.Equal(t, LeafPrediction{Label: LabelLeaf, Confidence: 0}, pred)
}
