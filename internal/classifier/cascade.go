package classifier

import (
	"log/slog"

	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/logging"
)

// Cascade chains the leaf-presence and pest-presence stages and applies
// the decision policy. A negative stage-1 result short-circuits stage 2.
type Cascade struct {
	leaf          LeafStage
	pest          PestStage
	leafThreshold float32
	pestThreshold float32
	log           *slog.Logger
}

// NewCascade builds a cascade over the given stages using the configured
// decision thresholds.
func NewCascade(leaf LeafStage, pest PestStage, settings *conf.ScannerSettings) *Cascade {
	log := logging.ForService("classifier")
	if log == nil {
		log = slog.Default().With("service", "classifier")
	}
	return &Cascade{
		leaf:          leaf,
		pest:          pest,
		leafThreshold: float32(settings.LeafThreshold),
		pestThreshold: float32(settings.PestThreshold),
		log:           log,
	}
}

// Classify runs the cascade on a preprocessed frame tensor.
//
// Model errors degrade to NotALeaf with zero confidence. A single bad
// frame must not abort the scan session.
func (c *Cascade) Classify(tensor []float32) Outcome {
	pred, err := c.leaf.Predict(tensor)
	if err != nil {
		c.log.Warn("Leaf stage failed, treating frame as non-leaf", "error", err)
		return Outcome{Kind: NotALeaf, Confidence: 0}
	}

	if pred.Label != LabelLeaf || pred.Confidence < c.leafThreshold {
		return Outcome{Kind: NotALeaf, Confidence: pred.Confidence}
	}

	prob, err := c.pest.Predict(tensor)
	if err != nil {
		c.log.Warn("Pest stage failed, treating frame as non-leaf", "error", err)
		return Outcome{Kind: NotALeaf, Confidence: 0}
	}

	if prob > c.pestThreshold {
		return Outcome{Kind: LeafInfested, Confidence: prob}
	}
	return Outcome{Kind: LeafHealthy, Confidence: prob}
}
