// Package classifier runs the two-stage leaf and pest classification cascade.
package classifier

// LeafLabel is the closed label set of the leaf-presence stage.
// Values mirror the output tensor index order of the model.
type LeafLabel int

const (
	LabelLeaf LeafLabel = iota
	LabelOther
	LabelAnimal
)

func (l LeafLabel) String() string {
	switch l {
	case LabelLeaf:
		return "leaf"
	case LabelOther:
		return "other"
	case LabelAnimal:
		return "animal"
	default:
		return "unknown"
	}
}

// LeafPrediction is the arg-max result of the leaf-presence stage.
type LeafPrediction struct {
	Label      LeafLabel
	Confidence float32
}

// LeafStage classifies a preprocessed frame tensor for leaf presence.
type LeafStage interface {
	Predict(tensor []float32) (LeafPrediction, error)
}

// PestStage returns the pest probability for a preprocessed frame tensor.
type PestStage interface {
	Predict(tensor []float32) (float32, error)
}

// OutcomeKind is the decision of the cascade for a single frame.
type OutcomeKind int

const (
	NotALeaf OutcomeKind = iota
	LeafHealthy
	LeafInfested
)

func (k OutcomeKind) String() string {
	switch k {
	case NotALeaf:
		return "not-a-leaf"
	case LeafHealthy:
		return "leaf-healthy"
	case LeafInfested:
		return "leaf-infested"
	default:
		return "unknown"
	}
}

// Outcome carries the cascade decision and the confidence of the
// stage that produced it.
type Outcome struct {
	Kind       OutcomeKind
	Confidence float32
}

// Argmax picks the highest-scoring label from a stage-1 output vector.
// Ties resolve to the lowest index, matching the label order above.
func Argmax(scores []float32) LeafPrediction {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	if len(scores) == 0 {
		return LeafPrediction{Label: LabelLeaf, Confidence: 0}
	}
	return LeafPrediction{Label: LeafLabel(best), Confidence: scores[best]}
}
