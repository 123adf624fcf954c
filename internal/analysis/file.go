package analysis

import (
	"context"
	"time"

	"github.com/agroscan/leafscan-go/internal/classifier"
	"github.com/agroscan/leafscan-go/internal/imaging"
	"github.com/agroscan/leafscan-go/internal/scanner"
)

// FileResult is the outcome of analyzing a single photo.
type FileResult struct {
	Outcome        classifier.Outcome
	ProcessingTime time.Duration
	// Submission is set when the photo was infested and submit was
	// requested.
	Submission *Outcome
}

// AnalyzeFile runs one photo through the cascade, outside any live
// session. Covers the gallery-photo flow: when submit is set and the
// photo is infested, the frame is persisted and a single-evidence
// detection record goes to the backend.
func (r *Runner) AnalyzeFile(ctx context.Context, path string, fieldID int, submit bool) (*FileResult, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tensor, err := imaging.Preprocess(img, r.Settings.Scanner.InputSize)
	if err != nil {
		return nil, err
	}
	outcome := r.Cascade.Classify(tensor)
	elapsed := time.Since(start)

	result := &FileResult{Outcome: outcome, ProcessingTime: elapsed}
	if !submit {
		return result, nil
	}

	field := r.resolveField(ctx, fieldID)
	session := scanner.NewSession(fieldID, field.Name, r.Settings.Scanner.DefaultPadding)
	session.Start()
	session.MarkAnalyzed()

	if outcome.Kind == classifier.LeafInfested {
		saved, err := r.Store.SaveFrame(img, field.Name, float64(outcome.Confidence))
		if err != nil {
			return nil, err
		}
		session.AppendEvidence(scanner.Evidence{
			Path:           saved,
			Confidence:     float64(outcome.Confidence),
			ProcessingTime: elapsed,
		})
	}

	submission, err := r.finalize(ctx, session.Close(), field)
	result.Submission = submission
	if err != nil {
		return result, err
	}
	return result, nil
}
