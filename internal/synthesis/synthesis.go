// Package synthesis builds the aggregated detection record for a
// completed scan session.
package synthesis

import (
	"fmt"
	"log/slog"

	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/scanner"
)

// Result strings persisted in detection records.
const (
	ResultPestsDetected   = "pests detected"
	ResultNoPestsDetected = "no pests detected"
)

// Record is the aggregated outcome of one scan session, shaped for the
// backend's detection-creation endpoint.
type Record struct {
	ImageIDs         []int   `json:"image_ids"`
	FieldID          int     `json:"field_id"`
	Result           string  `json:"result"`
	PredictionValue  string  `json:"prediction_value"`
	TimeInitial      string  `json:"time_initial"`
	TimeFinal        string  `json:"time_final"`
	DateDetection    string  `json:"date_detection"`
	PlaguePercentage float64 `json:"plague_percentage"`
}

// Synthesize turns a closed session snapshot into a detection record.
//
// The affected percentage is detections over plant count, clamped to
// 100. A non-positive plant count yields 0 and a data-quality warning
// instead of an error; a session must always produce a record, even a
// clean one with no uploaded images.
func Synthesize(snap *scanner.Snapshot, imageIDs []int, plantCount int) *Record {
	log := logging.ForService("synthesis")
	if log == nil {
		log = slog.Default().With("service", "synthesis")
	}

	detections := int(snap.Detections)

	var affected float64
	if plantCount > 0 {
		affected = 100 * float64(detections) / float64(plantCount)
		if affected > 100 {
			affected = 100
		}
	} else {
		log.Warn("Field has non-positive plant count, reporting zero affected percentage",
			"session", snap.ID,
			"field_id", snap.FieldID,
			"plant_count", plantCount)
	}

	prediction := "0.0"
	if confidences := snap.Confidences(); len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		prediction = fmt.Sprintf("%.2f", sum/float64(len(confidences)))
	}

	result := ResultNoPestsDetected
	if detections > 0 {
		result = ResultPestsDetected
	}

	if imageIDs == nil {
		imageIDs = []int{}
	}

	return &Record{
		ImageIDs:         imageIDs,
		FieldID:          snap.FieldID,
		Result:           result,
		PredictionValue:  prediction,
		TimeInitial:      snap.StartedAt.Format("15:04:05"),
		TimeFinal:        snap.EndedAt.Format("15:04:05"),
		DateDetection:    snap.EndedAt.Format("2006-01-02"),
		PlaguePercentage: affected,
	}
}
