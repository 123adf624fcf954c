// Package analysis orchestrates a full scan session: sampling,
// classification, evidence upload and detection submission.
package analysis

import (
	"context"
	"log/slog"

	"github.com/agroscan/leafscan-go/internal/backend"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/datastore"
	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/frames"
	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/observability"
	"github.com/agroscan/leafscan-go/internal/scanner"
	"github.com/agroscan/leafscan-go/internal/synthesis"
	"github.com/agroscan/leafscan-go/internal/uploader"
)

// FieldService resolves field metadata before synthesis.
type FieldService interface {
	GetField(ctx context.Context, fieldID int) (*backend.Field, error)
}

// DetectionService persists the synthesized detection record.
type DetectionService interface {
	CreateDetection(ctx context.Context, record *synthesis.Record) (int, error)
}

// Runner wires the scan pipeline together for one or more sessions.
type Runner struct {
	Settings  *conf.Settings
	Cascade   scanner.Classifier
	Store     scanner.CaptureStore
	Fields    FieldService
	Detection DetectionService
	Uploader  *uploader.Uploader
	Local     *datastore.Store // optional
	Metrics   *observability.Metrics

	log *slog.Logger
}

// Outcome summarizes a finished session.
type Outcome struct {
	Snapshot          *scanner.Snapshot
	Record            *synthesis.Record
	ImageIDs          []int
	ServerDetectionID int
	UploadErr         error // set when a non-empty evidence set uploaded nothing
}

func (r *Runner) logger() *slog.Logger {
	if r.log == nil {
		r.log = logging.ForService("analysis")
		if r.log == nil {
			r.log = slog.Default().With("service", "analysis")
		}
	}
	return r.log
}

// RunSession scans the given field until ctx is cancelled, then uploads
// the evidence and submits the detection record.
//
// A detection-creation rejection is returned as an error, but the
// session is retained in the local store first so it can be resubmitted
// without re-scanning.
func (r *Runner) RunSession(ctx context.Context, fieldID int, src frames.Source) (*Outcome, error) {
	field := r.resolveField(ctx, fieldID)

	session := scanner.NewSession(fieldID, field.Name, r.Settings.Scanner.DefaultPadding)
	sampler := scanner.NewSampler(session, r.Cascade, r.Store, &r.Settings.Scanner, r.Metrics)

	if err := sampler.Start(src.Frames(ctx)); err != nil {
		return nil, err
	}

	<-ctx.Done()
	snap := sampler.Stop()

	// Upload and submission continue past the scan cancellation.
	return r.finalize(context.Background(), snap, field)
}

// SubmitSnapshot uploads and submits an already-closed session
// snapshot. Used for single-photo analysis and resubmission paths that
// bypass live sampling.
func (r *Runner) SubmitSnapshot(ctx context.Context, snap *scanner.Snapshot) (*Outcome, error) {
	field := r.resolveField(ctx, snap.FieldID)
	return r.finalize(ctx, snap, field)
}

// resolveField looks up the field, falling back to a default plant
// count when the backend cannot serve it. Missing field metadata is a
// data-quality problem, not a reason to drop a finished scan.
func (r *Runner) resolveField(ctx context.Context, fieldID int) *backend.Field {
	field, err := r.Fields.GetField(ctx, fieldID)
	if err != nil {
		r.logger().Warn("Field lookup failed, using default plant count",
			"field_id", fieldID,
			"default", r.Settings.Backend.DefaultPlantCount,
			"error", err)
		return &backend.Field{ID: fieldID, PlantCount: r.Settings.Backend.DefaultPlantCount}
	}
	return field
}

// finalize uploads the snapshot's evidence, synthesizes the detection
// record and submits it.
func (r *Runner) finalize(ctx context.Context, snap *scanner.Snapshot, field *backend.Field) (*Outcome, error) {
	log := r.logger()
	outcome := &Outcome{Snapshot: snap}

	ids, err := r.Uploader.UploadAll(ctx, snap.Evidence)
	if err != nil {
		// The record is still created with an empty image list; the
		// upload failure is surfaced on the outcome.
		log.Error("Evidence upload batch failed", "session", snap.ID, "error", err)
		outcome.UploadErr = err
		ids = []int{}
	}
	outcome.ImageIDs = ids

	record := synthesis.Synthesize(snap, ids, field.PlantCount)
	outcome.Record = record

	detectionID, submitErr := r.Detection.CreateDetection(ctx, record)
	submitted := submitErr == nil
	outcome.ServerDetectionID = detectionID

	if r.Local != nil {
		if _, err := r.Local.SaveSession(snap, record, detectionID, submitted); err != nil {
			log.Error("Cannot persist session locally", "session", snap.ID, "error", err)
		}
	}

	if submitErr != nil {
		return outcome, errors.New(submitErr).
			Component("analysis").
			Category(errors.CategorySynthesis).
			Context("session", snap.ID).
			Context("retained_locally", r.Local != nil).
			Build()
	}

	log.Info("Session submitted",
		"session", snap.ID,
		"detection_id", detectionID,
		"detections", snap.Detections,
		"uploaded", len(ids),
		"result", record.Result)
	return outcome, nil
}

// RetryPending resubmits detection records whose earlier submission was
// rejected. Returns how many were accepted this time.
func (r *Runner) RetryPending(ctx context.Context) (int, error) {
	if r.Local == nil {
		return 0, errors.Newf("no local store configured").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	log := r.logger()

	pending, err := r.Local.ListPending()
	if err != nil {
		return 0, err
	}

	accepted := 0
	for i := range pending {
		session := &pending[i]
		if session.Detection == nil {
			continue
		}
		record, err := session.Detection.ToRecord()
		if err != nil {
			log.Error("Cannot rebuild detection record", "session", session.SessionID, "error", err)
			continue
		}
		detectionID, err := r.Detection.CreateDetection(ctx, record)
		if err != nil {
			log.Warn("Resubmission rejected", "session", session.SessionID, "error", err)
			continue
		}
		if err := r.Local.MarkSubmitted(session.SessionID, detectionID); err != nil {
			log.Error("Cannot mark session submitted", "session", session.SessionID, "error", err)
			continue
		}
		accepted++
	}

	log.Info("Pending resubmission pass finished", "pending", len(pending), "accepted", accepted)
	return accepted, nil
}
