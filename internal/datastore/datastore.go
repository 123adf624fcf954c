// Package datastore persists scan sessions and detection records
// locally so a failed backend submission can be retried without
// re-scanning the field.
package datastore

import (
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/scanner"
	"github.com/agroscan/leafscan-go/internal/synthesis"
)

// SessionRecord is a completed scan session.
type SessionRecord struct {
	ID             uint   `gorm:"primaryKey"`
	SessionID      string `gorm:"uniqueIndex"`
	FieldID        int
	FieldName      string
	StartedAt      time.Time
	EndedAt        time.Time
	FramesAnalyzed int64
	Detections     int64
	Skipped        int64
	Padded         int64
	Evidence       []EvidenceRecord  `gorm:"foreignKey:SessionRecordID"`
	Detection      *DetectionRecord  `gorm:"foreignKey:SessionRecordID"`
}

// EvidenceRecord is one persisted positive-detection frame.
type EvidenceRecord struct {
	ID              uint `gorm:"primaryKey"`
	SessionRecordID uint `gorm:"index"`
	Path            string
	Confidence      float64
	ProcessingMs    int64
	ServerImageID   int
}

// DetectionRecord mirrors the synthesized record plus its submission state.
// ImageIDs holds the server image ids as a JSON array so a failed
// submission can be replayed verbatim.
type DetectionRecord struct {
	ID                uint `gorm:"primaryKey"`
	SessionRecordID   uint `gorm:"index"`
	FieldID           int
	ImageIDs          string
	Result            string
	PredictionValue   string
	TimeInitial       string
	TimeFinal         string
	DateDetection     string
	PlaguePercentage  float64
	Submitted         bool `gorm:"index"`
	ServerDetectionID int
}

// ToRecord rebuilds the submission payload from a stored detection.
func (d *DetectionRecord) ToRecord() (*synthesis.Record, error) {
	imageIDs := []int{}
	if d.ImageIDs != "" {
		if err := json.Unmarshal([]byte(d.ImageIDs), &imageIDs); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Build()
		}
	}
	return &synthesis.Record{
		ImageIDs:         imageIDs,
		FieldID:          d.FieldID,
		Result:           d.Result,
		PredictionValue:  d.PredictionValue,
		TimeInitial:      d.TimeInitial,
		TimeFinal:        d.TimeFinal,
		DateDetection:    d.DateDetection,
		PlaguePercentage: d.PlaguePercentage,
	}, nil
}

// Store wraps the local SQLite database.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open opens or creates the SQLite database and migrates the schema.
func Open(path string) (*Store, error) {
	log := logging.ForService("datastore")
	if log == nil {
		log = slog.Default().With("service", "datastore")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&SessionRecord{}, &EvidenceRecord{}, &DetectionRecord{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	return &Store{db: db, log: log}, nil
}

// SaveSession persists a closed session together with its synthesized
// detection record. submitted marks whether the backend already accepted it.
func (s *Store) SaveSession(snap *scanner.Snapshot, record *synthesis.Record, serverDetectionID int, submitted bool) (*SessionRecord, error) {
	rec := &SessionRecord{
		SessionID:      snap.ID,
		FieldID:        snap.FieldID,
		FieldName:      snap.FieldName,
		StartedAt:      snap.StartedAt,
		EndedAt:        snap.EndedAt,
		FramesAnalyzed: snap.FramesAnalyzed,
		Detections:     snap.Detections,
		Skipped:        snap.Skipped,
		Padded:         snap.Padded,
	}
	for _, e := range snap.Evidence {
		rec.Evidence = append(rec.Evidence, EvidenceRecord{
			Path:         e.Path,
			Confidence:   e.Confidence,
			ProcessingMs: e.ProcessingTime.Milliseconds(),
		})
	}
	// Upload ids arrive in completion order, so a server image id can only
	// be attributed to its evidence row when the session holds exactly one.
	if record != nil && len(rec.Evidence) == 1 && len(record.ImageIDs) == 1 {
		rec.Evidence[0].ServerImageID = record.ImageIDs[0]
	}
	if record != nil {
		imageIDs, err := json.Marshal(record.ImageIDs)
		if err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("session", snap.ID).
				Build()
		}
		rec.Detection = &DetectionRecord{
			FieldID:           record.FieldID,
			ImageIDs:          string(imageIDs),
			Result:            record.Result,
			PredictionValue:   record.PredictionValue,
			TimeInitial:       record.TimeInitial,
			TimeFinal:         record.TimeFinal,
			DateDetection:     record.DateDetection,
			PlaguePercentage:  record.PlaguePercentage,
			Submitted:         submitted,
			ServerDetectionID: serverDetectionID,
		}
	}

	if err := s.db.Create(rec).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session", snap.ID).
			Build()
	}
	s.log.Debug("Saved scan session", "session", snap.ID, "evidence", len(rec.Evidence), "submitted", submitted)
	return rec, nil
}

// MarkSubmitted records the backend's detection id for a session whose
// earlier submission failed.
func (s *Store) MarkSubmitted(sessionID string, serverDetectionID int) error {
	var rec SessionRecord
	if err := s.db.Where("session_id = ?", sessionID).First(&rec).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("session", sessionID).
			Build()
	}
	err := s.db.Model(&DetectionRecord{}).
		Where("session_record_id = ?", rec.ID).
		Updates(map[string]any{"submitted": true, "server_detection_id": serverDetectionID}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("session", sessionID).
			Build()
	}
	return nil
}

// ListPending returns sessions whose detection record was never
// accepted by the backend.
func (s *Store) ListPending() ([]SessionRecord, error) {
	var pending []SessionRecord
	err := s.db.
		Joins("JOIN detection_records ON detection_records.session_record_id = session_records.id").
		Where("detection_records.submitted = ?", false).
		Preload("Evidence").
		Preload("Detection").
		Find(&pending).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return pending, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
