// Package sqlite persists finalized runs: the run record itself, the raw
// detection frames it retained, and the derived speed samples. The raw
// frames are authoritative input and sufficient to recompute everything
// else offline.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/speedframe/speedframe/internal/speed"
	"github.com/speedframe/speedframe/internal/vision"
)

// Store wraps the runs database.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the runs database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			source_width      DOUBLE,
			source_height     DOUBLE,
			state             TEXT,
			meters_per_pixel  DOUBLE,
			peak_kmh          DOUBLE,
			peak_frame        BIGINT,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS run_frames (
			run_id            TEXT,
			frame_index       BIGINT,
			timestamp_ms      BIGINT,
			boxes             TEXT,
			PRIMARY KEY (run_id, frame_index),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS speed_samples (
			run_id            TEXT,
			frame_index       BIGINT,
			kmh               DOUBLE,
			PRIMARY KEY (run_id, frame_index),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Store{db}, nil
}

// RunRecord is a persisted run.
type RunRecord struct {
	RunID          string
	SourceW        float64
	SourceH        float64
	State          string
	MetersPerPixel float64
	PeakKmh        float64
	PeakFrame      int
}

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(r RunRecord) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO runs
			(run_id, source_width, source_height, state, meters_per_pixel, peak_kmh, peak_frame)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SourceW, r.SourceH, r.State, r.MetersPerPixel, r.PeakKmh, r.PeakFrame)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	return nil
}

// Run loads one run record.
func (s *Store) Run(runID string) (RunRecord, error) {
	var r RunRecord
	err := s.QueryRow(`
		SELECT run_id, source_width, source_height, state, meters_per_pixel, peak_kmh, peak_frame
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.SourceW, &r.SourceH, &r.State, &r.MetersPerPixel, &r.PeakKmh, &r.PeakFrame)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return r, nil
}

// SaveFrames replaces the stored detection frames for a run. Boxes are
// stored as JSON per frame.
func (s *Store) SaveFrames(runID string, frames []vision.FrameDetections) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_frames WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear frames for run %s: %w", runID, err)
	}
	for i, f := range frames {
		boxes, err := json.Marshal(f.Boxes)
		if err != nil {
			return fmt.Errorf("failed to encode boxes for frame %d: %w", i, err)
		}
		_, err = tx.Exec(`
			INSERT INTO run_frames (run_id, frame_index, timestamp_ms, boxes)
			VALUES (?, ?, ?, ?)`,
			runID, i, f.TimestampMs, string(boxes))
		if err != nil {
			return fmt.Errorf("failed to save frame %d for run %s: %w", i, runID, err)
		}
	}
	return tx.Commit()
}

// Frames loads a run's detection frames in frame-index order.
func (s *Store) Frames(runID string) ([]vision.FrameDetections, error) {
	rows, err := s.Query(`
		SELECT timestamp_ms, boxes FROM run_frames
		WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load frames for run %s: %w", runID, err)
	}
	defer rows.Close()

	var frames []vision.FrameDetections
	for rows.Next() {
		var f vision.FrameDetections
		var boxes string
		if err := rows.Scan(&f.TimestampMs, &boxes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(boxes), &f.Boxes); err != nil {
			return nil, fmt.Errorf("failed to decode boxes for run %s: %w", runID, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// SampleRecord is one persisted valid speed sample.
type SampleRecord struct {
	FrameIndex int
	Kmh        float64
}

// SaveSamples replaces the stored speed samples for a run. Only valid
// samples are persisted; absent frames are represented by absence.
func (s *Store) SaveSamples(runID string, samples []speed.Sample) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM speed_samples WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear samples for run %s: %w", runID, err)
	}
	for i, sample := range samples {
		if !sample.Valid {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO speed_samples (run_id, frame_index, kmh)
			VALUES (?, ?, ?)`,
			runID, i, sample.Kmh)
		if err != nil {
			return fmt.Errorf("failed to save sample %d for run %s: %w", i, runID, err)
		}
	}
	return tx.Commit()
}

// Samples loads a run's valid speed samples in frame-index order.
func (s *Store) Samples(runID string) ([]SampleRecord, error) {
	rows, err := s.Query(`
		SELECT frame_index, kmh FROM speed_samples
		WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for run %s: %w", runID, err)
	}
	defer rows.Close()

	var samples []SampleRecord
	for rows.Next() {
		var r SampleRecord
		if err := rows.Scan(&r.FrameIndex, &r.Kmh); err != nil {
			return nil, err
		}
		samples = append(samples, r)
	}
	return samples, rows.Err()
}
