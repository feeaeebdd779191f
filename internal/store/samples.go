package store

import (
	"context"
	"fmt"

	"snore-monitor-service/internal/models"
)

// InsertAmplitudeSamples writes a batch in one transaction. Rows with the
// same session and timestamp are replaced, so a retried batch is harmless.
func (s *Store) InsertAmplitudeSamples(ctx context.Context, samples []models.AmplitudeSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, sample := range samples {
		if err := s.validator.Validate(sample); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO amplitude_samples (session_id, timestamp_ms, amplitude, is_snore)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx, sample.SessionID, sample.RelativeMs, sample.Amplitude, sample.IsSnore); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// SamplesForSession returns every sample of a session in time order.
func (s *Store) SamplesForSession(ctx context.Context, sessionID int64) ([]models.AmplitudeSample, error) {
	return s.querySamples(ctx,
		`SELECT session_id, timestamp_ms, amplitude, is_snore FROM amplitude_samples
		 WHERE session_id = ? ORDER BY timestamp_ms ASC`, sessionID)
}

// SamplesInRange returns samples with relative timestamps in [fromMs, toMs].
func (s *Store) SamplesInRange(ctx context.Context, sessionID, fromMs, toMs int64) ([]models.AmplitudeSample, error) {
	return s.querySamples(ctx,
		`SELECT session_id, timestamp_ms, amplitude, is_snore FROM amplitude_samples
		 WHERE session_id = ? AND timestamp_ms BETWEEN ? AND ?
		 ORDER BY timestamp_ms ASC`, sessionID, fromMs, toMs)
}

// SnoreSamplesForSession returns only samples at or above the threshold.
func (s *Store) SnoreSamplesForSession(ctx context.Context, sessionID int64) ([]models.AmplitudeSample, error) {
	return s.querySamples(ctx,
		`SELECT session_id, timestamp_ms, amplitude, is_snore FROM amplitude_samples
		 WHERE session_id = ? AND is_snore = 1 ORDER BY timestamp_ms ASC`, sessionID)
}

func (s *Store) querySamples(ctx context.Context, query string, args ...any) ([]models.AmplitudeSample, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var result []models.AmplitudeSample
	for rows.Next() {
		var sample models.AmplitudeSample
		if err := rows.Scan(&sample.SessionID, &sample.RelativeMs, &sample.Amplitude, &sample.IsSnore); err != nil {
			return nil, err
		}
		result = append(result, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
