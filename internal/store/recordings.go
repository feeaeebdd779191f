package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snore-monitor-service/internal/models"
)

// InsertRecording stores the metadata of a captured clip.
func (s *Store) InsertRecording(ctx context.Context, rec models.Recording) (int64, error) {
	if err := s.validator.Validate(rec); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audio_recordings (session_id, timestamp_ms, file_path, duration_ms, trigger_amplitude)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.RelativeMs, rec.FilePath, rec.DurationMs, rec.TriggerAmplitude)
	if err != nil {
		return 0, fmt.Errorf("insert recording: %w", err)
	}
	return res.LastInsertId()
}

// RecordingsForSession returns the clips of a session in time order.
func (s *Store) RecordingsForSession(ctx context.Context, sessionID int64) ([]models.Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, timestamp_ms, file_path, duration_ms, trigger_amplitude
		 FROM audio_recordings WHERE session_id = ? ORDER BY timestamp_ms ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var result []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRecording returns a clip by id.
func (s *Store) GetRecording(ctx context.Context, id int64) (models.Recording, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, timestamp_ms, file_path, duration_ms, trigger_amplitude
		 FROM audio_recordings WHERE id = ?`, id)
	return scanRecording(row)
}

// DeleteRecording removes a clip row and returns its file path.
func (s *Store) DeleteRecording(ctx context.Context, id int64) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer rollback(tx)

	var path string
	err = tx.QueryRowContext(ctx, `SELECT file_path FROM audio_recordings WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audio_recordings WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("delete recording %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return path, nil
}

// RecordingPathsBefore returns clip paths of sessions that started before cutoff.
func (s *Store) RecordingPathsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return queryPaths(ctx, s.db,
		`SELECT r.file_path FROM audio_recordings r
		 JOIN sessions s ON s.id = r.session_id
		 WHERE s.start_time < ?`, toMillis(cutoff))
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPaths(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

func scanRecording(row scanner) (models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.RelativeMs, &rec.FilePath, &rec.DurationMs, &rec.TriggerAmplitude)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Recording{}, ErrNotFound
	}
	if err != nil {
		return models.Recording{}, err
	}
	return rec, nil
}
