package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snore-monitor-service/internal/models"
)

const sessionColumns = `id, start_time, end_time, snore_count, max_amplitude, date_timestamp, duration_minutes`

// InsertSession creates an open session row and returns its id.
func (s *Store) InsertSession(ctx context.Context, session models.Session) (int64, error) {
	if err := s.validator.Validate(session); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (start_time, end_time, snore_count, max_amplitude, date_timestamp, duration_minutes)
		 VALUES (?, NULL, 0, 0, ?, 0)`,
		toMillis(session.StartTime),
		toMillis(models.StartOfDay(session.StartTime)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return res.LastInsertId()
}

// FinalizeSession writes the end time and totals of a session.
func (s *Store) FinalizeSession(ctx context.Context, session models.Session) error {
	if !session.Finalized() {
		return fmt.Errorf("finalize session %d: end time is missing", session.ID)
	}
	if err := s.validator.Validate(session); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, snore_count = ?, max_amplitude = ?, duration_minutes = ?
		 WHERE id = ?`,
		toMillis(session.EndTime),
		session.SnoreCount,
		session.MaxAmplitude,
		session.DurationMinutes,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("finalize session %d: %w", session.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// MostRecentSession returns the session with the latest start time.
func (s *Store) MostRecentSession(ctx context.Context) (models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC, id DESC LIMIT 1`)
	return scanSession(row)
}

// ListSessions returns up to limit sessions, newest first. limit <= 0 means all.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY start_time DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.querySessions(ctx, query, args...)
}

// QuerySessionsInRange returns sessions that started in [from, to], newest first.
func (s *Store) QuerySessionsInRange(ctx context.Context, from, to time.Time) ([]models.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE start_time BETWEEN ? AND ?
		 ORDER BY start_time DESC, id DESC`,
		toMillis(from), toMillis(to))
}

// QueryAggregateStats summarizes finalized sessions that started in [from, to].
func (s *Store) QueryAggregateStats(ctx context.Context, from, to time.Time) (models.AggregateStats, error) {
	var stats models.AggregateStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(snore_count), 0),
			COALESCE(AVG(max_amplitude), 0),
			COALESCE(MAX(max_amplitude), 0),
			COALESCE(SUM(duration_minutes), 0)
		 FROM sessions
		 WHERE end_time IS NOT NULL AND start_time BETWEEN ? AND ?`,
		toMillis(from), toMillis(to),
	).Scan(&stats.TotalSessions, &stats.TotalSnores, &stats.AvgAmplitude, &stats.MaxAmplitude, &stats.TotalMinutes)
	if err != nil {
		return models.AggregateStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return stats, nil
}

// QueryDailyCounts returns snore totals per local day for sessions that
// started in [from, to], oldest day first.
func (s *Store) QueryDailyCounts(ctx context.Context, from, to time.Time) ([]models.DailyCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date_timestamp, SUM(snore_count)
		 FROM sessions
		 WHERE start_time BETWEEN ? AND ?
		 GROUP BY date_timestamp
		 ORDER BY date_timestamp ASC`,
		toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer closeRows(rows)

	var result []models.DailyCount
	for rows.Next() {
		var day int64
		var dc models.DailyCount
		if err := rows.Scan(&day, &dc.Count); err != nil {
			return nil, err
		}
		dc.Day = fromMillis(day)
		result = append(result, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteSession removes a session and, by cascade, its samples and
// recordings. It returns the clip paths that belonged to the session.
func (s *Store) DeleteSession(ctx context.Context, id int64) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	paths, err := queryPaths(ctx, tx, `SELECT file_path FROM audio_recordings WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("delete session %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return paths, nil
}

// DeleteSessionsBefore removes every session that started before cutoff and
// returns how many were deleted.
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE start_time < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete sessions before %s: %w", cutoff, err)
	}
	return res.RowsAffected()
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var result []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanSession(row scanner) (models.Session, error) {
	var (
		session   models.Session
		start     int64
		end       sql.NullInt64
		dateStamp int64
	)
	err := row.Scan(&session.ID, &start, &end, &session.SnoreCount, &session.MaxAmplitude, &dateStamp, &session.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	session.StartTime = fromMillis(start)
	if end.Valid {
		session.EndTime = fromMillis(end.Int64)
	}
	session.DateTimestamp = fromMillis(dateStamp)
	return session, nil
}
