package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const repSessionColumns = `id, user_id, exercise, source, COALESCE(source_hash, ''), started_at, ended_at,
	 reps, frames_total, frames_skipped, degenerate_frames,
	 depth_mean, depth_stddev, depth_min, depth_max`

// InsertRepSession stores a finished session and its rep events in one
// transaction. Returns false if a session with the same ID (or the same
// source hash for the user) already exists; events are then left untouched.
func (db *DB) InsertRepSession(ctx context.Context, row models.RepSessionRow, events []models.RepEventRow) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var hash *string
	if row.SourceHash != "" {
		hash = &row.SourceHash
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO rep_sessions (id, user_id, exercise, source, source_hash, started_at, ended_at,
		 reps, frames_total, frames_skipped, degenerate_frames,
		 depth_mean, depth_stddev, depth_min, depth_max)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT DO NOTHING`,
		row.ID, row.UserID, row.Exercise, row.Source, hash, row.StartedAt, row.EndedAt,
		row.Reps, row.FramesTotal, row.FramesSkipped, row.DegenerateFrames,
		row.DepthMean, row.DepthStdDev, row.DepthMin, row.DepthMax)
	if err != nil {
		return false, fmt.Errorf("inserting rep session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if query, args := repEventsInsert(row.ID, row.UserID, events); query != "" {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return false, fmt.Errorf("inserting rep events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing rep session: %w", err)
	}
	return true, nil
}

// repEventsInsert builds one multi-row insert for events. Session and user
// IDs come from the parent row so events cannot point elsewhere.
func repEventsInsert(sessionID uuid.UUID, userID int, events []models.RepEventRow) (string, []any) {
	if len(events) == 0 {
		return "", nil
	}

	query := `INSERT INTO rep_events (session_id, user_id, number, seq, at, min_angle) VALUES `
	args := make([]any, 0, len(events)*6)
	valueStrings := make([]string, 0, len(events))

	for i, e := range events {
		base := i * 6
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, sessionID, userID, e.Number, e.Seq, e.At, e.MinAngle)
	}

	return query + strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING", args
}

// RepSessionDetail is a session with its rep events.
type RepSessionDetail struct {
	models.RepSessionRow
	Events []models.RepEventRow `json:"events"`
}

// QueryRepSessions retrieves sessions started in a time range, newest first.
// An empty exercise matches every exercise.
func (db *DB) QueryRepSessions(ctx context.Context, start, end time.Time, userID int, exercise string) ([]models.RepSessionRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+repSessionColumns+`
		 FROM rep_sessions
		 WHERE started_at >= $1 AND started_at < $2 AND user_id = $3
		   AND ($4 = '' OR exercise = $4)
		 ORDER BY started_at DESC`,
		start, end, userID, exercise)
	if err != nil {
		return nil, fmt.Errorf("querying rep sessions: %w", err)
	}
	defer rows.Close()

	var result []models.RepSessionRow
	for rows.Next() {
		s, err := scanRepSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetRepSession retrieves a single session with its rep events.
func (db *DB) GetRepSession(ctx context.Context, id uuid.UUID, userID int) (*RepSessionDetail, error) {
	s, err := scanRepSession(db.Pool.QueryRow(ctx,
		`SELECT `+repSessionColumns+`
		 FROM rep_sessions
		 WHERE id = $1 AND user_id = $2`,
		id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	detail := &RepSessionDetail{RepSessionRow: s, Events: []models.RepEventRow{}}

	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, user_id, number, seq, at, min_angle
		 FROM rep_events
		 WHERE session_id = $1 AND user_id = $2
		 ORDER BY number ASC`,
		id, userID)
	if err != nil {
		return nil, fmt.Errorf("querying rep events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.RepEventRow
		if err := rows.Scan(&e.SessionID, &e.UserID, &e.Number, &e.Seq, &e.At, &e.MinAngle); err != nil {
			return nil, fmt.Errorf("scanning rep event: %w", err)
		}
		detail.Events = append(detail.Events, e)
	}
	return detail, rows.Err()
}

// DeleteRepSession removes a session and, by cascade, its events.
func (db *DB) DeleteRepSession(ctx context.Context, id uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM rep_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting rep session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRepSession(row pgx.Row) (models.RepSessionRow, error) {
	var s models.RepSessionRow
	err := row.Scan(&s.ID, &s.UserID, &s.Exercise, &s.Source, &s.SourceHash, &s.StartedAt, &s.EndedAt,
		&s.Reps, &s.FramesTotal, &s.FramesSkipped, &s.DegenerateFrames,
		&s.DepthMean, &s.DepthStdDev, &s.DepthMin, &s.DepthMax)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("scanning rep session: %w", err)
	}
	return s, nil
}
