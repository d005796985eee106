package storage

import (
	"context"
	"fmt"
	"time"
)

// DataStats holds aggregate statistics about a user's stored sessions.
type DataStats struct {
	TotalSessions int64          `json:"total_sessions"`
	TotalReps     int64          `json:"total_reps"`
	EarliestData  *time.Time     `json:"earliest_data"`
	LatestData    *time.Time     `json:"latest_data"`
	ByExercise    []ExerciseStat `json:"by_exercise"`
}

// ExerciseStat holds all-time totals for one exercise.
type ExerciseStat struct {
	Exercise  string   `json:"exercise"`
	Sessions  int64    `json:"sessions"`
	TotalReps int64    `json:"total_reps"`
	BestReps  int      `json:"best_reps"`
	AvgDepth  *float64 `json:"avg_depth,omitempty"`
}

// GetDataStats returns aggregate statistics for a user's stored sessions.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{ByExercise: []ExerciseStat{}}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(reps), 0), MIN(started_at), MAX(ended_at)
		 FROM rep_sessions WHERE user_id = $1`, userID,
	).Scan(&stats.TotalSessions, &stats.TotalReps, &stats.EarliestData, &stats.LatestData)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT exercise, COUNT(*), COALESCE(SUM(reps), 0), COALESCE(MAX(reps), 0), AVG(depth_mean)
		 FROM rep_sessions
		 WHERE user_id = $1
		 GROUP BY exercise
		 ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by exercise: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ExerciseStat
		if err := rows.Scan(&s.Exercise, &s.Sessions, &s.TotalReps, &s.BestReps, &s.AvgDepth); err != nil {
			return nil, fmt.Errorf("scanning exercise stat: %w", err)
		}
		stats.ByExercise = append(stats.ByExercise, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// ExercisePeriod holds one exercise's totals within a period.
type ExercisePeriod struct {
	Period    string   `json:"period"`
	Exercise  string   `json:"exercise"`
	Sessions  int      `json:"sessions"`
	TotalReps int      `json:"total_reps"`
	BestReps  int      `json:"best_reps"`
	AvgDepth  *float64 `json:"avg_depth,omitempty"`
}

// GetExerciseStats returns per-period, per-exercise totals, newest period first.
func (db *DB) GetExerciseStats(ctx context.Context, start, end time.Time, bucket string, userID int) ([]ExercisePeriod, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, started_at)::date AS period,
		        exercise,
		        COUNT(*)::int,
		        COALESCE(SUM(reps), 0)::int,
		        COALESCE(MAX(reps), 0),
		        AVG(depth_mean)
		 FROM rep_sessions
		 WHERE started_at >= $2 AND started_at < $3 AND user_id = $4
		 GROUP BY period, exercise
		 ORDER BY period DESC, exercise`,
		truncInterval(bucket), start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise stats: %w", err)
	}
	defer rows.Close()

	result := []ExercisePeriod{}
	for rows.Next() {
		var period time.Time
		var p ExercisePeriod
		if err := rows.Scan(&period, &p.Exercise, &p.Sessions, &p.TotalReps, &p.BestReps, &p.AvgDepth); err != nil {
			return nil, fmt.Errorf("scanning exercise stats: %w", err)
		}
		p.Period = period.Format("2006-01-02")
		result = append(result, p)
	}
	return result, rows.Err()
}

// truncInterval converts bucket strings like "1 month" to the interval name
// that date_trunc expects (e.g. "month", "week").
func truncInterval(bucket string) string {
	switch bucket {
	case "1 day", "day":
		return "day"
	case "1 week", "week":
		return "week"
	default:
		return "month"
	}
}
