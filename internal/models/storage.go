package models

import (
	"time"

	"github.com/google/uuid"
)

// RepSessionRow is a row ready for insertion into the rep_sessions table.
// Depth fields are nil for sessions without a counted rep.
type RepSessionRow struct {
	ID               uuid.UUID `json:"id"`
	UserID           int       `json:"user_id"`
	Exercise         string    `json:"exercise"`
	Source           string    `json:"source"`
	SourceHash       string    `json:"source_hash,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	Reps             int       `json:"reps"`
	FramesTotal      int       `json:"frames_total"`
	FramesSkipped    int       `json:"frames_skipped"`
	DegenerateFrames int       `json:"degenerate_frames"`
	DepthMean        *float64  `json:"depth_mean,omitempty"`
	DepthStdDev      *float64  `json:"depth_stddev,omitempty"`
	DepthMin         *float64  `json:"depth_min,omitempty"`
	DepthMax         *float64  `json:"depth_max,omitempty"`
}

// RepEventRow is a row for the rep_events table: one counted repetition.
type RepEventRow struct {
	SessionID uuid.UUID  `json:"session_id"`
	UserID    int        `json:"user_id"`
	Number    int        `json:"number"`
	Seq       int64      `json:"seq"`
	At        *time.Time `json:"at,omitempty"`
	MinAngle  float64    `json:"min_angle"`
}

// RepSessionUpload is the body the offline analyzer posts to the server.
type RepSessionUpload struct {
	Session RepSessionRow `json:"session"`
	Events  []RepEventRow `json:"events"`
}
