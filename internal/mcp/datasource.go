package mcp

import (
	"context"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QueryRepSessions(ctx context.Context, start, end time.Time, userID int, exercise string) ([]models.RepSessionRow, error)
	GetRepSession(ctx context.Context, id uuid.UUID, userID int) (*storage.RepSessionDetail, error)
	GetExerciseStats(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.ExercisePeriod, error)
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
