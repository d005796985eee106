package mcp

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	return timeRangeWithDefault(startStr, endStr, 7)
}

// timeRangeWithDefault parses start/end, defaulting end to now and start to
// days before end.
func timeRangeWithDefault(startStr, endStr string, days int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -days)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// exerciseFilter normalizes an optional exercise argument.
func exerciseFilter(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	e, err := repcount.ParseExercise(s)
	if err != nil {
		return "", err
	}
	return e.String(), nil
}

// --- Tool definitions ---

var toolGetRepSessions = mcp.NewTool("get_rep_sessions",
	mcp.WithDescription("List counted exercise sessions with rep count, frame diagnostics and depth statistics (joint angle at the bottom of each rep, in degrees; lower is deeper)."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithString("exercise", mcp.Description("Filter by exercise."), mcp.Enum("pushup", "squat")),
)

var toolGetRepSession = mcp.NewTool("get_rep_session",
	mcp.WithDescription("Get one session with every counted rep: frame sequence number, time and the deepest angle reached."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session ID (UUID)")),
)

var toolGetExerciseStats = mcp.NewTool("get_exercise_stats",
	mcp.WithDescription("Per-period, per-exercise totals: sessions, total reps, best session and average depth, plus all-time totals."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 90 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Aggregation period. Defaults to '1 week'."), mcp.Enum("1 day", "1 week", "1 month")),
)

var toolComparePeriods = mcp.NewTool("compare_periods",
	mcp.WithDescription("Compare rep totals and depth per exercise between two time periods (e.g. this week vs last week)."),
	mcp.WithString("period_a_start", mcp.Required(), mcp.Description("Period A start date")),
	mcp.WithString("period_a_end", mcp.Required(), mcp.Description("Period A end date")),
	mcp.WithString("period_b_start", mcp.Required(), mcp.Description("Period B start date")),
	mcp.WithString("period_b_end", mcp.Required(), mcp.Description("Period B end date")),
)

var toolComputeJointAngle = mcp.NewTool("compute_joint_angle",
	mcp.WithDescription("Compute the angle in degrees (0-180) at vertex b between rays b->a and b->c, from normalized image coordinates."),
	mcp.WithNumber("ax", mcp.Required()),
	mcp.WithNumber("ay", mcp.Required()),
	mcp.WithNumber("bx", mcp.Required(), mcp.Description("Vertex x")),
	mcp.WithNumber("by", mcp.Required(), mcp.Description("Vertex y")),
	mcp.WithNumber("cx", mcp.Required()),
	mcp.WithNumber("cy", mcp.Required()),
)

// --- Tool handlers ---

func (h *handlers) getRepSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	exercise, err := exerciseFilter(req.GetString("exercise", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	sessions, err := h.ds.QueryRepSessions(ctx, start, end, uid, exercise)
	if err != nil {
		h.log.Error("mcp get_rep_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if sessions == nil {
		sessions = []models.RepSessionRow{}
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"sessions": sessions,
		"totals":   summarizeSessions(sessions),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRepSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idStr, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("invalid session ID"), nil
	}

	detail, err := h.ds.GetRepSession(ctx, id, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_rep_session", "id", id, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(detail)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := timeRangeWithDefault(req.GetString("start", ""), req.GetString("end", ""), 90)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	bucket := req.GetString("bucket", "1 week")
	uid := UserIDFromContext(ctx)

	periods, err := h.ds.GetExerciseStats(ctx, start, end, bucket, uid)
	if err != nil {
		h.log.Error("mcp get_exercise_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	totals, err := h.ds.GetDataStats(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_exercise_stats totals", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"periods": periods,
		"totals":  totals,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) comparePeriods(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var bounds [4]time.Time
	for i, name := range []string{"period_a_start", "period_a_end", "period_b_start", "period_b_end"} {
		s, err := req.RequireString(name)
		if err != nil {
			return mcp.NewToolResultError(name + " is required"), nil
		}
		bounds[i], err = parseFlexTime(s)
		if err != nil {
			return mcp.NewToolResultError("invalid " + name + ": " + err.Error()), nil
		}
	}

	uid := UserIDFromContext(ctx)

	a, err := h.ds.QueryRepSessions(ctx, bounds[0], bounds[1], uid, "")
	if err != nil {
		h.log.Error("mcp compare_periods A", "error", err)
		return mcp.NewToolResultError("query failed for period A: " + err.Error()), nil
	}
	b, err := h.ds.QueryRepSessions(ctx, bounds[2], bounds[3], uid, "")
	if err != nil {
		h.log.Error("mcp compare_periods B", "error", err)
		return mcp.NewToolResultError("query failed for period B: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"period_a": summarizeSessions(a),
		"period_b": summarizeSessions(b),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) computeJointAngle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var v [6]float64
	for i, name := range []string{"ax", "ay", "bx", "by", "cx", "cy"} {
		f, err := req.RequireFloat(name)
		if err != nil {
			return mcp.NewToolResultError(name + " is required"), nil
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return mcp.NewToolResultError(name + " must be a finite number"), nil
		}
		v[i] = f
	}

	a, b, c := pose.Point{X: v[0], Y: v[1]}, pose.Point{X: v[2], Y: v[3]}, pose.Point{X: v[4], Y: v[5]}
	result, err := mcp.NewToolResultJSON(map[string]any{
		"angle":      repcount.Angle(a, b, c),
		"degenerate": repcount.Degenerate(a, b, c),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// exerciseTotals aggregates sessions of one exercise.
type exerciseTotals struct {
	Exercise  string   `json:"exercise"`
	Sessions  int      `json:"sessions"`
	TotalReps int      `json:"total_reps"`
	BestReps  int      `json:"best_reps"`
	AvgDepth  *float64 `json:"avg_depth,omitempty"`
}

// summarizeSessions totals sessions per exercise. AvgDepth averages the
// per-session mean depth over sessions that counted at least one rep.
func summarizeSessions(sessions []models.RepSessionRow) []exerciseTotals {
	byExercise := make(map[string]*exerciseTotals)
	depthSum := make(map[string]float64)
	depthN := make(map[string]int)

	for _, s := range sessions {
		t, ok := byExercise[s.Exercise]
		if !ok {
			t = &exerciseTotals{Exercise: s.Exercise}
			byExercise[s.Exercise] = t
		}
		t.Sessions++
		t.TotalReps += s.Reps
		t.BestReps = max(t.BestReps, s.Reps)
		if s.DepthMean != nil && !math.IsNaN(*s.DepthMean) {
			depthSum[s.Exercise] += *s.DepthMean
			depthN[s.Exercise]++
		}
	}

	out := make([]exerciseTotals, 0, len(byExercise))
	for name, t := range byExercise {
		if n := depthN[name]; n > 0 {
			avg := depthSum[name] / float64(n)
			t.AvgDepth = &avg
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exercise < out[j].Exercise })
	return out
}
