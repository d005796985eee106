package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/claude/repcounter/internal/repcount"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)
	end := time.Now()
	start := end.AddDate(0, 0, -14)

	sessions, err := h.ds.QueryRepSessions(ctx, start, end, uid, "")
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(map[string]any{
		"sessions": sessions,
		"totals":   summarizeSessions(sessions),
	})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

type catalogEntry struct {
	Exercise   string    `json:"exercise"`
	Joints     [3]string `json:"joints"`
	Relaxed    string    `json:"relaxed"`
	Contracted string    `json:"contracted"`
}

func catalog() []catalogEntry {
	var out []catalogEntry
	for _, e := range repcount.Exercises {
		rule, err := repcount.RuleFor(e)
		if err != nil {
			continue
		}
		entry := catalogEntry{Exercise: e.String(), Relaxed: rule.Relaxed, Contracted: rule.Contracted}
		for i, j := range rule.Joints {
			entry.Joints[i] = j.String()
		}
		out = append(out, entry)
	}
	return out
}

func (h *handlers) exerciseCatalog(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(catalog())
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
