package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
	"github.com/claude/repcounter/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

// exerciseInfo describes one exercise's counting rule.
type exerciseInfo struct {
	Exercise   string    `json:"exercise"`
	Joints     [3]string `json:"joints"`
	Relaxed    string    `json:"relaxed"`
	Contracted string    `json:"contracted"`
	Upper      float64   `json:"upper"`
	Lower      float64   `json:"lower"`
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	th := s.registry.Options().Thresholds
	out := make([]exerciseInfo, 0, len(repcount.Exercises))
	for _, e := range repcount.Exercises {
		rule, err := repcount.RuleFor(e)
		if err != nil {
			continue
		}
		info := exerciseInfo{
			Exercise:   e.String(),
			Relaxed:    rule.Relaxed,
			Contracted: rule.Contracted,
			Upper:      th.Upper,
			Lower:      th.Lower,
		}
		for i, j := range rule.Joints {
			info.Joints[i] = j.String()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAngle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var v [6]float64
	for i, name := range []string{"ax", "ay", "bx", "by", "cx", "cy"} {
		f, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid %s parameter", name)})
			return
		}
		v[i] = f
	}

	a, b, c := pose.Point{X: v[0], Y: v[1]}, pose.Point{X: v[2], Y: v[3]}, pose.Point{X: v[4], Y: v[5]}
	writeJSON(w, http.StatusOK, map[string]any{
		"angle":      repcount.Angle(a, b, c),
		"degenerate": repcount.Degenerate(a, b, c),
	})
}

func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	var payload models.RepSessionUpload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := validateUpload(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	payload.Session.UserID = uid

	inserted, err := s.db.InsertRepSession(r.Context(), payload.Session, payload.Events)
	if err != nil {
		s.log.Error("upload error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"id": payload.Session.ID, "inserted": inserted})
}

// validateUpload checks an uploaded session and normalizes its exercise
// name. A missing ID is assigned.
func validateUpload(p *models.RepSessionUpload) error {
	e, err := repcount.ParseExercise(p.Session.Exercise)
	if err != nil {
		return err
	}
	p.Session.Exercise = e.String()

	if p.Session.Reps < 0 {
		return errors.New("reps must not be negative")
	}
	if p.Session.StartedAt.IsZero() || p.Session.EndedAt.Before(p.Session.StartedAt) {
		return errors.New("started_at must be set and not after ended_at")
	}
	if len(p.Events) > 0 && len(p.Events) != p.Session.Reps {
		return fmt.Errorf("got %d rep events for %d reps", len(p.Events), p.Session.Reps)
	}
	if p.Session.ID == uuid.Nil {
		p.Session.ID = uuid.New()
	}
	return nil
}

func (s *Server) handleQuerySessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	exercise := ""
	if v := r.URL.Query().Get("exercise"); v != "" {
		e, err := repcount.ParseExercise(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		exercise = e.String()
	}

	sessions, err := s.db.QueryRepSessions(r.Context(), start, end, uid, exercise)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []models.RepSessionRow{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	detail, err := s.db.GetRepSession(r.Context(), id, uid)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	err = s.db.DeleteRepSession(r.Context(), id, uid)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	bucket := "1 week"
	switch r.URL.Query().Get("agg") {
	case "daily":
		bucket = "1 day"
	case "monthly":
		bucket = "1 month"
	}

	totals, err := s.db.GetDataStats(r.Context(), uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	periods, err := s.db.GetExerciseStats(r.Context(), start, end, bucket, uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totals":  totals,
		"periods": periods,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 7 days
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = parseFlexTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
