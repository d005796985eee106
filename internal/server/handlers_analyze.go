package server

import (
	"net/http"
	"time"

	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
	"github.com/claude/repcounter/internal/session"
)

// maxAnalyzeBody caps an uploaded landmark stream.
const maxAnalyzeBody = 256 << 20

// handleAnalyze counts reps over a whole landmark stream in the request body
// and stores the result. Query: exercise (required), format (jsonl or csv),
// layout, source.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	e, err := repcount.ParseExercise(q.Get("exercise"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	layout, err := pose.LayoutByName(q.Get("layout"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	dec, err := pose.NewDecoder(q.Get("format"), http.MaxBytesReader(w, r.Body, maxAnalyzeBody), layout)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	source := q.Get("source")
	if source == "" {
		source = "upload"
	}

	sess, err := session.New(e, source, s.registry.Options(), s.log)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	sess.Owner = uid

	start := time.Now()
	if err := sess.Run(r.Context(), dec, nil); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res := sess.Finish(time.Now())
	if res.Summary.FramesTotal == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "stream contained no frames"})
		return
	}

	if err := s.Persist(r.Context(), res); err != nil {
		s.log.Error("storing analyzed session", "id", res.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.log.Info("stream analyzed",
		"exercise", e.String(),
		"frames", res.Summary.FramesTotal,
		"reps", res.Summary.Reps,
		"duration", time.Since(start).String(),
	)
	writeJSON(w, http.StatusCreated, res)
}
