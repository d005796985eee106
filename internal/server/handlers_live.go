package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/claude/repcounter/internal/pose"
	"github.com/claude/repcounter/internal/repcount"
	"github.com/claude/repcounter/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxFramesBody caps one frames batch.
const maxFramesBody = 8 << 20

type exerciseRequest struct {
	Exercise string `json:"exercise"`
	Source   string `json:"source"`
}

func (s *Server) handleStartLive(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	var req exerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	e, err := repcount.ParseExercise(req.Exercise)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = "live"
	}

	sess, err := s.registry.Start(e, req.Source, uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       sess.ID,
		"snapshot": sess.Snapshot(),
	})
}

// liveSession resolves the {id} URL parameter to the caller's live session,
// writing the error response when it cannot.
func (s *Server) liveSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return nil, false
	}

	sess, err := s.registry.Lookup(id, uid)
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "live session not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetLive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleLiveFrames applies a JSON array of frames in order. The layout query
// parameter names the index layout of "landmarks" arrays.
func (s *Server) handleLiveFrames(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	layout, err := pose.LayoutByName(r.URL.Query().Get("layout"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var wire []pose.WireFrame
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFramesBody)).Decode(&wire); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	frames := make([]pose.Frame, 0, len(wire))
	for i, wf := range wire {
		f, err := wf.Frame(layout)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("frame %d: %v", i, err)})
			return
		}
		frames = append(frames, f)
	}

	snap, err := sess.Apply(frames)
	if errors.Is(err, session.ErrClosed) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "live session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSetExercise(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	var req exerciseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	e, err := repcount.ParseExercise(req.Exercise)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	snap, err := sess.SetExercise(e)
	if errors.Is(err, session.ErrClosed) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "live session not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetLive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.Reset()
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "live session not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleFinishLive ends a live session and stores its summary.
func (s *Server) handleFinishLive(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	res, err := s.registry.Finish(id, uid)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "live session not found"})
		return
	}

	if err := s.Persist(r.Context(), res); err != nil {
		s.log.Error("storing live session", "id", res.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLiveEvents streams a session's snapshots as server-sent events
// until the session finishes or the client goes away.
func (s *Server) handleLiveEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.liveSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := sess.Subscribe()
	defer sess.Unsubscribe(ch)

	// Send current snapshot immediately
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", mustJSON(sess.Snapshot()))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				fmt.Fprint(w, "event: finished\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", mustJSON(snap))
			flusher.Flush()
		}
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return string(b)
}

// persistTimeout bounds storing a session outside a request.
const persistTimeout = 5 * time.Second

// PersistAll stores sessions finished outside a request (idle expiry,
// shutdown), logging failures.
func (s *Server) PersistAll(results []session.Result) {
	for _, res := range results {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.Persist(ctx, res); err != nil {
			s.log.Error("storing finished session", "id", res.ID, "error", err)
		}
		cancel()
	}
}
