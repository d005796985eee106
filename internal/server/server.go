package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repcounter/internal/models"
	"github.com/claude/repcounter/internal/session"
	"github.com/claude/repcounter/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Store is the persistence the handlers need. *storage.DB satisfies it.
type Store interface {
	UserResolver
	InsertRepSession(ctx context.Context, row models.RepSessionRow, events []models.RepEventRow) (bool, error)
	QueryRepSessions(ctx context.Context, start, end time.Time, userID int, exercise string) ([]models.RepSessionRow, error)
	GetRepSession(ctx context.Context, id uuid.UUID, userID int) (*storage.RepSessionDetail, error)
	DeleteRepSession(ctx context.Context, id uuid.UUID, userID int) error
	GetExerciseStats(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.ExercisePeriod, error)
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
}

var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       Store
	registry *session.Registry
	log      *slog.Logger
	apiKey   string
	whois    WhoIsClient
	router   chi.Router
}

// New creates a new Server with all routes configured.
func New(db Store, registry *session.Registry, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:       db,
		registry: registry,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches request identity from the local dev user to the
// tailnet peer making the request.
func (s *Server) SetTailscale(lc WhoIsClient) {
	s.whois = lc
}

// SetMCP mounts a streamable-HTTP MCP handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.router.With(s.identify).Handle("/mcp", h)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/me", s.handleMe)
		r.Get("/exercises", s.handleExercises)
		r.Get("/angle", s.handleAngle)

		// Live sessions fed frame by frame by a remote pose estimator
		r.Post("/live", s.handleStartLive)
		r.Route("/live/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetLive)
			r.Post("/frames", s.handleLiveFrames)
			r.Put("/exercise", s.handleSetExercise)
			r.Post("/reset", s.handleResetLive)
			r.Get("/events", s.handleLiveEvents)
			r.Delete("/", s.handleFinishLive)
		})

		r.Post("/analyze", s.handleAnalyze)

		// Offline analyzer uploads (API key required)
		r.With(APIKeyAuth(s.apiKey)).Post("/sessions", s.handleUploadSession)

		r.Get("/sessions", s.handleQuerySessions)
		r.Get("/sessions/stats", s.handleSessionStats)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
	})
}

// Persist stores a finished live session for its owner. Sessions that never
// saw a frame are dropped.
func (s *Server) Persist(ctx context.Context, res session.Result) error {
	if res.Summary.FramesTotal == 0 {
		s.log.Info("discarding empty session", "id", res.ID)
		return nil
	}
	row, events := res.Rows(res.Owner)
	inserted, err := s.db.InsertRepSession(ctx, row, events)
	if err != nil {
		return err
	}
	s.log.Info("session stored", "id", res.ID, "exercise", row.Exercise, "reps", row.Reps, "inserted", inserted)
	return nil
}
