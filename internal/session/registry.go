package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcounter/internal/repcount"
	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown or already finished session ID.
var ErrNotFound = errors.New("session not found")

// Registry holds the live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	opts     repcount.Options
	log      *slog.Logger
}

// NewRegistry creates an empty registry whose sessions use opts.
func NewRegistry(opts repcount.Options, log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		opts:     opts,
		log:      log,
	}
}

// Start creates and registers a new live session owned by a user.
func (r *Registry) Start(e repcount.Exercise, source string, owner int) (*Session, error) {
	s, err := New(e, source, r.opts, r.log)
	if err != nil {
		return nil, err
	}
	s.Owner = owner

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info("live session started", "id", s.ID, "exercise", e.String(), "source", source, "owner", owner)
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Lookup returns a live session only if owner started it. Sessions of
// other users are reported as not found.
func (r *Registry) Lookup(id uuid.UUID, owner int) (*Session, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Owner != owner {
		return nil, ErrNotFound
	}
	return s, nil
}

// Finish removes an owner's session from the registry and returns its result.
func (r *Registry) Finish(id uuid.UUID, owner int) (Result, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.Owner != owner {
		ok = false
	}
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return Result{}, ErrNotFound
	}
	return s.Finish(time.Now()), nil
}

// FinishAll removes every session, used on shutdown.
func (r *Registry) FinishAll() []Result {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	now := time.Now()
	results := make([]Result, 0, len(sessions))
	for _, s := range sessions {
		results = append(results, s.Finish(now))
	}
	return results
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expire finishes every session idle for longer than ttl.
func (r *Registry) Expire(now time.Time, ttl time.Duration) []Result {
	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > ttl {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	results := make([]Result, 0, len(stale))
	for _, s := range stale {
		results = append(results, s.Finish(s.idleSince()))
	}
	return results
}

// Janitor expires idle sessions every interval until ctx is done, handing
// each expired result to onExpire.
func (r *Registry) Janitor(ctx context.Context, interval, ttl time.Duration, onExpire func(Result)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, res := range r.Expire(now, ttl) {
				r.log.Info("live session expired", "id", res.ID, "reps", res.Summary.Reps)
				if onExpire != nil {
					onExpire(res)
				}
			}
		}
	}
}

// Options returns the tracker options new sessions start with.
func (r *Registry) Options() repcount.Options {
	return r.opts
}
