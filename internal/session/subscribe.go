package session

import "github.com/claude/repcounter/internal/repcount"

// Subscribe returns a channel receiving every snapshot the session produces
// from now on. The channel is closed when the session finishes. A slow
// subscriber misses snapshots rather than stalling the session.
func (s *Session) Subscribe() <-chan repcount.Snapshot {
	ch := make(chan repcount.Snapshot, 32)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.closed {
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe.
func (s *Session) Unsubscribe(ch <-chan repcount.Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for c := range s.subs {
		if c == ch {
			delete(s.subs, c)
			close(c)
			return
		}
	}
}

func (s *Session) broadcast(snap repcount.Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// slow subscriber, skip
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
}
