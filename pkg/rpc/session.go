package rpc

import (
	"sync"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
	"github.com/evgeniums/hatn-sub006/pkg/metrics"
)

// RefreshFunc obtains a fresh auth header, e.g. by calling a token
// endpoint. It is invoked at most once per coalesced refresh round.
type RefreshFunc func() ([]byte, error)

// Session binds a client-side connection to a 96-bit identity and its
// current auth header, coalescing concurrent refresh requests into a
// single outbound call per spec.md §4.4.3: "at most one refresh in
// flight; concurrent callers join the in-flight refresh and all observe
// its result".
type Session struct {
	ID string

	mu         sync.Mutex
	valid      bool
	authHeader []byte
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	header []byte
	err    error
}

// NewSession creates a Session bound to id, initially invalid until its
// first Refresh succeeds.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// AuthHeader returns the current auth header and whether the session is
// currently considered valid.
func (s *Session) AuthHeader() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHeader, s.valid
}

// Invalidate marks the session's current auth header as stale, forcing
// the next Refresh call to actually fetch a new one.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// Refresh returns the session's current auth header if valid, otherwise
// obtains a new one via fn. If a refresh is already in flight, the
// caller joins it instead of starting a second one: this is the
// coalescing invariant spec.md §4.4.3 requires.
func (s *Session) Refresh(fn RefreshFunc) ([]byte, error) {
	s.mu.Lock()
	if s.valid {
		h := s.authHeader
		s.mu.Unlock()
		return h, nil
	}
	if s.refreshing {
		ch := make(chan refreshResult, 1)
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()
		res := <-ch
		return res.header, res.err
	}
	s.refreshing = true
	s.mu.Unlock()

	header, err := fn()

	s.mu.Lock()
	s.refreshing = false
	waiters := s.waiters
	s.waiters = nil
	status := "ok"
	if err == nil {
		s.authHeader = header
		s.valid = true
	} else {
		status = "error"
	}
	s.mu.Unlock()

	metrics.SessionRefreshesTotal.WithLabelValues(status).Inc()

	res := refreshResult{header: header, err: err}
	for _, w := range waiters {
		w <- res
	}
	if err != nil {
		return nil, herr.Wrap(herr.Transient, "session refresh failed", err)
	}
	return header, nil
}
