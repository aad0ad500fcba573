package network

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// Storage is the registry of live requests, intercept definitions, and
// "pre-request" Fetch.requestPaused records that arrived before their
// matching Network.requestWillBeSent (C9).
type Storage struct {
	mu          sync.RWMutex
	requests    map[string]*Request        // by CDP request id
	preRequests map[string]json.RawMessage // by CDP network id, awaiting requestWillBeSent
	intercepts  map[string]*bidi.Intercept
}

// NewStorage creates an empty Network Storage.
func NewStorage() *Storage {
	return &Storage{
		requests:    make(map[string]*Request),
		preRequests: make(map[string]json.RawMessage),
		intercepts:  make(map[string]*bidi.Intercept),
	}
}

// Get returns the live request for a CDP request id.
func (s *Storage) Get(requestID string) (*Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	return r, ok
}

// Put registers or replaces the live request for requestID (used both
// for first registration and for redirect recreation, §4.8).
func (s *Storage) Put(requestID string, r *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[requestID] = r
}

// Delete removes a completed or failed request from the registry.
func (s *Storage) Delete(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, requestID)
}

// TakePreRequest returns and removes any Fetch.requestPaused payload
// that arrived for requestID before its Network.requestWillBeSent.
func (s *Storage) TakePreRequest(requestID string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.preRequests[requestID]
	if ok {
		delete(s.preRequests, requestID)
	}
	return raw, ok
}

// StorePreRequest records a Fetch.requestPaused payload that arrived
// before its matching Network.requestWillBeSent.
func (s *Storage) StorePreRequest(requestID string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preRequests[requestID] = raw
}

// AddIntercept registers a new intercept rule and returns it; its ID is
// the handle.
func (s *Storage) AddIntercept(urlPatterns []string, phases []bidi.InterceptPhase) *bidi.Intercept {
	phaseSet := make(map[bidi.InterceptPhase]struct{}, len(phases))
	for _, p := range phases {
		phaseSet[p] = struct{}{}
	}
	ic := &bidi.Intercept{
		ID:          uuid.NewString(),
		URLPatterns: urlPatterns,
		Phases:      phaseSet,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercepts[ic.ID] = ic
	return ic
}

// RemoveIntercept deletes an intercept by id. It fails with
// InvalidArgument if unknown.
func (s *Storage) RemoveIntercept(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intercepts[id]; !ok {
		return bidi.InvalidArgument("no such intercept: %s", id)
	}
	delete(s.intercepts, id)
	return nil
}

// GetInterceptsForPhase returns every intercept active in phase whose
// URL patterns match url.
func (s *Storage) GetInterceptsForPhase(url string, phase bidi.InterceptPhase) []*bidi.Intercept {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*bidi.Intercept
	for _, ic := range s.intercepts {
		if _, ok := ic.Phases[phase]; !ok {
			continue
		}
		if matchesAnyPattern(url, ic.URLPatterns) {
			out = append(out, ic)
		}
	}
	return out
}

// matchesAnyPattern reports whether url matches any of patterns. Each
// pattern is either an exact URL or a glob using '*' as a wildcard
// spanning any number of characters — a deliberately narrower
// simplification of the full structural BiDi URL-pattern (protocol/
// host/port/pathname/search) grammar, which the spec text does not
// itself define.
func matchesAnyPattern(url string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if globMatch(p, url) {
			return true
		}
	}
	return false
}

func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}

	return strings.HasSuffix(s, parts[len(parts)-1])
}

// ClearSession removes every live request whose CDP session is
// sessionID, for use when that session's target detaches (§4.9).
func (s *Storage) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.requests {
		if r.SessionID() == sessionID {
			delete(s.requests, id)
		}
	}
}
