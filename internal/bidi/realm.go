package bidi

import "sync"

// cdpSessionContext identifies a realm's owning CDP session and CDP
// execution context id — the secondary index key the spec names for
// the Realm Store (C6).
type cdpSessionContext struct {
	sessionID          string
	executionContextID int64
}

// RealmStore is keyed by realm id (UUID) with secondary indices by
// (cdpSession, executionContextId) and by browsingContextId (C6).
type RealmStore struct {
	mu   sync.RWMutex
	byID map[string]*Realm

	// bySession indexes realms by the CDP session + execution context
	// they were created from.
	bySession map[cdpSessionContext]string // -> realm id

	// byContext indexes window/sandbox realm ids by their owning
	// browsing context, and worker realm ids by each of their owners.
	byContext map[string]map[string]struct{} // context id -> realm ids
}

// NewRealmStore creates an empty store.
func NewRealmStore() *RealmStore {
	return &RealmStore{
		byID:      make(map[string]*Realm),
		bySession: make(map[cdpSessionContext]string),
		byContext: make(map[string]map[string]struct{}),
	}
}

// Add registers a new realm and indexes it.
func (s *RealmStore) Add(r *Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[r.ID] = r
	s.bySession[cdpSessionContext{r.CdpSessionID, r.ExecutionContextID}] = r.ID

	if r.BrowsingContextID != "" {
		s.indexByContextLocked(r.BrowsingContextID, r.ID)
	}
	for owner := range r.Owners {
		s.indexByContextLocked(owner, r.ID)
	}
}

func (s *RealmStore) indexByContextLocked(contextID, realmID string) {
	set, ok := s.byContext[contextID]
	if !ok {
		set = make(map[string]struct{})
		s.byContext[contextID] = set
	}
	set[realmID] = struct{}{}
}

// Get returns the realm for id.
func (s *RealmStore) Get(id string) (*Realm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	return r, ok
}

// ByCdpExecutionContext looks up the realm created from a given CDP
// session's execution context.
func (s *RealmStore) ByCdpExecutionContext(sessionID string, executionContextID int64) (*Realm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySession[cdpSessionContext{sessionID, executionContextID}]
	if !ok {
		return nil, false
	}
	r, ok := s.byID[id]
	return r, ok
}

// RealmFilter narrows FindRealm / FindRealms to realms matching every
// non-zero-valued field.
type RealmFilter struct {
	BrowsingContextID string
	Type              RealmType
	Sandbox           string
	CdpSessionID      string
}

func (f RealmFilter) matches(r *Realm) bool {
	if f.BrowsingContextID != "" {
		found := false
		for _, id := range r.AssociatedBrowsingContexts() {
			if id == f.BrowsingContextID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Sandbox != "" && r.SandboxName != f.Sandbox {
		return false
	}
	if f.CdpSessionID != "" && r.CdpSessionID != f.CdpSessionID {
		return false
	}
	return true
}

// FindRealm returns the first realm matching filter, or (nil, false).
func (s *RealmStore) FindRealm(filter RealmFilter) (*Realm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.byID {
		if filter.matches(r) {
			return r, true
		}
	}
	return nil, false
}

// FindRealms returns every realm matching filter.
func (s *RealmStore) FindRealms(filter RealmFilter) []*Realm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Realm
	for _, r := range s.byID {
		if filter.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// ByContext returns every realm associated with contextID, window and
// worker realms alike.
func (s *RealmStore) ByContext(contextID string) []*Realm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byContext[contextID]
	out := make([]*Realm, 0, len(ids))
	for id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Destroy removes id from the store. It returns the removed realm (or
// nil if unknown) so the caller can emit script.realmDestroyed via the
// Event Manager (C4).
func (s *RealmStore) Destroy(id string) *Realm {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.bySession, cdpSessionContext{r.CdpSessionID, r.ExecutionContextID})

	if r.BrowsingContextID != "" {
		s.unindexByContextLocked(r.BrowsingContextID, id)
	}
	for owner := range r.Owners {
		s.unindexByContextLocked(owner, id)
	}
	return r
}

func (s *RealmStore) unindexByContextLocked(contextID, realmID string) {
	if set, ok := s.byContext[contextID]; ok {
		delete(set, realmID)
		if len(set) == 0 {
			delete(s.byContext, contextID)
		}
	}
}

// DestroyByContext removes and returns every realm associated with
// contextID, for use when a browsing context is destroyed (§4.5
// cascading destruction extends to the context's realms).
func (s *RealmStore) DestroyByContext(contextID string) []*Realm {
	s.mu.Lock()
	ids := make([]string, 0, len(s.byContext[contextID]))
	for id := range s.byContext[contextID] {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := make([]*Realm, 0, len(ids))
	for _, id := range ids {
		if r := s.Destroy(id); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// DestroyBySession removes every realm created from a CDP session, for
// use when that session's target detaches.
func (s *RealmStore) DestroyBySession(sessionID string) []*Realm {
	s.mu.RLock()
	var ids []string
	for _, r := range s.byID {
		if r.CdpSessionID == sessionID {
			ids = append(ids, r.ID)
		}
	}
	s.mu.RUnlock()

	out := make([]*Realm, 0, len(ids))
	for _, id := range ids {
		if r := s.Destroy(id); r != nil {
			out = append(out, r)
		}
	}
	return out
}
