package bidi

import "sync"

// BrowsingContextStore is the CRUD store for browsing contexts (C5),
// keyed by context id, with top-level ancestor resolution and cascading
// destruction.
type BrowsingContextStore struct {
	mu       sync.RWMutex
	contexts map[string]*BrowsingContext
}

// NewBrowsingContextStore creates an empty store.
func NewBrowsingContextStore() *BrowsingContextStore {
	return &BrowsingContextStore{contexts: make(map[string]*BrowsingContext)}
}

// Create adds a new context. If parentID is non-empty it must already
// exist; the new context is registered as one of its children.
func (s *BrowsingContextStore) Create(id, parentID string) *BrowsingContext {
	ctx := &BrowsingContext{
		ID:       id,
		ParentID: parentID,
		Children: make(map[string]struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[id] = ctx
	if parentID != "" {
		if parent, ok := s.contexts[parentID]; ok {
			parent.Children[id] = struct{}{}
		}
	}
	return ctx
}

// Get returns the context for id, or (nil, false) if unknown.
func (s *BrowsingContextStore) Get(id string) (*BrowsingContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.contexts[id]
	return ctx, ok
}

// Exists reports whether id names a tracked context.
func (s *BrowsingContextStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contexts[id]
	return ok
}

// TopLevel returns every tracked top-level (parentless) context.
func (s *BrowsingContextStore) TopLevel() []*BrowsingContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*BrowsingContext
	for _, c := range s.contexts {
		if c.IsTopLevel() {
			out = append(out, c)
		}
	}
	return out
}

// All returns every tracked context.
func (s *BrowsingContextStore) All() []*BrowsingContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BrowsingContext, 0, len(s.contexts))
	for _, c := range s.contexts {
		out = append(out, c)
	}
	return out
}

// FindTopLevelContextID walks parent links from id until it reaches a
// context with no parent, returning that context's id. It fails with
// NoSuchFrame if id is not tracked.
func (s *BrowsingContextStore) FindTopLevelContextID(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.contexts[id]
	if !ok {
		return "", NoSuchFrame("no such frame: %s", id)
	}
	for cur.ParentID != "" {
		parent, ok := s.contexts[cur.ParentID]
		if !ok {
			// Parent already destroyed; cur is the highest surviving
			// ancestor, treat it as top-level for routing purposes.
			return cur.ID, nil
		}
		cur = parent
	}
	return cur.ID, nil
}

// SetCdpSession records which CDP session owns a context's target.
func (s *BrowsingContextStore) SetCdpSession(id, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.CdpSessionID = sessionID
	}
}

// SetURL replaces a context's tracked URL.
func (s *BrowsingContextStore) SetURL(id, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.URL = url
	}
}

// SetLifecycleState replaces a context's tracked lifecycle state.
func (s *BrowsingContextStore) SetLifecycleState(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.LifecycleState = state
	}
}

// Destroy removes id and, cascading, every descendant it has. It
// returns the ids of every context removed (id first, then descendants
// in no particular order), for callers that need to emit
// browsingContext.contextDestroyed per removed context.
func (s *BrowsingContextStore) Destroy(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyLocked(id)
}

func (s *BrowsingContextStore) destroyLocked(id string) []string {
	ctx, ok := s.contexts[id]
	if !ok {
		return nil
	}

	removed := []string{id}
	for childID := range ctx.Children {
		removed = append(removed, s.destroyLocked(childID)...)
	}

	delete(s.contexts, id)
	if ctx.ParentID != "" {
		if parent, ok := s.contexts[ctx.ParentID]; ok {
			delete(parent.Children, id)
		}
	}
	return removed
}
