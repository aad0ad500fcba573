package bidi

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// cdpTargetInstaller is the narrow CDP surface the Preload Script Store
// needs on a target to install/remove a script (C7 implements it).
type cdpTargetInstaller interface {
	TargetID() string
	AddScriptToEvaluateOnNewDocument(ctx context.Context, source, sandbox string, runImmediately bool) (string, error)
	RemoveScriptToEvaluateOnNewDocument(ctx context.Context, cdpScriptID string) error
}

// PreloadScriptStore maps BiDi preload-script ids to the CDP
// preload-script ids they were installed as on every target in scope
// (C10).
type PreloadScriptStore struct {
	mu      sync.RWMutex
	scripts map[string]*PreloadScript
}

// NewPreloadScriptStore creates an empty store.
func NewPreloadScriptStore() *PreloadScriptStore {
	return &PreloadScriptStore{scripts: make(map[string]*PreloadScript)}
}

// Add registers a new preload script and returns its generated id.
func (s *PreloadScriptStore) Add(functionDeclaration, sandbox string, contextIDs, userContexts []string, channels []PreloadScriptChannel) *PreloadScript {
	ps := &PreloadScript{
		ID:                  uuid.NewString(),
		FunctionDeclaration: functionDeclaration,
		Sandbox:             sandbox,
		ContextIDs:          contextIDs,
		UserContexts:        userContexts,
		Channels:            channels,
		cdpIDs:              make(map[string]string),
	}

	s.mu.Lock()
	s.scripts[ps.ID] = ps
	s.mu.Unlock()
	return ps
}

// Get returns the preload script for id.
func (s *PreloadScriptStore) Get(id string) (*PreloadScript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.scripts[id]
	return ps, ok
}

// inScope reports whether ps applies to a target whose parent context
// id is parentContextID ("" for a top-level target).
func inScope(ps *PreloadScript, parentContextID string) bool {
	if len(ps.ContextIDs) == 0 {
		return true
	}
	for _, id := range ps.ContextIDs {
		if id == parentContextID {
			return true
		}
	}
	return false
}

// InstallOnTarget installs every in-scope preload script onto target.
// The install order among scripts is not defined (the store is a map).
// parentContextID is the browsing context this target's page belongs to
// ("" for a brand new top-level target). The first error of any kind,
// close-error or not, is returned to the caller (C7 decides whether to
// swallow it) and aborts the remaining installs.
func (s *PreloadScriptStore) InstallOnTarget(ctx context.Context, target cdpTargetInstaller, parentContextID string) error {
	s.mu.Lock()
	var toInstall []*PreloadScript
	for _, ps := range s.scripts {
		if inScope(ps, parentContextID) {
			toInstall = append(toInstall, ps)
		}
	}
	s.mu.Unlock()

	for _, ps := range toInstall {
		runImmediately := true
		cdpID, err := target.AddScriptToEvaluateOnNewDocument(ctx, ps.FunctionDeclaration, ps.Sandbox, runImmediately)
		if err != nil {
			return err
		}
		s.mu.Lock()
		ps.cdpIDs[target.TargetID()] = cdpID
		s.mu.Unlock()
	}
	return nil
}

// Remove sweeps every CDP preload-script id recorded under id and
// issues a removal against each of the given installed targets, then
// deletes the BiDi record. It fails with NoSuchScript if id is unknown.
func (s *PreloadScriptStore) Remove(ctx context.Context, id string, targets map[string]cdpTargetInstaller) error {
	s.mu.Lock()
	ps, ok := s.scripts[id]
	if !ok {
		s.mu.Unlock()
		return NoSuchScript("no such script: %s", id)
	}
	cdpIDs := ps.cdpIDs
	delete(s.scripts, id)
	s.mu.Unlock()

	for targetID, cdpID := range cdpIDs {
		target, ok := targets[targetID]
		if !ok {
			continue
		}
		_ = target.RemoveScriptToEvaluateOnNewDocument(ctx, cdpID)
	}
	return nil
}
