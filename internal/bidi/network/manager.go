package network

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// Manager is the per-CDP-session network event consumer: it owns the
// Network domain lifecycle for one target and dispatches each incoming
// Network.*/Fetch.* event to the matching Request state machine,
// creating or recreating requests as needed (redirects) and sharing one
// Storage (C9) across every Manager of the same session.
type Manager struct {
	sessionID string
	contextID string
	client    cdpSender
	events    *bidi.EventManager
	storage   *Storage
}

// NewManager creates a Network Manager for one CDP session. contextID
// is the browsing context BiDi events from this session's requests are
// associated with.
func NewManager(sessionID, contextID string, client cdpSender, events *bidi.EventManager, storage *Storage) *Manager {
	return &Manager{
		sessionID: sessionID,
		contextID: contextID,
		client:    client,
		events:    events,
		storage:   storage,
	}
}

// Enable issues CDP Network.enable on this session.
func (m *Manager) Enable(ctx context.Context) error {
	_, err := m.client.SendToSession(ctx, m.sessionID, "Network.enable", struct{}{})
	return err
}

// HandleCDPEvent dispatches one CDP event belonging to the Network or
// Fetch domain. It is invoked by the owning CdpTarget's wildcard
// listener (C7).
func (m *Manager) HandleCDPEvent(method string, raw json.RawMessage) {
	ctx := context.Background()

	switch method {
	case "Network.requestWillBeSent":
		m.handleRequestWillBeSent(ctx, raw)
	case "Network.requestWillBeSentExtraInfo":
		m.withRequest(raw, func(r *Request) { _ = r.HandleRequestWillBeSentExtraInfo(ctx, raw) })
	case "Network.responseReceived":
		m.withRequest(raw, func(r *Request) { _ = r.HandleResponseReceived(ctx, raw) })
	case "Network.responseReceivedExtraInfo":
		m.withRequest(raw, func(r *Request) { _ = r.HandleResponseReceivedExtraInfo(ctx, raw) })
	case "Network.requestServedFromCache":
		m.withRequest(raw, func(r *Request) { _ = r.HandleServedFromCache(ctx) })
	case "Network.loadingFailed":
		m.withRequest(raw, func(r *Request) { _ = r.HandleLoadingFailed(ctx, raw) })
	case "Fetch.requestPaused":
		m.handleRequestPaused(ctx, raw)
	case "Fetch.authRequired":
		m.handleAuthRequired(ctx, raw)
	}
}

func (m *Manager) withRequest(raw json.RawMessage, fn func(*Request)) {
	var id struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(raw, &id); err != nil || id.RequestID == "" {
		return
	}
	r, ok := m.storage.Get(id.RequestID)
	if !ok {
		return
	}
	fn(r)
}

func (m *Manager) handleRequestWillBeSent(ctx context.Context, raw json.RawMessage) {
	var p requestWillBeSentParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	existing, ok := m.storage.Get(p.RequestID)
	redirectCount := 0

	if ok {
		isRedirect, err := existing.HandleRequestWillBeSent(ctx, raw)
		if err != nil || !isRedirect {
			return
		}
		existing.FlushAsRedirected()
		m.storage.Delete(p.RequestID)
		redirectCount = existing.RedirectCount() + 1
	}

	r := NewRequest(p.RequestID, m.sessionID, m.contextID, m.client, m.events, m.storage)
	r.redirectCount = redirectCount
	m.storage.Put(p.RequestID, r)

	if raw, ok := m.storage.TakePreRequest(p.RequestID); ok {
		var pp fetchRequestPausedParams
		if err := json.Unmarshal(raw, &pp); err == nil {
			_ = r.HandleRequestPaused(ctx, pp)
		}
	}

	// The new request's own requestWillBeSent is the same CDP event that
	// carried the prior hop's redirectResponse; strip it before handing
	// the event to the fresh Request, which is not itself a redirect and
	// must run evaluate() immediately rather than short-circuit as one.
	p.RedirectResponse = nil
	freshRaw, err := json.Marshal(p)
	if err != nil {
		return
	}
	_, _ = r.HandleRequestWillBeSent(ctx, freshRaw)
}

func (m *Manager) handleRequestPaused(ctx context.Context, raw json.RawMessage) {
	var p fetchRequestPausedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	id := p.CorrelationID()
	r, ok := m.storage.Get(id)
	if !ok {
		// Arrived before Network.requestWillBeSent; stash it so the
		// eventual request creation can apply it immediately.
		m.storage.StorePreRequest(id, raw)
		return
	}

	if !p.IsResponsePhase() {
		r.SetInterceptPhase(bidi.PhaseBeforeRequestSent)
	} else {
		r.SetInterceptPhase(bidi.PhaseResponseStarted)
	}

	_ = r.HandleRequestPaused(ctx, p)
}

func (m *Manager) handleAuthRequired(ctx context.Context, raw json.RawMessage) {
	var p fetchAuthRequiredParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	r, ok := m.storage.Get(p.CorrelationID())
	if !ok {
		return
	}
	_ = r.HandleAuthRequired(ctx, p)
}
