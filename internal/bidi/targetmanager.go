package bidi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/grantcarthew/bidid/internal/cdp"
)

// eligibleContextTypes are the CDP target types that become tracked
// browsing contexts (§4.5: "Contexts are created lazily on
// Target.attachedToTarget events with eligible types").
var eligibleContextTypes = map[string]struct{}{
	"page":   {},
	"iframe": {},
}

type targetAttachedToTargetParams struct {
	SessionID  string `json:"sessionId"`
	TargetInfo struct {
		TargetID         string `json:"targetId"`
		Type             string `json:"type"`
		OpenerFrameID    string `json:"openerFrameId"`
		BrowserContextID string `json:"browserContextId"`
	} `json:"targetInfo"`
	WaitingForDebugger bool `json:"waitingForDebugger"`
}

type targetDetachedFromTargetParams struct {
	SessionID string `json:"sessionId"`
	TargetID  string `json:"targetId"`
}

type runtimeExecutionContextCreatedParams struct {
	Context struct {
		ID      int64          `json:"id"`
		Origin  string         `json:"origin"`
		Name    string         `json:"name"`
		AuxData map[string]any `json:"auxData"`
	} `json:"context"`
}

type runtimeExecutionContextDestroyedParams struct {
	ExecutionContextID int64 `json:"executionContextId"`
}

// TargetManager is the CdpTarget orchestration layer: it watches the
// raw CDP event stream for Target.attachedToTarget /
// Target.detachedFromTarget and Runtime.executionContext{Created,
// Destroyed}, maintaining the Browsing Context Store (C5), Realm Store
// (C6), and one CdpTarget (C7) per CDP session. It is the composition
// point between C1 (the raw CDP client) and C5/C6/C7, kept as its own
// file because none of C5, C6 or C7 individually owns the wiring
// between CDP's session-attachment events and the stores.
type TargetManager struct {
	mu      sync.RWMutex
	client  *cdp.Client
	events  *EventManager
	preload *PreloadScriptStore
	network NetworkManagerFactory

	contexts *BrowsingContextStore
	realms   *RealmStore

	targets map[string]*CdpTarget // by CDP session id
}

// NewTargetManager wires a CDP client to the Browsing Context, Realm
// and CdpTarget layers. networkFactory may be nil if network
// interception support is not wired up (e.g. in tests).
func NewTargetManager(client *cdp.Client, events *EventManager, contexts *BrowsingContextStore, realms *RealmStore, preload *PreloadScriptStore, networkFactory NetworkManagerFactory) *TargetManager {
	tm := &TargetManager{
		client:   client,
		events:   events,
		preload:  preload,
		network:  networkFactory,
		contexts: contexts,
		realms:   realms,
		targets:  make(map[string]*CdpTarget),
	}

	client.Subscribe("Target.attachedToTarget", func(evt cdp.Event) { tm.onAttached(evt) })
	client.Subscribe("Target.detachedFromTarget", func(evt cdp.Event) { tm.onDetached(evt) })
	client.Subscribe("Runtime.executionContextCreated", func(evt cdp.Event) { tm.onExecutionContextCreated(evt) })
	client.Subscribe("Runtime.executionContextDestroyed", func(evt cdp.Event) { tm.onExecutionContextDestroyed(evt) })
	client.SubscribeAll(func(evt cdp.Event) { tm.routeToTarget(evt) })

	return tm
}

// Target returns the CdpTarget owning a CDP session, once attached.
func (tm *TargetManager) Target(sessionID string) (*CdpTarget, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.targets[sessionID]
	return t, ok
}

func (tm *TargetManager) onAttached(evt cdp.Event) {
	var p targetAttachedToTargetParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return
	}

	var parentContextID string
	if _, eligible := eligibleContextTypes[p.TargetInfo.Type]; eligible {
		// A target with an opener frame is nested under that frame's
		// context; otherwise it is a fresh top-level context.
		parentContextID = p.TargetInfo.OpenerFrameID
		tm.contexts.Create(p.TargetInfo.TargetID, parentContextID)
		tm.contexts.SetCdpSession(p.TargetInfo.TargetID, p.SessionID)
		tm.events.RegisterEvent("browsingContext.contextCreated", p.TargetInfo.TargetID, map[string]any{
			"context": p.TargetInfo.TargetID,
			"parent":  parentContextID,
			"url":     "",
		})
	}

	target := NewCdpTarget(context.Background(), tm.client, p.TargetInfo.TargetID, p.SessionID, parentContextID, tm.preload, tm.events, tm.network)

	tm.mu.Lock()
	tm.targets[p.SessionID] = target
	tm.mu.Unlock()
}

func (tm *TargetManager) onDetached(evt cdp.Event) {
	var p targetDetachedFromTargetParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return
	}

	tm.mu.Lock()
	delete(tm.targets, p.SessionID)
	tm.mu.Unlock()

	tm.realms.DestroyBySession(p.SessionID)
	for _, id := range tm.contexts.Destroy(p.TargetID) {
		tm.events.RegisterEvent("browsingContext.contextDestroyed", id, map[string]any{"context": id})
	}
}

func (tm *TargetManager) onExecutionContextCreated(evt cdp.Event) {
	var p runtimeExecutionContextCreatedParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return
	}

	sessionID := evt.SessionID
	contextID, _ := auxDataFrameID(p.Context.AuxData)

	realm := &Realm{
		ID:                 uuid.NewString(),
		Type:               RealmWindow,
		CdpSessionID:       sessionID,
		ExecutionContextID: p.Context.ID,
		Origin:             p.Context.Origin,
		BrowsingContextID:  contextID,
	}
	tm.realms.Add(realm)
	tm.events.RegisterEvent("script.realmCreated", contextID, map[string]any{
		"type":    realm.Type,
		"realm":   realm.ID,
		"origin":  realm.Origin,
		"context": contextID,
	})
}

func (tm *TargetManager) onExecutionContextDestroyed(evt cdp.Event) {
	var p runtimeExecutionContextDestroyedParams
	if err := json.Unmarshal(evt.Params, &p); err != nil {
		return
	}

	realm, ok := tm.realms.ByCdpExecutionContext(evt.SessionID, p.ExecutionContextID)
	if !ok {
		return
	}
	tm.realms.Destroy(realm.ID)
	tm.events.RegisterEvent("script.realmDestroyed", realm.BrowsingContextID, map[string]any{"realm": realm.ID})
}

func (tm *TargetManager) routeToTarget(evt cdp.Event) {
	if evt.SessionID == "" {
		return
	}
	tm.mu.RLock()
	target, ok := tm.targets[evt.SessionID]
	tm.mu.RUnlock()
	if !ok {
		return
	}
	target.HandleCDPEvent(evt.Method, evt.Params)
}

func auxDataFrameID(auxData map[string]any) (string, bool) {
	frame, ok := auxData["frameId"]
	if !ok {
		return "", false
	}
	s, ok := frame.(string)
	return s, ok
}
