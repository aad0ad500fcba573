package bidi

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/cdp"
)

// cdpSender is the narrow CDP client surface a CdpTarget needs: sending
// session-scoped commands. Satisfied by *cdp.Client.
type cdpSender interface {
	SendToSession(ctx context.Context, sessionID, method string, params interface{}) (json.RawMessage, error)
}

// NetworkManager is the per-session network event consumer a CdpTarget
// optionally owns (C8/C9 live in the network subpackage; CdpTarget only
// needs this much of their surface, keeping this package independent of
// that one).
type NetworkManager interface {
	Enable(ctx context.Context) error
	HandleCDPEvent(method string, raw json.RawMessage)
}

// NetworkManagerFactory builds a NetworkManager bound to one CdpTarget.
// Supplied once at server composition time; nil means network
// interception is unavailable (tests, or a build without it wired).
type NetworkManagerFactory func(t *CdpTarget) NetworkManager

// CdpTarget wraps one CDP session end-to-end: it drives the ordered
// domain-enable sequence, installs preload scripts, optionally owns a
// Network Manager, and re-emits every CDP event on this session as a
// BiDi `cdp.<method>` passthrough event (C7).
type CdpTarget struct {
	targetID        string
	sessionID       string
	parentContextID string

	client  cdpSender
	preload *PreloadScriptStore
	events  *EventManager
	network NetworkManager

	unblocked  chan struct{}
	unblockErr error
}

// TargetID returns the CDP target id this wrapper was created for.
func (t *CdpTarget) TargetID() string { return t.targetID }

// SessionID returns the CDP session id attached to this target.
func (t *CdpTarget) SessionID() string { return t.sessionID }

// NewCdpTarget performs the C7 init sequence:
//
//  1. If events.NetworkDomainEnabled(), build a Network Manager and
//     enable the CDP Network domain.
//  2. Runtime.enable, Page.enable, Page.setLifecycleEventsEnabled,
//     Target.setAutoAttach.
//  3. Install every in-scope preload script.
//  4. Runtime.runIfWaitingForDebugger.
//
// A close-error at any step is swallowed (the browser may have
// detached first) and Unblocked() returns immediately with no error;
// any other error is recorded and returned from Unblocked().
func NewCdpTarget(ctx context.Context, client cdpSender, targetID, sessionID, parentContextID string, preload *PreloadScriptStore, events *EventManager, networkFactory NetworkManagerFactory) *CdpTarget {
	t := &CdpTarget{
		targetID:        targetID,
		sessionID:       sessionID,
		parentContextID: parentContextID,
		client:          client,
		preload:         preload,
		events:          events,
		unblocked:       make(chan struct{}),
	}

	go t.init(ctx, networkFactory)
	return t
}

func (t *CdpTarget) init(ctx context.Context, networkFactory NetworkManagerFactory) {
	err := t.initSteps(ctx, networkFactory)
	if err != nil && cdp.IsCloseError(err) {
		err = nil
	}
	t.unblockErr = err
	close(t.unblocked)
}

func (t *CdpTarget) initSteps(ctx context.Context, networkFactory NetworkManagerFactory) error {
	if t.events.NetworkDomainEnabled() && networkFactory != nil {
		t.network = networkFactory(t)
		if err := t.network.Enable(ctx); err != nil {
			return err
		}
	}

	if _, err := t.client.SendToSession(ctx, t.sessionID, "Runtime.enable", struct{}{}); err != nil {
		return err
	}
	if _, err := t.client.SendToSession(ctx, t.sessionID, "Page.enable", struct{}{}); err != nil {
		return err
	}
	if _, err := t.client.SendToSession(ctx, t.sessionID, "Page.setLifecycleEventsEnabled", map[string]any{"enabled": true}); err != nil {
		return err
	}
	if _, err := t.client.SendToSession(ctx, t.sessionID, "Target.setAutoAttach", map[string]any{
		"autoAttach":             true,
		"waitForDebuggerOnStart": true,
		"flatten":                true,
	}); err != nil {
		return err
	}

	if err := t.preload.InstallOnTarget(ctx, t, t.parentContextID); err != nil {
		return err
	}

	if _, err := t.client.SendToSession(ctx, t.sessionID, "Runtime.runIfWaitingForDebugger", struct{}{}); err != nil {
		return err
	}
	return nil
}

// Unblocked blocks until target initialization has completed (or
// failed with a non-close error), mirroring the `unblocked` latch every
// concurrent accessor of this target serializes through.
func (t *CdpTarget) Unblocked(ctx context.Context) error {
	select {
	case <-t.unblocked:
		return t.unblockErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleCDPEvent re-emits method as a BiDi `cdp.<method>` passthrough
// event and, if this target owns a Network Manager, forwards Network
// and Fetch domain events to it.
func (t *CdpTarget) HandleCDPEvent(method string, raw json.RawMessage) {
	t.events.RegisterEvent("cdp."+method, t.parentContextID, map[string]any{
		"method":  method,
		"params":  raw,
		"session": t.sessionID,
	})

	if t.network != nil && isNetworkEvent(method) {
		t.network.HandleCDPEvent(method, raw)
	}
}

func isNetworkEvent(method string) bool {
	return len(method) > 8 && (method[:8] == "Network." || (len(method) > 6 && method[:6] == "Fetch."))
}

// AddScriptToEvaluateOnNewDocument installs source via CDP
// Page.addScriptToEvaluateOnNewDocument on this target's session,
// returning the CDP-assigned script identifier.
func (t *CdpTarget) AddScriptToEvaluateOnNewDocument(ctx context.Context, source, sandbox string, runImmediately bool) (string, error) {
	params := map[string]any{"source": source}
	if sandbox != "" {
		params["worldName"] = sandbox
	}
	if runImmediately {
		params["runImmediately"] = true
	}
	raw, err := t.client.SendToSession(ctx, t.sessionID, "Page.addScriptToEvaluateOnNewDocument", params)
	if err != nil {
		return "", err
	}
	var result struct {
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return result.Identifier, nil
}

// RemoveScriptToEvaluateOnNewDocument reverses
// AddScriptToEvaluateOnNewDocument for a single CDP script id.
func (t *CdpTarget) RemoveScriptToEvaluateOnNewDocument(ctx context.Context, cdpScriptID string) error {
	_, err := t.client.SendToSession(ctx, t.sessionID, "Page.removeScriptToEvaluateOnNewDocument", map[string]any{
		"identifier": cdpScriptID,
	})
	return err
}
