package command

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// capabilitiesRequest is the W3C capability-negotiation shape BiDi's
// session.new carries: a set of required capabilities plus a list of
// candidate sets, the first of which to be satisfiable wins (§4.12).
type capabilitiesRequest struct {
	AlwaysMatch map[string]any   `json:"alwaysMatch"`
	FirstMatch  []map[string]any `json:"firstMatch"`
}

type sessionNewParams struct {
	Capabilities struct {
		AlwaysMatch map[string]any   `json:"alwaysMatch"`
		FirstMatch  []map[string]any `json:"firstMatch"`
	} `json:"capabilities"`
}

type sessionSubscribeParams struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts"`
	Channel  string   `json:"channel"`
}

func registerSessionHandlers(p *Processor) {
	p.Register("session.status", handleSessionStatus)
	p.Register("session.new", handleSessionNew)
	p.Register("session.subscribe", handleSessionSubscribe)
	p.Register("session.unsubscribe", handleSessionUnsubscribe)
	p.Register("browser.close", handleBrowserClose)
	p.Register("browser.getVersion", handleBrowserGetVersion)
}

func handleSessionStatus(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	if sess == nil {
		return map[string]any{"ready": true, "message": "session creation available"}, nil
	}
	return map[string]any{"ready": false, "message": "session already established"}, nil
}

// mergeCapabilities implements the W3C firstMatch x alwaysMatch merge
// (§4.12): each firstMatch candidate is merged over alwaysMatch,
// failing on a key present (with a different value) in both; the first
// candidate whose merged browserName is "chrome" wins, else the first
// candidate overall.
func mergeCapabilities(req capabilitiesRequest) (map[string]any, error) {
	candidates := req.FirstMatch
	if len(candidates) == 0 {
		candidates = []map[string]any{{}}
	}

	merged := make([]map[string]any, 0, len(candidates))
	for _, fm := range candidates {
		m := make(map[string]any, len(req.AlwaysMatch)+len(fm))
		for k, v := range req.AlwaysMatch {
			m[k] = v
		}
		for k, v := range fm {
			if existing, ok := m[k]; ok && !equalCapability(existing, v) {
				return nil, bidi.InvalidSessionID("conflicting capability %q between alwaysMatch and firstMatch", k)
			}
			m[k] = v
		}
		merged = append(merged, m)
	}

	for _, m := range merged {
		if name, _ := m["browserName"].(string); name == "chrome" {
			return m, nil
		}
	}
	return merged[0], nil
}

func equalCapability(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// normalizeUnhandledPromptBehavior folds every legal input shape (bare
// string, or structured per-type object) into {default: accept|dismiss|
// ignore}, defaulting to "dismiss and notify" semantics collapsed to
// "dismiss" when unspecified.
func normalizeUnhandledPromptBehavior(caps map[string]any) string {
	v, ok := caps["unhandledPromptBehavior"]
	if !ok {
		return "dismiss"
	}
	switch t := v.(type) {
	case string:
		switch t {
		case "accept", "dismiss", "ignore":
			return t
		}
	case map[string]any:
		if d, ok := t["default"].(string); ok {
			switch d {
			case "accept", "dismiss", "ignore":
				return d
			}
		}
	}
	return "dismiss"
}

func handleSessionNew(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p sessionNewParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	merged, err := mergeCapabilities(capabilitiesRequest{
		AlwaysMatch: p.Capabilities.AlwaysMatch,
		FirstMatch:  p.Capabilities.FirstMatch,
	})
	if err != nil {
		return nil, err
	}
	merged["unhandledPromptBehavior"] = map[string]any{
		"default": normalizeUnhandledPromptBehavior(merged),
	}
	merged["browserName"] = "chrome"

	return map[string]any{
		"sessionId":    sess.ID,
		"capabilities": merged,
	}, nil
}

func handleSessionSubscribe(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p sessionSubscribeParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	sub, err := sess.Subscriptions.Subscribe(p.Events, p.Contexts, p.Channel)
	if err != nil {
		return nil, err
	}
	return map[string]any{"subscription": sub.ID}, nil
}

func handleSessionUnsubscribe(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p sessionSubscribeParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if err := sess.Subscriptions.Unsubscribe(p.Events, p.Contexts, p.Channel); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func handleBrowserClose(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	if err := sess.Close(); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return map[string]any{}, nil
}

func handleBrowserGetVersion(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	raw, err := sess.CDP.SendToSession(ctx, "", "Browser.getVersion", struct{}{})
	if err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	return result, nil
}
