package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grantcarthew/bidid/internal/bidi"
)

func registerScriptHandlers(p *Processor) {
	p.Register("script.addPreloadScript", handleAddPreloadScript)
	p.Register("script.removePreloadScript", handleRemovePreloadScript)
	p.Register("script.callFunction", handleCallFunction)
	p.Register("script.evaluate", handleEvaluate)
	p.Register("script.disown", handleDisown)
	p.Register("script.getRealms", handleGetRealms)
}

type channelValueParam struct {
	Channel struct {
		Channel         string `json:"channel"`
		OwnershipIgnore bool   `json:"ownership"`
	} `json:"channel"`
}

func handleAddPreloadScript(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		FunctionDeclaration string              `json:"functionDeclaration"`
		Sandbox             string              `json:"sandbox"`
		Contexts            []string            `json:"contexts"`
		UserContexts        []string            `json:"userContexts"`
		Channels            []channelValueParam `json:"arguments"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	if p.Contexts != nil && len(p.Contexts) == 0 {
		return nil, bidi.InvalidArgument("contexts must not be an empty list")
	}
	for _, id := range p.Contexts {
		c, ok := sess.Contexts.Get(id)
		if !ok {
			return nil, bidi.NoSuchFrame("no such frame: %s", id)
		}
		if !c.IsTopLevel() {
			return nil, bidi.InvalidArgument("preload script context %s is not top-level", id)
		}
	}

	channels := make([]bidi.PreloadScriptChannel, 0, len(p.Channels))
	for _, c := range p.Channels {
		channels = append(channels, bidi.PreloadScriptChannel{
			Channel:         c.Channel.Channel,
			OwnershipIgnore: c.Channel.OwnershipIgnore,
		})
	}

	ps := sess.Preload.Add(p.FunctionDeclaration, p.Sandbox, p.Contexts, p.UserContexts, channels)

	for _, ch := range channels {
		startChannelPoll(sess, ps, ch)
	}

	return map[string]any{"script": ps.ID}, nil
}

func handleRemovePreloadScript(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Script string `json:"script"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	targets := installedTargets(sess)
	if err := sess.Preload.Remove(ctx, p.Script, targets); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

// installedTargets adapts the session's attached CdpTargets to the
// cdpTargetInstaller surface bidi.PreloadScriptStore.Remove needs,
// keyed by CDP target id. The Target Manager only exposes lookup by
// CDP session id, so this walks every tracked context's recorded
// session.
func installedTargets(sess *Session) map[string]interface {
	TargetID() string
	AddScriptToEvaluateOnNewDocument(ctx context.Context, source, sandbox string, runImmediately bool) (string, error)
	RemoveScriptToEvaluateOnNewDocument(ctx context.Context, cdpScriptID string) error
} {
	out := make(map[string]interface {
		TargetID() string
		AddScriptToEvaluateOnNewDocument(ctx context.Context, source, sandbox string, runImmediately bool) (string, error)
		RemoveScriptToEvaluateOnNewDocument(ctx context.Context, cdpScriptID string) error
	})
	for _, c := range sess.Contexts.All() {
		if c.CdpSessionID == "" {
			continue
		}
		if t, ok := sess.Targets.Target(c.CdpSessionID); ok {
			out[t.TargetID()] = t
		}
	}
	return out
}

func resolveRealm(sess *Session, target, realmID, sandbox string) (*bidi.Realm, error) {
	if realmID != "" {
		r, ok := sess.Realms.Get(realmID)
		if !ok {
			return nil, bidi.NoSuchNode("no such realm: %s", realmID)
		}
		return r, nil
	}
	filter := bidi.RealmFilter{BrowsingContextID: target, Sandbox: sandbox}
	r, ok := sess.Realms.FindRealm(filter)
	if !ok {
		return nil, bidi.NoSuchFrame("no realm for context: %s", target)
	}
	return r, nil
}

func handleCallFunction(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		FunctionDeclaration string `json:"functionDeclaration"`
		AwaitPromise        bool   `json:"awaitPromise"`
		Target              struct {
			Context string `json:"context"`
			Realm   string `json:"realm"`
			Sandbox string `json:"sandbox"`
		} `json:"target"`
		Arguments []json.RawMessage `json:"arguments"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	realm, err := resolveRealm(sess, p.Target.Context, p.Target.Realm, p.Target.Sandbox)
	if err != nil {
		return nil, err
	}
	return evaluateInRealm(ctx, sess, realm, p.FunctionDeclaration, p.AwaitPromise, true)
}

func handleEvaluate(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Expression   string `json:"expression"`
		AwaitPromise bool   `json:"awaitPromise"`
		Target       struct {
			Context string `json:"context"`
			Realm   string `json:"realm"`
			Sandbox string `json:"sandbox"`
		} `json:"target"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	realm, err := resolveRealm(sess, p.Target.Context, p.Target.Realm, p.Target.Sandbox)
	if err != nil {
		return nil, err
	}
	return evaluateInRealm(ctx, sess, realm, p.Expression, p.AwaitPromise, false)
}

func evaluateInRealm(ctx context.Context, sess *Session, realm *bidi.Realm, source string, awaitPromise, isFunction bool) (any, error) {
	method := "Runtime.evaluate"
	cdpParams := map[string]any{
		"expression":      source,
		"contextId":       realm.ExecutionContextID,
		"awaitPromise":    awaitPromise,
		"returnByValue":   false,
		"generatePreview": true,
	}
	if isFunction {
		method = "Runtime.callFunctionOn"
		cdpParams = map[string]any{
			"functionDeclaration": source,
			"executionContextId":  realm.ExecutionContextID,
			"awaitPromise":        awaitPromise,
			"returnByValue":       false,
			"generatePreview":     true,
		}
	}

	raw, err := sess.CDP.SendToSession(ctx, realm.CdpSessionID, method, cdpParams)
	if err != nil {
		return nil, bidi.Unknown("%v", err)
	}

	var result struct {
		Result           json.RawMessage `json:"result"`
		ExceptionDetails json.RawMessage `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, bidi.Unknown("%v", err)
	}
	if result.ExceptionDetails != nil {
		return map[string]any{
			"type":             "exception",
			"exceptionDetails": result.ExceptionDetails,
			"realm":            realm.ID,
		}, nil
	}
	return map[string]any{
		"type":   "success",
		"result": result.Result,
		"realm":  realm.ID,
	}, nil
}

func handleDisown(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Handles []string `json:"handles"`
		Target  struct {
			Realm string `json:"realm"`
		} `json:"target"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	realm, ok := sess.Realms.Get(p.Target.Realm)
	if !ok {
		return nil, bidi.NoSuchNode("no such realm: %s", p.Target.Realm)
	}
	for _, h := range p.Handles {
		_, _ = sess.CDP.SendToSession(ctx, realm.CdpSessionID, "Runtime.releaseObject", map[string]any{"objectId": h})
	}
	return map[string]any{}, nil
}

func handleGetRealms(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Context string `json:"context"`
		Type    string `json:"type"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	var realms []*bidi.Realm
	if p.Context != "" {
		realms = sess.Realms.FindRealms(bidi.RealmFilter{BrowsingContextID: p.Context, Type: bidi.RealmType(p.Type)})
	} else {
		for _, c := range sess.Contexts.All() {
			realms = append(realms, sess.Realms.ByContext(c.ID)...)
		}
	}

	out := make([]map[string]any, 0, len(realms))
	for _, r := range realms {
		out = append(out, map[string]any{
			"realm":   r.ID,
			"origin":  r.Origin,
			"type":    r.Type,
			"context": r.BrowsingContextID,
		})
	}
	return map[string]any{"realms": out}, nil
}

// startChannelPoll implements §4.10's channel-argument host side: a
// Runtime.callFunctionOn(awaitPromise=true) poll loop against the
// channel's getMessage queue function, emitting script.message per
// drained value. The first realm found in the script's sandbox becomes
// the owning realm; the loop terminates once that realm is gone.
func startChannelPoll(sess *Session, ps *bidi.PreloadScript, ch bidi.PreloadScriptChannel) {
	go func() {
		var ownerID string
		for {
			time.Sleep(50 * time.Millisecond)

			var target *bidi.Realm
			if ownerID != "" {
				r, ok := sess.Realms.Get(ownerID)
				if !ok {
					return
				}
				target = r
			} else {
				for _, r := range sess.Realms.FindRealms(bidi.RealmFilter{Sandbox: ps.Sandbox}) {
					target = r
					break
				}
				if target == nil {
					continue
				}
				ownerID = target.ID
			}

			raw, err := sess.CDP.SendToSession(context.Background(), target.CdpSessionID, "Runtime.callFunctionOn", map[string]any{
				"functionDeclaration": "function(){ return this['" + ch.Channel + "'].getMessage(); }",
				"executionContextId":  target.ExecutionContextID,
				"awaitPromise":        true,
				"returnByValue":       true,
			})
			if err != nil {
				if bidi.AsError(err).Code == bidi.CodeNoSuchNode {
					return
				}
				continue
			}

			var result struct {
				Result struct {
					Value json.RawMessage `json:"value"`
				} `json:"result"`
			}
			if err := json.Unmarshal(raw, &result); err != nil || result.Result.Value == nil {
				continue
			}

			sess.Events.RegisterEvent("script.message", target.BrowsingContextID, map[string]any{
				"channel": ch.Channel,
				"data":    result.Result.Value,
				"source": map[string]any{
					"realm":   target.ID,
					"context": target.BrowsingContextID,
				},
			})
		}
	}()
}
