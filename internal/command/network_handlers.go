package command

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/bidi"
	"github.com/grantcarthew/bidid/internal/bidi/network"
)

func registerNetworkHandlers(p *Processor) {
	p.Register("network.addIntercept", handleAddIntercept)
	p.Register("network.removeIntercept", handleRemoveIntercept)
	p.Register("network.continueRequest", handleContinueRequest)
	p.Register("network.continueResponse", handleContinueResponse)
	p.Register("network.continueWithAuth", handleContinueWithAuth)
	p.Register("network.failRequest", handleFailRequest)
	p.Register("network.provideResponse", handleProvideResponse)
}

func handleAddIntercept(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Phases      []string `json:"phases"`
		URLPatterns []struct {
			Pattern string `json:"pattern"`
		} `json:"urlPatterns"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Phases) == 0 {
		return nil, bidi.InvalidArgument("addIntercept requires at least one phase")
	}

	phases := make([]bidi.InterceptPhase, 0, len(p.Phases))
	for _, ph := range p.Phases {
		phases = append(phases, bidi.InterceptPhase(ph))
	}
	patterns := make([]string, 0, len(p.URLPatterns))
	for _, up := range p.URLPatterns {
		patterns = append(patterns, up.Pattern)
	}

	ic := sess.NetworkStore.AddIntercept(patterns, phases)
	return map[string]any{"intercept": ic.ID}, nil
}

func handleRemoveIntercept(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Intercept string `json:"intercept"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if err := sess.NetworkStore.RemoveIntercept(p.Intercept); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type headerParam struct {
	Name  string `json:"name"`
	Value struct {
		Value string `json:"value"`
	} `json:"value"`
}

type bodyParam struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func toHeaderOverrides(hs []headerParam) []network.HeaderOverride {
	out := make([]network.HeaderOverride, 0, len(hs))
	for _, h := range hs {
		out = append(out, network.HeaderOverride{Name: h.Name, Value: h.Value.Value})
	}
	return out
}

func toBodyOverride(b *bodyParam) *network.BodyOverride {
	if b == nil {
		return nil
	}
	return &network.BodyOverride{Type: b.Type, Value: b.Value}
}

func handleContinueRequest(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Request string        `json:"request"`
		URL     string        `json:"url"`
		Method  string        `json:"method"`
		Headers []headerParam `json:"headers"`
		Body    *bodyParam    `json:"body"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	r, err := sess.requestByID(p.Request)
	if err != nil {
		return nil, err
	}
	overrides := network.RequestOverrides{
		URL:     p.URL,
		Method:  p.Method,
		Headers: toHeaderOverrides(p.Headers),
		Body:    toBodyOverride(p.Body),
	}
	if err := r.ContinueRequest(ctx, overrides); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func handleContinueResponse(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Request    string        `json:"request"`
		StatusCode int           `json:"statusCode"`
		Headers    []headerParam `json:"headers"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	r, err := sess.requestByID(p.Request)
	if err != nil {
		return nil, err
	}
	overrides := network.ResponseOverrides{
		StatusCode: p.StatusCode,
		Headers:    toHeaderOverrides(p.Headers),
	}
	if err := r.ContinueResponse(ctx, overrides); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func handleContinueWithAuth(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Request     string `json:"request"`
		Action      string `json:"action"`
		Credentials *struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"credentials"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	r, err := sess.requestByID(p.Request)
	if err != nil {
		return nil, err
	}

	var username, password string
	if p.Credentials != nil {
		username, password = p.Credentials.Username, p.Credentials.Password
	}
	if err := r.ContinueWithAuth(ctx, network.AuthAction(p.Action), username, password); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func handleFailRequest(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Request string `json:"request"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	r, err := sess.requestByID(p.Request)
	if err != nil {
		return nil, err
	}
	if err := r.FailRequest(ctx, "Failed"); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func handleProvideResponse(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
	var p struct {
		Request    string        `json:"request"`
		StatusCode int           `json:"statusCode"`
		Headers    []headerParam `json:"headers"`
		Body       *bodyParam    `json:"body"`
	}
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	r, err := sess.requestByID(p.Request)
	if err != nil {
		return nil, err
	}
	responseOverrides := network.ResponseOverrides{
		StatusCode: p.StatusCode,
		Headers:    toHeaderOverrides(p.Headers),
		Body:       toBodyOverride(p.Body),
	}
	if err := r.ProvideResponse(ctx, responseOverrides, network.RequestOverrides{}); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}
