package network

import (
	"context"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// errNoInterception is returned by every interception method when
// fetchId has not been set (§4.8: "unknown error: Network Interception
// not set-up").
func errNoInterception() error {
	return bidi.Unknown("Network Interception not set-up")
}

// ContinueRequest implements C8's continueRequest: requires fetchId,
// sends Fetch.continueRequest with any accumulated overrides, clears
// interceptPhase.
func (r *Request) ContinueRequest(ctx context.Context, overrides RequestOverrides) error {
	r.mu.Lock()
	fetchID := r.fetchID
	r.mu.Unlock()
	if fetchID == "" {
		return errNoInterception()
	}

	params := map[string]any{"requestId": fetchID}
	if overrides.URL != "" {
		params["url"] = overrides.URL
	}
	if overrides.Method != "" {
		params["method"] = overrides.Method
	}
	if len(overrides.Headers) > 0 {
		params["headers"] = headerEntries(overrides.Headers)
	}
	if overrides.Body != nil {
		params["postData"] = EncodeBodyForCDP(overrides.Body)
	}

	if _, err := r.client.SendToSession(ctx, r.sessionID, "Fetch.continueRequest", params); err != nil {
		return err
	}

	r.mu.Lock()
	r.interceptPhase = ""
	r.requestOverrides = overrides
	r.mu.Unlock()
	return nil
}

// ContinueResponse implements C8's continueResponse: dispatches to
// Fetch.continueWithAuth when in authRequired, or Fetch.continueResponse
// when in responseStarted.
func (r *Request) ContinueResponse(ctx context.Context, overrides ResponseOverrides) error {
	r.mu.Lock()
	fetchID := r.fetchID
	phase := r.interceptPhase
	r.mu.Unlock()
	if fetchID == "" {
		return errNoInterception()
	}

	if phase == bidi.PhaseAuthRequired {
		return r.ContinueWithAuth(ctx, AuthActionDefault, "", "")
	}

	params := map[string]any{"requestId": fetchID}
	if overrides.StatusCode != 0 {
		params["responseCode"] = overrides.StatusCode
	}
	if len(overrides.Headers) > 0 {
		params["responseHeaders"] = headerEntries(overrides.Headers)
	}
	if _, err := r.client.SendToSession(ctx, r.sessionID, "Fetch.continueResponse", params); err != nil {
		return err
	}

	r.mu.Lock()
	r.interceptPhase = ""
	r.responseOverrides = overrides
	r.mu.Unlock()
	return nil
}

// AuthAction is a BiDi network.AuthCredentials action.
type AuthAction string

const (
	AuthActionDefault            AuthAction = "default"
	AuthActionCancel             AuthAction = "cancel"
	AuthActionProvideCredentials AuthAction = "provideCredentials"
)

// ContinueWithAuth implements C8's continueWithAuth, translating the
// BiDi action into the matching Fetch.continueWithAuth response.
func (r *Request) ContinueWithAuth(ctx context.Context, action AuthAction, username, password string) error {
	r.mu.Lock()
	fetchID := r.fetchID
	r.mu.Unlock()
	if fetchID == "" {
		return errNoInterception()
	}

	authResponse := map[string]any{"response": cdpAuthResponse(action)}
	if action == AuthActionProvideCredentials {
		authResponse["username"] = username
		authResponse["password"] = password
	}

	if _, err := r.client.SendToSession(ctx, r.sessionID, "Fetch.continueWithAuth", map[string]any{
		"requestId":             fetchID,
		"authChallengeResponse": authResponse,
	}); err != nil {
		return err
	}

	r.mu.Lock()
	r.interceptPhase = ""
	r.mu.Unlock()
	return nil
}

func cdpAuthResponse(action AuthAction) string {
	switch action {
	case AuthActionCancel:
		return "CancelAuth"
	case AuthActionProvideCredentials:
		return "ProvideCredentials"
	default:
		return "Default"
	}
}

// ProvideResponse implements C8's provideResponse: delegates to
// continueWithAuth when in authRequired, to ContinueRequest when no
// body/headers are overridden, otherwise issues Fetch.fulfillRequest.
func (r *Request) ProvideResponse(ctx context.Context, overrides ResponseOverrides, requestOverrides RequestOverrides) error {
	r.mu.Lock()
	fetchID := r.fetchID
	phase := r.interceptPhase
	r.mu.Unlock()
	if fetchID == "" {
		return errNoInterception()
	}

	if phase == bidi.PhaseAuthRequired {
		return r.ContinueWithAuth(ctx, AuthActionProvideCredentials, "", "")
	}

	if overrides.Body == nil && len(overrides.Headers) == 0 {
		return r.ContinueRequest(ctx, requestOverrides)
	}

	statusCode := overrides.StatusCode
	if statusCode == 0 {
		statusCode = 200
	}
	params := map[string]any{
		"requestId":       fetchID,
		"responseCode":    statusCode,
		"responseHeaders": headerEntries(overrides.Headers),
	}
	if overrides.Body != nil {
		params["body"] = EncodeBodyForCDP(overrides.Body)
	}

	if _, err := r.client.SendToSession(ctx, r.sessionID, "Fetch.fulfillRequest", params); err != nil {
		return err
	}

	r.mu.Lock()
	r.interceptPhase = ""
	r.responseOverrides = overrides
	r.mu.Unlock()
	return nil
}

// FailRequest implements C8's failRequest.
func (r *Request) FailRequest(ctx context.Context, errorReason string) error {
	r.mu.Lock()
	fetchID := r.fetchID
	r.mu.Unlock()
	if fetchID == "" {
		return errNoInterception()
	}

	if _, err := r.client.SendToSession(ctx, r.sessionID, "Fetch.failRequest", map[string]any{
		"requestId":   fetchID,
		"errorReason": errorReason,
	}); err != nil {
		return err
	}

	r.mu.Lock()
	r.interceptPhase = ""
	r.mu.Unlock()
	return nil
}

func headerEntries(headers []HeaderOverride) []map[string]string {
	out := make([]map[string]string, 0, len(headers))
	for _, h := range headers {
		out = append(out, map[string]string{"name": h.Name, "value": h.Value})
	}
	return out
}
