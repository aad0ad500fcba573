package network

import "encoding/json"

// The structs below extract only the fields the state machine needs
// from each CDP event; the rest of each payload is preserved verbatim
// (as json.RawMessage, stored on Request) for the BiDi events built
// from it, rather than being redeclared field-by-field — the same
// duck-typed, forward-compatible approach internal/cdp takes with
// command results.

type cdpHTTPRequest struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	HasPostData bool              `json:"hasPostData"`
}

type requestWillBeSentParams struct {
	RequestID        string          `json:"requestId"`
	Request          cdpHTTPRequest  `json:"request"`
	RedirectResponse json.RawMessage `json:"redirectResponse,omitempty"`
	Type             string          `json:"type"`
}

type requestWillBeSentExtraInfoParams struct {
	RequestID string            `json:"requestId"`
	Headers   map[string]string `json:"headers"`
}

type cdpHTTPResponse struct {
	URL           string            `json:"url"`
	Status        int               `json:"status"`
	StatusText    string            `json:"statusText"`
	Headers       map[string]string `json:"headers"`
	FromDiskCache bool              `json:"fromDiskCache"`
}

type responseReceivedParams struct {
	RequestID    string          `json:"requestId"`
	Response     cdpHTTPResponse `json:"response"`
	HasExtraInfo bool            `json:"hasExtraInfo"`
}

type responseReceivedExtraInfoParams struct {
	RequestID  string            `json:"requestId"`
	Headers    map[string]string `json:"headers"`
	StatusCode int               `json:"statusCode"`
}

type requestServedFromCacheParams struct {
	RequestID string `json:"requestId"`
}

type loadingFailedParams struct {
	RequestID string `json:"requestId"`
	ErrorText string `json:"errorText"`
	Canceled  bool   `json:"canceled"`
	Type      string `json:"type"`
}

type fetchHeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fetchRequestPausedParams struct {
	RequestID          string             `json:"requestId"` // Fetch domain's id, used as fetchId
	NetworkID          string             `json:"networkId"`
	Request            cdpHTTPRequest     `json:"request"`
	ResourceType       string             `json:"resourceType"`
	ResponseStatusCode int                `json:"responseStatusCode"`
	ResponseHeaders    []fetchHeaderEntry `json:"responseHeaders"`
}

// IsResponsePhase reports whether this Fetch.requestPaused carries
// response fields (§4.8: "Fetch.requestPaused (with response fields) →
// sets response.paused").
func (p fetchRequestPausedParams) IsResponsePhase() bool {
	return p.ResponseStatusCode != 0 || p.ResponseHeaders != nil
}

// CorrelationID is the id used to look up the NetworkRequest this pause
// belongs to: the Network domain's requestId when available, falling
// back to Fetch's own id for a Fetch-only (no Network domain) setup.
func (p fetchRequestPausedParams) CorrelationID() string {
	if p.NetworkID != "" {
		return p.NetworkID
	}
	return p.RequestID
}

type fetchAuthRequiredParams struct {
	RequestID     string          `json:"requestId"` // fetchId
	NetworkID     string          `json:"networkId"`
	Request       cdpHTTPRequest  `json:"request"`
	AuthChallenge json.RawMessage `json:"authChallenge"`
}

func (p fetchAuthRequiredParams) CorrelationID() string {
	if p.NetworkID != "" {
		return p.NetworkID
	}
	return p.RequestID
}
