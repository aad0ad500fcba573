package network

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// Request is the per-CDP-request-id state machine that assembles BiDi
// network events from independently-arriving CDP event streams (C8).
type Request struct {
	mu sync.Mutex

	id            string
	sessionID     string
	contextID     string
	redirectCount int

	client  cdpSender
	events  *bidi.EventManager
	storage *Storage

	info      *requestWillBeSentParams
	extraInfo *requestWillBeSentExtraInfoParams
	paused    *fetchRequestPausedParams // request-phase pause

	respInfo      *responseReceivedParams
	respExtraInfo *responseReceivedExtraInfoParams
	respPaused    *fetchRequestPausedParams // response-phase pause
	hasExtraInfo  bool

	auth *fetchAuthRequiredParams

	fetchID         string
	interceptPhase  bidi.InterceptPhase
	servedFromCache bool
	failed          bool
	flushed         bool // responseCompleted already emitted, request is logically done

	requestOverrides  RequestOverrides
	responseOverrides ResponseOverrides

	emittedEvents map[string]struct{}

	waitNextPhase chan struct{}
}

// NewRequest creates a fresh, empty state machine for a CDP request id.
func NewRequest(id, sessionID, contextID string, client cdpSender, events *bidi.EventManager, storage *Storage) *Request {
	return &Request{
		id:            id,
		sessionID:     sessionID,
		contextID:     contextID,
		client:        client,
		events:        events,
		storage:       storage,
		emittedEvents: make(map[string]struct{}),
		waitNextPhase: make(chan struct{}),
	}
}

// SessionID returns the CDP session this request belongs to.
func (r *Request) SessionID() string { return r.sessionID }

// RedirectCount returns the number of redirects this request id has
// gone through so far.
func (r *Request) RedirectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirectCount
}

// SetInterceptPhase records which Fetch interception phase a pause
// belongs to, used by the Manager when dispatching Fetch.requestPaused.
func (r *Request) SetInterceptPhase(phase bidi.InterceptPhase) {
	r.mu.Lock()
	r.interceptPhase = phase
	r.mu.Unlock()
}

// FetchID returns the Fetch domain id recorded for this request, or ""
// if no Fetch.requestPaused/authRequired has arrived yet.
func (r *Request) FetchID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchID
}

func (r *Request) url() string {
	if r.info != nil {
		return r.info.Request.URL
	}
	if r.paused != nil {
		return r.paused.Request.URL
	}
	if r.respPaused != nil {
		return r.respPaused.Request.URL
	}
	return ""
}

func isDataURL(url string) bool { return strings.HasPrefix(url, "data:") }
func isFaviconURL(url string) bool {
	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, "/favicon.ico")
}

// --- CDP input handlers -----------------------------------------------

// HandleRequestWillBeSent processes Network.requestWillBeSent. When raw
// carries a redirectResponse, the caller (Manager) is responsible for
// flushing this instance to responseCompleted and recreating a fresh
// Request with redirectCount+1 under the same id — this method only
// records the redirect response and reports it via the returned bool.
func (r *Request) HandleRequestWillBeSent(ctx context.Context, raw json.RawMessage) (isRedirect bool, err error) {
	var p requestWillBeSentParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return false, err
	}

	r.mu.Lock()
	r.info = &p
	isRedirect = len(p.RedirectResponse) > 0
	r.mu.Unlock()

	if isRedirect {
		return true, nil
	}
	return false, r.evaluate(ctx)
}

// HandleRequestWillBeSentExtraInfo processes
// Network.requestWillBeSentExtraInfo.
func (r *Request) HandleRequestWillBeSentExtraInfo(ctx context.Context, raw json.RawMessage) error {
	var p requestWillBeSentExtraInfoParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.mu.Lock()
	r.extraInfo = &p
	r.mu.Unlock()
	return r.evaluate(ctx)
}

// HandleResponseReceived processes Network.responseReceived.
func (r *Request) HandleResponseReceived(ctx context.Context, raw json.RawMessage) error {
	var p responseReceivedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.mu.Lock()
	r.respInfo = &p
	r.hasExtraInfo = p.HasExtraInfo
	r.mu.Unlock()
	return r.evaluate(ctx)
}

// HandleResponseReceivedExtraInfo processes
// Network.responseReceivedExtraInfo. A 30x response whose `location`
// header equals this request's URL is discarded — it belongs to the
// redirect, not to this (about to be recreated) request.
func (r *Request) HandleResponseReceivedExtraInfo(ctx context.Context, raw json.RawMessage) error {
	var p responseReceivedExtraInfoParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}

	r.mu.Lock()
	if p.StatusCode >= 300 && p.StatusCode < 400 {
		if loc, ok := headerLookup(p.Headers, "location"); ok && loc == r.url() {
			r.mu.Unlock()
			return nil
		}
	}
	r.respExtraInfo = &p
	r.mu.Unlock()
	return r.evaluate(ctx)
}

func headerLookup(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// HandleServedFromCache processes Network.requestServedFromCache.
func (r *Request) HandleServedFromCache(ctx context.Context) error {
	r.mu.Lock()
	r.servedFromCache = true
	r.mu.Unlock()
	return r.evaluate(ctx)
}

// HandleLoadingFailed processes Network.loadingFailed: flushes any
// pending responseCompleted synthetically, then emits fetchError.
func (r *Request) HandleLoadingFailed(ctx context.Context, raw json.RawMessage) error {
	var p loadingFailedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}

	r.mu.Lock()
	r.failed = true
	r.mu.Unlock()

	if err := r.evaluate(ctx); err != nil {
		return err
	}

	r.emit("network.fetchError", map[string]any{
		"context":   r.contextID,
		"requestId": r.id,
		"errorText": p.ErrorText,
	}, false)

	r.storage.Delete(r.id)
	r.advancePhase()
	return nil
}

// HandleRequestPaused processes Fetch.requestPaused for this request,
// request-phase or response-phase depending on p.IsResponsePhase().
func (r *Request) HandleRequestPaused(ctx context.Context, p fetchRequestPausedParams) error {
	r.mu.Lock()
	r.fetchID = p.RequestID
	if p.IsResponsePhase() {
		r.respPaused = &p
	} else {
		r.paused = &p
	}
	r.mu.Unlock()
	return r.evaluate(ctx)
}

// HandleAuthRequired processes Fetch.authRequired.
func (r *Request) HandleAuthRequired(ctx context.Context, p fetchAuthRequiredParams) error {
	r.mu.Lock()
	r.fetchID = p.RequestID
	r.auth = &p
	r.interceptPhase = bidi.PhaseAuthRequired
	r.mu.Unlock()

	r.emit("network.authRequired", map[string]any{
		"context":       r.contextID,
		"requestId":     r.id,
		"authChallenge": p.AuthChallenge,
	}, false) // authRequired may repeat — not gated by emittedEvents
	return nil
}

// --- emission readiness (§4.8) -----------------------------------------

func (r *Request) requestInterceptionExpected() bool {
	if isDataURL(r.url()) || r.servedFromCache {
		return false
	}
	return len(r.storage.GetInterceptsForPhase(r.url(), bidi.PhaseBeforeRequestSent)) > 0
}

func (r *Request) requestExtraInfoCompleted() bool {
	return r.flushed || r.failed ||
		isDataURL(r.url()) ||
		r.extraInfo != nil ||
		r.servedFromCache ||
		(r.respInfo != nil && !r.hasExtraInfo)
}

func (r *Request) requestInterceptionCompleted() bool {
	return !r.requestInterceptionExpected() || r.paused != nil
}

func (r *Request) responseInterceptionExpected() bool {
	if isDataURL(r.url()) || r.servedFromCache {
		return false
	}
	return len(r.storage.GetInterceptsForPhase(r.url(), bidi.PhaseResponseStarted)) > 0
}

func (r *Request) responseExtraInfoCompleted() bool {
	return r.flushed || r.failed ||
		isDataURL(r.url()) ||
		r.respExtraInfo != nil ||
		r.servedFromCache ||
		(r.respInfo != nil && !r.hasExtraInfo)
}

func (r *Request) responseInterceptionCompleted() bool {
	return !r.responseInterceptionExpected() || r.respPaused != nil
}

// evaluate re-checks emission readiness after every input and fires any
// now-ready event, exactly once per event kind (except authRequired,
// handled separately since it is driven off a distinct CDP event).
func (r *Request) evaluate(ctx context.Context) error {
	r.mu.Lock()

	url := r.url()
	suppressed := isFaviconURL(url)

	canBeforeRequestSent := r.info != nil &&
		!r.has("beforeRequestSent") &&
		(condIf(r.requestInterceptionExpected(), r.requestInterceptionCompleted(), r.requestExtraInfoCompleted()))

	canResponseStarted := !r.has("responseStarted") &&
		(r.respInfo != nil || (r.responseInterceptionExpected() && r.respPaused != nil))

	canResponseCompleted := !r.has("responseCompleted") &&
		r.respInfo != nil && r.responseExtraInfoCompleted() && r.responseInterceptionCompleted()

	r.mu.Unlock()

	if canBeforeRequestSent {
		r.emitBeforeRequestSent(suppressed)
	}
	// responseStarted must follow beforeRequestSent (monotonicity, §5);
	// re-check after marking beforeRequestSent emitted.
	r.mu.Lock()
	canResponseStarted = canResponseStarted && r.has("beforeRequestSent")
	r.mu.Unlock()
	if canResponseStarted {
		r.emitResponseStarted(suppressed)
	}
	r.mu.Lock()
	canResponseCompleted = canResponseCompleted && r.has("responseStarted")
	r.mu.Unlock()
	if canResponseCompleted {
		r.emitResponseCompleted(suppressed)
	}
	return nil
}

func condIf(expected, ifTrue, ifFalse bool) bool {
	if expected {
		return ifTrue
	}
	return ifFalse
}

func (r *Request) has(event string) bool {
	_, ok := r.emittedEvents[event]
	return ok
}

func (r *Request) emitBeforeRequestSent(suppress bool) {
	r.mu.Lock()
	r.emittedEvents["beforeRequestSent"] = struct{}{}
	info := r.info
	isBlocked := r.paused != nil && r.requestInterceptionExpected()
	r.mu.Unlock()

	r.emit("network.beforeRequestSent", map[string]any{
		"context":       r.contextID,
		"requestId":     r.id,
		"redirectCount": r.redirectCount,
		"request":       info,
		"isBlocked":     isBlocked,
	}, suppress)
	r.advancePhase()
}

func (r *Request) emitResponseStarted(suppress bool) {
	r.mu.Lock()
	r.emittedEvents["responseStarted"] = struct{}{}
	respInfo := r.respInfo
	r.mu.Unlock()

	r.emit("network.responseStarted", map[string]any{
		"context":       r.contextID,
		"requestId":     r.id,
		"redirectCount": r.redirectCount,
		"response":      respInfo,
	}, suppress)
	r.advancePhase()
}

func (r *Request) emitResponseCompleted(suppress bool) {
	r.mu.Lock()
	r.emittedEvents["responseCompleted"] = struct{}{}
	respInfo := r.respInfo
	r.mu.Unlock()

	r.emit("network.responseCompleted", map[string]any{
		"context":       r.contextID,
		"requestId":     r.id,
		"redirectCount": r.redirectCount,
		"response":      respInfo,
	}, suppress)
	r.storage.Delete(r.id)
	r.advancePhase()
}

// FlushAsRedirected forces an immediate responseCompleted carrying the
// redirecting response itself, for the redirect handling described in
// §3/§4.8. The caller is the Manager, which then recreates a fresh
// Request under the same id with redirectCount+1.
//
// The real CDP sequence never fires Network.responseReceived for the
// redirecting request — only requestWillBeSent carries its
// redirectResponse — so this unmarshals that redirectResponse into the
// same shape responseReceived would have produced before flushing,
// and synthesizes responseStarted first if it hasn't fired yet, to
// preserve the monotonicity invariant that responseCompleted is always
// preceded by both beforeRequestSent and responseStarted.
func (r *Request) FlushAsRedirected() {
	r.mu.Lock()
	if r.info != nil && len(r.info.RedirectResponse) > 0 && r.respInfo == nil {
		var resp cdpHTTPResponse
		if err := json.Unmarshal(r.info.RedirectResponse, &resp); err == nil {
			r.respInfo = &responseReceivedParams{RequestID: r.id, Response: resp}
		}
	}
	r.hasExtraInfo = false
	r.flushed = true
	suppress := isFaviconURL(r.url())
	needsBeforeRequestSent := !r.has("beforeRequestSent")
	needsResponseStarted := !r.has("responseStarted")
	needsResponseCompleted := !r.has("responseCompleted")
	r.mu.Unlock()

	if needsBeforeRequestSent {
		r.emitBeforeRequestSent(suppress)
	}
	if needsResponseStarted {
		r.emitResponseStarted(suppress)
	}
	if needsResponseCompleted {
		r.emitResponseCompleted(suppress)
	}
}

// emit delivers a BiDi event through the Event Manager unless suppress
// is set (favicon suppression, §4.8).
func (r *Request) emit(eventName string, payload any, suppress bool) {
	if suppress {
		return
	}
	r.events.RegisterEvent(eventName, r.contextID, payload)
}

func (r *Request) advancePhase() {
	r.mu.Lock()
	old := r.waitNextPhase
	r.waitNextPhase = make(chan struct{})
	r.mu.Unlock()
	close(old)
}

// WaitNextPhase returns a channel closed on the next successful
// emission, letting the interception API coordinate with pending CDP
// phases (§4.8 phase transition signal).
func (r *Request) WaitNextPhase() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitNextPhase
}
