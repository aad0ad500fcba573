package network

import (
	"encoding/json"
	"testing"
)

func rawRequestWillBeSentRedirect(id, url string, redirectStatus int, redirectURL string) []byte {
	redirect, _ := json.Marshal(cdpHTTPResponse{URL: redirectURL, Status: redirectStatus, StatusText: "Found"})
	p := requestWillBeSentParams{
		RequestID:        id,
		Request:          cdpHTTPRequest{URL: url, Method: "GET"},
		RedirectResponse: redirect,
	}
	raw, _ := json.Marshal(p)
	return raw
}

// TestManager_Redirect_FlushesPriorRequestBeforeRecreating covers §8
// scenario 3: a request that redirects never gets a
// Network.responseReceived of its own — only the next hop's
// requestWillBeSent carries the redirecting response in
// redirectResponse. The original request id must still see
// beforeRequestSent, responseStarted and responseCompleted (in that
// order, with the redirect's actual status/URL), before a fresh
// Request takes over the same id with redirectCount 1.
func TestManager_Redirect_FlushesPriorRequestBeforeRecreating(t *testing.T) {
	em, get := newCapturingEventManager()
	storage := NewStorage()
	sender := &recordingSender{}
	mgr := NewManager("sess1", "ctx1", sender, em, storage)

	mgr.HandleCDPEvent("Network.requestWillBeSent", rawRequestWillBeSent("req1", "https://example.com/a"))
	mgr.HandleCDPEvent("Network.requestWillBeSentExtraInfo", func() []byte {
		raw, _ := json.Marshal(requestWillBeSentExtraInfoParams{RequestID: "req1", Headers: map[string]string{"X-Test": "1"}})
		return raw
	}())

	events := waitForEvents(get, 1)
	if len(events) != 1 || events[0] != "network.beforeRequestSent" {
		t.Fatalf("got %v, want [network.beforeRequestSent] before the redirect arrives", events)
	}

	mgr.HandleCDPEvent("Network.requestWillBeSent", rawRequestWillBeSentRedirect("req1", "https://example.com/b", 302, "https://example.com/b"))
	mgr.HandleCDPEvent("Network.requestWillBeSentExtraInfo", func() []byte {
		raw, _ := json.Marshal(requestWillBeSentExtraInfoParams{RequestID: "req1", Headers: map[string]string{"X-Test": "2"}})
		return raw
	}())

	events = waitForEvents(get, 4)
	want := []string{
		"network.beforeRequestSent",
		"network.responseStarted",
		"network.responseCompleted",
		"network.beforeRequestSent",
	}
	if len(events) != len(want) {
		t.Fatalf("got %v, want %v", events, want)
	}
	for i, w := range want {
		if events[i] != w {
			t.Errorf("event[%d] = %q, want %q", i, events[i], w)
		}
	}

	r, ok := storage.Get("req1")
	if !ok {
		t.Fatal("expected a fresh request to replace the redirected one")
	}
	if r.RedirectCount() != 1 {
		t.Errorf("got redirectCount %d, want 1", r.RedirectCount())
	}
}
