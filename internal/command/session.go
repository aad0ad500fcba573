package command

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/grantcarthew/bidid/internal/bidi"
	"github.com/grantcarthew/bidid/internal/bidi/network"
	"github.com/grantcarthew/bidid/internal/browser"
	"github.com/grantcarthew/bidid/internal/cdp"
)

// Config is the explicit configuration record each Session is created
// with, replacing the dynamic capability objects a JS implementation
// would carry (§9 Design Notes: "Dynamic capability objects").
type Config struct {
	AcceptInsecureCerts     bool
	SharedIDWithFrame       bool
	UnhandledPromptBehavior string // "accept" | "dismiss" | "ignore"
	ChromeArgs              []string
	ChromeBinary            string
	Channel                 browser.Channel
	Headless                bool
	Verbose                 bool
}

// Session is the per-WebSocket-connection state a Session Manager (C14)
// creates and every domain processor (C12) operates against: its own
// browser instance, CDP client, and the full set of BiDi stores.
type Session struct {
	ID     string
	Config Config

	mu     sync.Mutex
	closed bool

	Browser *browser.Browser
	CDP     *cdp.Client

	Contexts      *bidi.BrowsingContextStore
	Realms        *bidi.RealmStore
	Subscriptions *bidi.SubscriptionManager
	Preload       *bidi.PreloadScriptStore
	NetworkStore  *network.Storage
	Events        *bidi.EventManager
	Targets       *bidi.TargetManager
}

// NewSession wires one browser instance's full BiDi stack together:
// Browsing Context Store, Realm Store, Subscription Manager, Preload
// Script Store, Network Storage, Event Manager and Target Manager, all
// bound to a freshly dialed CDP client.
func NewSession(ctx context.Context, id string, cfg Config, b *browser.Browser, client *cdp.Client, sink bidi.Sink) *Session {
	contexts := bidi.NewBrowsingContextStore()
	subs := bidi.NewSubscriptionManager(contexts)
	events := bidi.NewEventManager(subs, contexts, sink)
	realms := bidi.NewRealmStore()
	preload := bidi.NewPreloadScriptStore()
	netStorage := network.NewStorage()

	var targets *bidi.TargetManager
	networkFactory := func(t *bidi.CdpTarget) bidi.NetworkManager {
		return network.NewManager(t.SessionID(), t.TargetID(), client, events, netStorage)
	}
	targets = bidi.NewTargetManager(client, events, contexts, realms, preload, networkFactory)

	return &Session{
		ID:            id,
		Config:        cfg,
		Browser:       b,
		CDP:           client,
		Contexts:      contexts,
		Realms:        realms,
		Subscriptions: subs,
		Preload:       preload,
		NetworkStore:  netStorage,
		Events:        events,
		Targets:       targets,
	}
}

// Close tears down this session's browser instance and CDP connection.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.CDP != nil {
		_ = s.CDP.Close()
	}
	if s.Browser != nil {
		return s.Browser.Close()
	}
	return nil
}

// requestByID resolves a BiDi-visible network request id (the CDP
// request id, used verbatim as the BiDi handle per §3) to its live
// state machine.
func (s *Session) requestByID(id string) (*network.Request, error) {
	r, ok := s.NetworkStore.Get(id)
	if !ok {
		return nil, bidi.NoSuchFrame("no such request: %s", id)
	}
	return r, nil
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return bidi.InvalidArgument("%v", err)
	}
	return nil
}
