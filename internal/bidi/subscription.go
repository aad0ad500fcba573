package bidi

import (
	"sync"

	"github.com/google/uuid"
)

// moduleEvents unrolls a module name into its full set of atomic event
// names (§3: "module names expand... to the full set of atomic events in
// that module"). A name absent from this table is assumed to already be
// an atomic event name.
var moduleEvents = map[string][]string{
	"browsingContext": {
		"browsingContext.contextCreated",
		"browsingContext.contextDestroyed",
		"browsingContext.navigationStarted",
		"browsingContext.fragmentNavigated",
		"browsingContext.domContentLoaded",
		"browsingContext.load",
		"browsingContext.downloadWillBegin",
		"browsingContext.navigationAborted",
		"browsingContext.navigationFailed",
		"browsingContext.userPromptOpened",
		"browsingContext.userPromptClosed",
	},
	"network": {
		"network.beforeRequestSent",
		"network.responseStarted",
		"network.responseCompleted",
		"network.fetchError",
		"network.authRequired",
	},
	"script": {
		"script.message",
		"script.realmCreated",
		"script.realmDestroyed",
	},
	"log": {
		"log.entryAdded",
	},
}

// unrollEventNames expands every module name in names into its atomic
// events, and passes atomic event names through unchanged.
func unrollEventNames(names []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, n := range names {
		if atoms, ok := moduleEvents[n]; ok {
			for _, a := range atoms {
				out[a] = struct{}{}
			}
			continue
		}
		out[n] = struct{}{}
	}
	return out
}

// moduleOf returns the module name an atomic event belongs to (the
// portion before the first '.'), or the input unchanged if it has none.
func moduleOf(eventOrModule string) string {
	for i, r := range eventOrModule {
		if r == '.' {
			return eventOrModule[:i]
		}
	}
	return eventOrModule
}

// topLevelResolver resolves a context id to its top-level ancestor id.
// Implemented by the Browsing Context Store (C5); kept as an interface
// here so the Subscription Manager has no import-time dependency on it.
type topLevelResolver interface {
	FindTopLevelContextID(contextID string) (string, error)
}

// SubscriptionManager maps (event name, top-level context, channel) to
// subscribers (C3).
type SubscriptionManager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	contexts      topLevelResolver
}

// NewSubscriptionManager creates a Subscription Manager that resolves
// context scoping through contexts.
func NewSubscriptionManager(contexts topLevelResolver) *SubscriptionManager {
	return &SubscriptionManager{
		subscriptions: make(map[string]*Subscription),
		contexts:      contexts,
	}
}

// Subscribe unrolls eventNames, resolves each of contextIDs to its
// top-level ancestor, and records one new subscription. An empty
// contextIDs means a global subscription.
func (m *SubscriptionManager) Subscribe(eventNames, contextIDs []string, channel string) (*Subscription, error) {
	events := unrollEventNames(eventNames)
	if len(events) == 0 {
		return nil, InvalidArgument("subscribe requires at least one event name")
	}

	topLevels := make(map[string]struct{}, len(contextIDs))
	for _, id := range contextIDs {
		top, err := m.contexts.FindTopLevelContextID(id)
		if err != nil {
			return nil, NoSuchFrame("no such frame: %s", id)
		}
		topLevels[top] = struct{}{}
	}

	sub := &Subscription{
		ID:               uuid.NewString(),
		TopLevelContexts: topLevels,
		EventNames:       events,
		Channel:          channel,
	}

	m.mu.Lock()
	m.subscriptions[sub.ID] = sub
	m.mu.Unlock()

	return sub, nil
}

// Unsubscribe performs the attribute-based unsubscribe described in §4.3:
// it matches existing subscriptions whose channel matches and whose
// event/context sets intersect the request, removes the matched
// attributes, and splits any partially-matched subscription into
// per-event remainders. It fails with invalid argument, leaving the
// store unchanged, if any requested event or context never matched.
func (m *SubscriptionManager) Unsubscribe(eventNames, contextIDs []string, channel string) error {
	wantEvents := unrollEventNames(eventNames)
	if len(wantEvents) == 0 {
		return InvalidArgument("unsubscribe requires at least one event name")
	}

	wantTopLevels := make(map[string]struct{}, len(contextIDs))
	for _, id := range contextIDs {
		top, err := m.contexts.FindTopLevelContextID(id)
		if err != nil {
			return NoSuchFrame("no such frame: %s", id)
		}
		wantTopLevels[top] = struct{}{}
	}
	global := len(wantTopLevels) == 0

	m.mu.Lock()
	defer m.mu.Unlock()

	matchedEvents := make(map[string]struct{})
	matchedTopLevels := make(map[string]struct{})

	next := make(map[string]*Subscription, len(m.subscriptions))
	for id, sub := range m.subscriptions {
		if sub.Channel != channel {
			next[id] = sub
			continue
		}

		matchingEvents := intersectKeys(sub.EventNames, wantEvents)
		if len(matchingEvents) == 0 {
			next[id] = sub
			continue
		}

		if global {
			// Global unsubscribe only ever targets global subscriptions;
			// a scoped subscription is untouched by it.
			if !sub.IsGlobal() {
				next[id] = sub
				continue
			}
			for e := range matchingEvents {
				matchedEvents[e] = struct{}{}
			}
			if remaining := subtractKeys(sub.EventNames, matchingEvents); len(remaining) > 0 {
				next[id] = &Subscription{
					ID:               sub.ID,
					TopLevelContexts: sub.TopLevelContexts,
					EventNames:       remaining,
					Channel:          sub.Channel,
				}
			}
			continue
		}

		if sub.IsGlobal() {
			// A scoped unsubscribe never matches a global subscription.
			next[id] = sub
			continue
		}

		matchingTopLevels := intersectKeys(sub.TopLevelContexts, wantTopLevels)
		if len(matchingTopLevels) == 0 {
			next[id] = sub
			continue
		}
		for t := range matchingTopLevels {
			matchedTopLevels[t] = struct{}{}
		}
		for e := range matchingEvents {
			matchedEvents[e] = struct{}{}
		}

		// Split: the matched (event, top-level) pairs are removed from
		// sub; everything else survives as one subscription per
		// remaining event, carrying the untouched top-levels.
		remainingTopLevels := subtractKeys(sub.TopLevelContexts, matchingTopLevels)
		remainingEvents := subtractKeys(sub.EventNames, matchingEvents)

		if len(remainingEvents) > 0 && len(sub.TopLevelContexts) > 0 {
			// Events not targeted by this unsubscribe keep every
			// original top-level, including the ones just removed
			// from the targeted events.
			next[id] = &Subscription{
				ID:               sub.ID,
				TopLevelContexts: cloneKeys(sub.TopLevelContexts),
				EventNames:       remainingEvents,
				Channel:          sub.Channel,
			}
		}
		if len(remainingTopLevels) > 0 {
			for e := range matchingEvents {
				id := uuid.NewString()
				next[id] = &Subscription{
					ID:               id,
					TopLevelContexts: cloneKeys(remainingTopLevels),
					EventNames:       map[string]struct{}{e: {}},
					Channel:          sub.Channel,
				}
			}
		}
	}

	missingEvent := false
	for e := range wantEvents {
		if _, ok := matchedEvents[e]; !ok {
			missingEvent = true
			break
		}
	}
	missingContext := false
	if !global {
		for t := range wantTopLevels {
			if _, ok := matchedTopLevels[t]; !ok {
				missingContext = true
				break
			}
		}
	}
	if missingEvent || missingContext {
		return InvalidArgument("unsubscribe did not match an active subscription")
	}

	m.subscriptions = next
	return nil
}

// GetChannelsSubscribedToEvent returns the unique channels subscribed to
// eventName (or to its module, or — when eventName is itself a module —
// subscribed to that module) for contextID, including via any global
// subscription.
func (m *SubscriptionManager) GetChannelsSubscribedToEvent(eventName, contextID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, sub := range m.subscriptions {
		if !m.matches(sub, eventName, contextID) {
			continue
		}
		if _, dup := seen[sub.Channel]; dup {
			continue
		}
		seen[sub.Channel] = struct{}{}
		out = append(out, sub.Channel)
	}
	return out
}

// IsSubscribedTo reports whether any subscription matches moduleOrEvent
// for contextID.
func (m *SubscriptionManager) IsSubscribedTo(moduleOrEvent, contextID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		if m.matches(sub, moduleOrEvent, contextID) {
			return true
		}
	}
	return false
}

// IsAnySubscribedToModule reports whether any subscription, anywhere —
// regardless of which contexts it is scoped to — carries an event
// belonging to module. Used for flags like C4's networkDomainEnabled,
// which gate CDP domain enablement per-target rather than per-context.
func (m *SubscriptionManager) IsAnySubscribedToModule(module string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		for e := range sub.EventNames {
			if moduleOf(e) == module {
				return true
			}
		}
	}
	return false
}

func (m *SubscriptionManager) matches(sub *Subscription, eventName, contextID string) bool {
	if !sub.IsGlobal() {
		top, err := m.contexts.FindTopLevelContextID(contextID)
		if err != nil {
			return false
		}
		if _, ok := sub.TopLevelContexts[top]; !ok {
			return false
		}
	}

	if _, ok := sub.EventNames[eventName]; ok {
		return true
	}
	mod := moduleOf(eventName)
	if _, ok := sub.EventNames[mod]; ok {
		return true
	}
	// Query-by-module: match if the subscription carries any event
	// belonging to that module.
	if _, isModule := moduleEvents[eventName]; isModule {
		for e := range sub.EventNames {
			if moduleOf(e) == eventName {
				return true
			}
		}
	}
	return false
}

func intersectKeys(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func subtractKeys(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func cloneKeys(a map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a))
	for k := range a {
		out[k] = struct{}{}
	}
	return out
}
