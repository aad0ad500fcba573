package bidi

// contextLookup is the narrow view of the Browsing Context Store that
// the Event Manager needs: whether a context still exists, used to drop
// events whose associated context closed before a promise event
// resolved.
type contextLookup interface {
	topLevelResolver
	Exists(contextID string) bool
}

// EventManager accepts synchronous and future (promise) events,
// resolves each one's associated top-level context, fans it out to
// every subscribed channel via the Subscription Manager, and queues the
// resulting outgoing messages through the Event Queue in registration
// order (C4).
type EventManager struct {
	subs     *SubscriptionManager
	contexts contextLookup
	queue    *EventQueue
}

// NewEventManager creates an Event Manager that delivers outgoing
// messages to sink via an internally owned Event Queue.
func NewEventManager(subs *SubscriptionManager, contexts contextLookup, sink Sink) *EventManager {
	m := &EventManager{
		subs:     subs,
		contexts: contexts,
	}
	m.queue = NewEventQueue(sink)
	return m
}

// RegisterEvent queues a synchronous event: eventName is the atomic
// event name (e.g. "network.beforeRequestSent"), contextID is the
// associated browsing context ("" for session/global events), and
// payload is the BiDi event body to deliver (without its channel field,
// which is attached per-subscriber).
func (m *EventManager) RegisterEvent(eventName, contextID string, payload any) {
	m.queue.Add(func() QueuedResult {
		return QueuedResult{Payload: m.fanOut(eventName, contextID, payload)}
	}, eventName)
}

// RegisterPromiseEvent queues a future event. future is invoked on its
// own goroutine and must return the atomic event name, the associated
// context id, and a payload (or an error, in which case the event is
// dropped and logged via the queue's FailureLogger). If the associated
// context has been destroyed by the time future resolves, the event is
// dropped silently.
func (m *EventManager) RegisterPromiseEvent(future func() (eventName, contextID string, payload any, err error), tag string) {
	m.queue.Add(func() QueuedResult {
		eventName, contextID, payload, err := future()
		if err != nil {
			return QueuedResult{Err: err}
		}
		if contextID != "" && !m.contexts.Exists(contextID) {
			return QueuedResult{Payload: nil}
		}
		return QueuedResult{Payload: m.fanOut(eventName, contextID, payload)}
	}, tag)
}

// fanOut wraps payload into one outgoing message per channel subscribed
// to eventName for contextID. It returns a slice of *OutgoingMessage
// (possibly empty, meaning "no subscribers — drop") rather than a single
// message, since distinct channels may each need their own wire copy.
func (m *EventManager) fanOut(eventName, contextID string, payload any) []*OutgoingMessage {
	var topLevel string
	if contextID != "" {
		top, err := m.contexts.FindTopLevelContextID(contextID)
		if err == nil {
			topLevel = top
		} else {
			topLevel = contextID
		}
	}

	channels := m.subs.GetChannelsSubscribedToEvent(eventName, contextID)
	if len(channels) == 0 {
		return nil
	}

	out := make([]*OutgoingMessage, 0, len(channels))
	for _, ch := range channels {
		out = append(out, &OutgoingMessage{
			EventName:         eventName,
			Payload:           payload,
			Channel:           ch,
			TopLevelContextID: topLevel,
		})
	}
	return out
}

// NetworkDomainEnabled reports whether any channel is currently
// subscribed to the network module, consulted by C7 when deciding
// whether to enable the CDP Network domain on a newly attached target.
func (m *EventManager) NetworkDomainEnabled() bool {
	return m.subs.IsAnySubscribedToModule("network")
}
