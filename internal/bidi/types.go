package bidi

// RealmType enumerates the JS execution-context variants tracked by the
// Realm Store (C6).
type RealmType string

const (
	RealmWindow          RealmType = "window"
	RealmDedicatedWorker RealmType = "dedicated-worker"
	RealmSharedWorker    RealmType = "shared-worker"
	RealmServiceWorker   RealmType = "service-worker"
	RealmUserSandbox     RealmType = "user-sandbox" // paired with RealmWindow as the owning window realm
)

// BrowsingContext is a tracked page, iframe or similar traversable (§3).
// parent == "" iff this is a top-level traversable.
type BrowsingContext struct {
	ID       string
	ParentID string
	URL      string
	Children map[string]struct{}

	// LifecycleState is the last Page lifecycle event name observed
	// for this context's main frame (e.g. "init", "DOMContentLoaded",
	// "load"); empty until the first lifecycle event arrives.
	LifecycleState string

	// CdpSessionID is the CDP session that owns this context's target.
	CdpSessionID string
}

// IsTopLevel reports whether this context has no parent.
func (c *BrowsingContext) IsTopLevel() bool { return c.ParentID == "" }

// Realm is a JavaScript execution context (§3).
type Realm struct {
	ID                 string
	Type               RealmType
	CdpSessionID       string
	ExecutionContextID int64
	Origin             string

	// BrowsingContextID is the owning context for window/sandbox
	// realms. Empty for worker realms, which instead have Owners.
	BrowsingContextID string

	// SandboxName distinguishes a user-sandbox realm from its owning
	// window realm; empty for the default window realm.
	SandboxName string

	// Owners holds the browsing context ids associated with a worker
	// realm; AssociatedBrowsingContexts() derives its public view from
	// this set. A dedicated worker has exactly one owner.
	Owners map[string]struct{}
}

// AssociatedBrowsingContexts returns the browsing contexts this realm is
// reachable from: itself for window/sandbox realms, its owners for
// worker realms.
func (r *Realm) AssociatedBrowsingContexts() []string {
	if r.BrowsingContextID != "" {
		return []string{r.BrowsingContextID}
	}
	out := make([]string, 0, len(r.Owners))
	for id := range r.Owners {
		out = append(out, id)
	}
	return out
}

// Subscription records one subscribe() call's scope (§3). An empty
// TopLevelContexts set means "global" — matches every context.
type Subscription struct {
	ID               string
	TopLevelContexts map[string]struct{}
	EventNames       map[string]struct{}
	Channel          string
}

// IsGlobal reports whether this subscription has no context scoping.
func (s *Subscription) IsGlobal() bool { return len(s.TopLevelContexts) == 0 }

// Intercept is a registered network interception rule (§3).
type Intercept struct {
	ID          string
	URLPatterns []string
	Phases      map[InterceptPhase]struct{}
}

// InterceptPhase names a point in the network request lifecycle at
// which an Intercept can pause a request.
type InterceptPhase string

const (
	PhaseBeforeRequestSent InterceptPhase = "beforeRequestSent"
	PhaseResponseStarted   InterceptPhase = "responseStarted"
	PhaseAuthRequired      InterceptPhase = "authRequired"
)

// PreloadScript is a BiDi preload script registration (§3). One BiDi id
// maps to many CDP preload-script ids, one per CDP target it has been
// installed on.
type PreloadScript struct {
	ID                  string
	FunctionDeclaration string
	Sandbox             string
	ContextIDs          []string // explicit BiDi context scope; empty = every target
	UserContexts        []string // reserved for multi-profile scoping; unused by a single-profile server
	Channels            []PreloadScriptChannel

	// cdpIDs maps a CDP target id to the CDP preload-script id
	// Page.addScriptToEvaluateOnNewDocument returned for it.
	cdpIDs map[string]string
}

// PreloadScriptChannel is a declared channel argument a preload script
// can send/receive messages on (§4.10).
type PreloadScriptChannel struct {
	Channel         string
	OwnershipIgnore bool
}

// OutgoingMessage is a fully-resolved BiDi event ready for the wire
// (§3): its method name, payload, the channel it is destined for, and
// the top-level context it is associated with (empty for session/global
// events).
type OutgoingMessage struct {
	EventName         string
	Payload           any
	Channel           string
	TopLevelContextID string // empty means no associated context
}
