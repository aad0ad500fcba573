package bidi

import "testing"

func TestRealmStore_AddAndGet(t *testing.T) {
	s := NewRealmStore()
	r := &Realm{ID: "r1", Type: RealmWindow, CdpSessionID: "sess1", ExecutionContextID: 1, BrowsingContextID: "ctx1"}
	s.Add(r)

	got, ok := s.Get("r1")
	if !ok || got != r {
		t.Fatal("expected to retrieve the added realm")
	}
}

func TestRealmStore_ByCdpExecutionContext(t *testing.T) {
	s := NewRealmStore()
	r := &Realm{ID: "r1", CdpSessionID: "sess1", ExecutionContextID: 5}
	s.Add(r)

	got, ok := s.ByCdpExecutionContext("sess1", 5)
	if !ok || got != r {
		t.Fatal("expected lookup by session+execution context to succeed")
	}
	if _, ok := s.ByCdpExecutionContext("sess1", 6); ok {
		t.Fatal("expected no match for different execution context id")
	}
}

func TestRealmStore_FindRealm_FiltersByContextAndType(t *testing.T) {
	s := NewRealmStore()
	s.Add(&Realm{ID: "window", Type: RealmWindow, BrowsingContextID: "ctx1"})
	s.Add(&Realm{ID: "sandbox", Type: RealmUserSandbox, BrowsingContextID: "ctx1", SandboxName: "sb1"})

	r, ok := s.FindRealm(RealmFilter{BrowsingContextID: "ctx1", Sandbox: "sb1"})
	if !ok || r.ID != "sandbox" {
		t.Fatalf("expected sandbox realm, got %+v ok=%v", r, ok)
	}

	r, ok = s.FindRealm(RealmFilter{BrowsingContextID: "ctx1", Type: RealmWindow})
	if !ok || r.ID != "window" {
		t.Fatalf("expected window realm, got %+v ok=%v", r, ok)
	}
}

func TestRealmStore_ByContext_IncludesWorkerOwners(t *testing.T) {
	s := NewRealmStore()
	s.Add(&Realm{ID: "worker1", Type: RealmDedicatedWorker, Owners: map[string]struct{}{"ctx1": {}}})

	realms := s.ByContext("ctx1")
	if len(realms) != 1 || realms[0].ID != "worker1" {
		t.Fatalf("expected worker realm indexed by owner, got %v", realms)
	}
}

func TestRealmStore_Destroy(t *testing.T) {
	s := NewRealmStore()
	s.Add(&Realm{ID: "r1", CdpSessionID: "sess1", ExecutionContextID: 1, BrowsingContextID: "ctx1"})

	removed := s.Destroy("r1")
	if removed == nil || removed.ID != "r1" {
		t.Fatalf("expected removed realm r1, got %v", removed)
	}
	if _, ok := s.Get("r1"); ok {
		t.Fatal("expected realm to be gone after destroy")
	}
	if realms := s.ByContext("ctx1"); len(realms) != 0 {
		t.Fatalf("expected context index cleared, got %v", realms)
	}
}

func TestRealmStore_Destroy_Unknown(t *testing.T) {
	s := NewRealmStore()
	if r := s.Destroy("missing"); r != nil {
		t.Fatalf("expected nil for unknown realm, got %v", r)
	}
}

func TestRealmStore_DestroyByContext(t *testing.T) {
	s := NewRealmStore()
	s.Add(&Realm{ID: "r1", BrowsingContextID: "ctx1"})
	s.Add(&Realm{ID: "r2", BrowsingContextID: "ctx1"})
	s.Add(&Realm{ID: "r3", BrowsingContextID: "ctx2"})

	removed := s.DestroyByContext("ctx1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed realms, got %d", len(removed))
	}
	if _, ok := s.Get("r3"); !ok {
		t.Fatal("expected unrelated realm r3 to survive")
	}
}

func TestRealmStore_DestroyBySession(t *testing.T) {
	s := NewRealmStore()
	s.Add(&Realm{ID: "r1", CdpSessionID: "sessA"})
	s.Add(&Realm{ID: "r2", CdpSessionID: "sessB"})

	removed := s.DestroyBySession("sessA")
	if len(removed) != 1 || removed[0].ID != "r1" {
		t.Fatalf("expected only r1 removed, got %v", removed)
	}
	if _, ok := s.Get("r2"); !ok {
		t.Fatal("expected r2 to survive")
	}
}

func TestRealm_AssociatedBrowsingContexts(t *testing.T) {
	window := &Realm{BrowsingContextID: "ctx1"}
	if got := window.AssociatedBrowsingContexts(); len(got) != 1 || got[0] != "ctx1" {
		t.Errorf("got %v, want [ctx1]", got)
	}

	worker := &Realm{Owners: map[string]struct{}{"ctx1": {}, "ctx2": {}}}
	got := worker.AssociatedBrowsingContexts()
	if len(got) != 2 {
		t.Errorf("got %v, want 2 owners", got)
	}
}
