package command

import (
	"context"
	"testing"

	"github.com/grantcarthew/bidid/internal/bidi"
)

func TestContextInfo(t *testing.T) {
	contexts := bidi.NewBrowsingContextStore()
	parent := contexts.Create("ctx1", "")
	contexts.Create("child1", "ctx1")
	contexts.SetURL("ctx1", "https://example.com")

	info := contextInfo(parent)
	if info["context"] != "ctx1" {
		t.Errorf("got context %v", info["context"])
	}
	if info["url"] != "https://example.com" {
		t.Errorf("got url %v", info["url"])
	}
	children := info["children"].([]string)
	if len(children) != 1 || children[0] != "child1" {
		t.Errorf("got children %v", children)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "b"); got != "b" {
		t.Errorf("got %q", got)
	}
	if got := firstNonEmpty("a", "b"); got != "a" {
		t.Errorf("got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestHandleGetTree_UnknownRoot(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleGetTree(context.Background(), sess, []byte(`{"root":"missing"}`))
	if err == nil {
		t.Fatal("expected error for unknown root context")
	}
	if bidi.AsError(err).Code != bidi.CodeNoSuchFrame {
		t.Errorf("got code %q", bidi.AsError(err).Code)
	}
}

func TestHandleGetTree_DefaultsToTopLevel(t *testing.T) {
	contexts := bidi.NewBrowsingContextStore()
	contexts.Create("ctx1", "")
	contexts.Create("child1", "ctx1")
	sess := &Session{Contexts: contexts}

	result, err := handleGetTree(context.Background(), sess, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree := result.(map[string]any)["contexts"].([]map[string]any)
	if len(tree) != 1 {
		t.Fatalf("expected only the top-level context, got %d", len(tree))
	}
}

func TestHandleNavigate_UnknownContext(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleNavigate(context.Background(), sess, []byte(`{"context":"missing","url":"https://example.com"}`))
	if err == nil {
		t.Fatal("expected error for unknown context")
	}
	if bidi.AsError(err).Code != bidi.CodeNoSuchFrame {
		t.Errorf("got code %q", bidi.AsError(err).Code)
	}
}

func TestHandleReload_UnknownContext(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleReload(context.Background(), sess, []byte(`{"context":"missing"}`))
	if err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestHandleCloseContext_UnknownContext(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleCloseContext(context.Background(), sess, []byte(`{"context":"missing"}`))
	if err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestHandleCloseContext_RejectsNonTopLevel(t *testing.T) {
	contexts := bidi.NewBrowsingContextStore()
	contexts.Create("ctx1", "")
	contexts.Create("child1", "ctx1")
	sess := &Session{Contexts: contexts}

	_, err := handleCloseContext(context.Background(), sess, []byte(`{"context":"child1"}`))
	if err == nil {
		t.Fatal("expected error closing a non-top-level context")
	}
	if bidi.AsError(err).Code != bidi.CodeInvalidArgument {
		t.Errorf("got code %q", bidi.AsError(err).Code)
	}
}

func TestHandleActivate_UnknownContext(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleActivate(context.Background(), sess, []byte(`{"context":"missing"}`))
	if err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestHandleSetViewport_UnknownContext(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleSetViewport(context.Background(), sess, []byte(`{"context":"missing","viewport":{"width":100,"height":100}}`))
	if err == nil {
		t.Fatal("expected error for unknown context")
	}
	if bidi.AsError(err).Code != bidi.CodeNoSuchFrame {
		t.Errorf("got code %q", bidi.AsError(err).Code)
	}
}

func TestHandleSetViewport_RequiresViewport(t *testing.T) {
	contexts := bidi.NewBrowsingContextStore()
	contexts.Create("ctx1", "")
	sess := &Session{Contexts: contexts}

	_, err := handleSetViewport(context.Background(), sess, []byte(`{"context":"ctx1"}`))
	if err == nil {
		t.Fatal("expected error without a viewport")
	}
	if bidi.AsError(err).Code != bidi.CodeInvalidArgument {
		t.Errorf("got code %q", bidi.AsError(err).Code)
	}
}

func TestHandleCaptureScreenshot_UnknownContext(t *testing.T) {
	sess := &Session{Contexts: bidi.NewBrowsingContextStore()}
	_, err := handleCaptureScreenshot(context.Background(), sess, []byte(`{"context":"missing"}`))
	if err == nil {
		t.Fatal("expected error for unknown context")
	}
}
