package command

import (
	"testing"

	"github.com/grantcarthew/bidid/internal/bidi"
)

func TestRecoverID_ValidFrame(t *testing.T) {
	id := recoverID([]byte(`{"id":42,"method":"session.status"}`))
	if id == nil || *id != 42 {
		t.Fatalf("got %v, want 42", id)
	}
}

func TestRecoverID_MalformedPayload(t *testing.T) {
	id := recoverID([]byte(`{"id":7, this is not valid json`))
	if id == nil || *id != 7 {
		t.Fatalf("expected id recovered from malformed payload, got %v", id)
	}
}

func TestRecoverID_NegativeID(t *testing.T) {
	id := recoverID([]byte(`{"id":-1,"method":"x"}`))
	if id == nil || *id != -1 {
		t.Fatalf("got %v, want -1", id)
	}
}

func TestRecoverID_Absent(t *testing.T) {
	if id := recoverID([]byte(`not json at all`)); id != nil {
		t.Fatalf("expected nil id, got %v", id)
	}
}

func TestSuccessResponse(t *testing.T) {
	resp := successResponse(5, "ch1", map[string]any{"ok": true})
	if resp.ID == nil || *resp.ID != 5 {
		t.Fatalf("got id %v, want 5", resp.ID)
	}
	if resp.Type != "success" || resp.Channel != "ch1" {
		t.Fatalf("unexpected response shape: %+v", resp)
	}
}

func TestErrorResponse(t *testing.T) {
	id := int64(9)
	resp := errorResponse(&id, "ch1", bidi.NoSuchFrame("missing"))
	if resp.Type != "error" {
		t.Fatalf("expected error type, got %q", resp.Type)
	}
	if resp.Error != string(bidi.CodeNoSuchFrame) {
		t.Errorf("got error code %q", resp.Error)
	}
	if resp.Message != "missing" {
		t.Errorf("got message %q", resp.Message)
	}
}
