package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/grantcarthew/bidid/internal/bidi"
)

func TestProcessor_Process_MalformedJSON(t *testing.T) {
	p := &Processor{handlers: map[string]HandlerFunc{}}
	resp := p.Process(context.Background(), nil, []byte(`{"id":3, not json`))
	if resp.Type != "error" {
		t.Fatalf("expected error response, got %+v", resp)
	}
	if resp.ID == nil || *resp.ID != 3 {
		t.Fatalf("expected recovered id 3, got %v", resp.ID)
	}
	if resp.Error != string(bidi.CodeInvalidArgument) {
		t.Errorf("got error code %q", resp.Error)
	}
}

func TestProcessor_Process_MissingMethod(t *testing.T) {
	p := &Processor{handlers: map[string]HandlerFunc{}}
	resp := p.Process(context.Background(), nil, []byte(`{"id":1}`))
	if resp.Type != "error" || resp.Error != string(bidi.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument error, got %+v", resp)
	}
}

func TestProcessor_Process_UnknownMethod(t *testing.T) {
	p := &Processor{handlers: map[string]HandlerFunc{}}
	resp := p.Process(context.Background(), nil, []byte(`{"id":1,"method":"foo.bar"}`))
	if resp.Type != "error" || resp.Error != string(bidi.CodeUnknownCommand) {
		t.Fatalf("expected unknown command error, got %+v", resp)
	}
}

func TestProcessor_Process_HandlerSuccess(t *testing.T) {
	p := &Processor{handlers: map[string]HandlerFunc{}}
	p.Register("test.echo", func(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
		return map[string]any{"echoed": true}, nil
	})

	resp := p.Process(context.Background(), nil, []byte(`{"id":1,"method":"test.echo","channel":"ch1"}`))
	if resp.Type != "success" {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Channel != "ch1" {
		t.Errorf("got channel %q", resp.Channel)
	}
}

func TestProcessor_Process_HandlerError(t *testing.T) {
	p := &Processor{handlers: map[string]HandlerFunc{}}
	p.Register("test.fail", func(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
		return nil, bidi.NoSuchFrame("no such frame: x")
	})

	resp := p.Process(context.Background(), nil, []byte(`{"id":1,"method":"test.fail"}`))
	if resp.Type != "error" || resp.Error != string(bidi.CodeNoSuchFrame) {
		t.Fatalf("expected no-such-frame error, got %+v", resp)
	}
}

func TestProcessor_Process_NilResultBecomesEmptyObject(t *testing.T) {
	p := &Processor{handlers: map[string]HandlerFunc{}}
	p.Register("test.noop", func(ctx context.Context, sess *Session, params json.RawMessage) (any, error) {
		return nil, nil
	})

	resp := p.Process(context.Background(), nil, []byte(`{"id":1,"method":"test.noop"}`))
	if resp.Type != "success" {
		t.Fatalf("expected success, got %+v", resp)
	}
	if _, ok := resp.Result.(map[string]any); !ok {
		t.Errorf("expected empty object result, got %T %v", resp.Result, resp.Result)
	}
}

func TestNewProcessor_RegistersKnownMethods(t *testing.T) {
	p := NewProcessor()
	for _, method := range []string{
		"session.status", "session.new", "session.subscribe",
		"browsingContext.getTree", "browsingContext.navigate",
		"script.evaluate", "script.callFunction",
		"network.addIntercept", "network.continueRequest",
		"storage.getCookies", "storage.setCookie",
	} {
		if _, ok := p.handlers[method]; !ok {
			t.Errorf("expected %s to be registered", method)
		}
	}
}
