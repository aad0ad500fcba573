package command

import (
	"context"
	"encoding/json"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// HandlerFunc implements one BiDi command method against a session's
// state, returning the wire-ready result payload or a *bidi.Error.
type HandlerFunc func(ctx context.Context, sess *Session, params json.RawMessage) (any, error)

// Processor is the Command Processor (C11): it owns the method →
// handler table and turns a raw client frame into a shaped response,
// recovering whatever it can from malformed input rather than closing
// the connection (§4.11).
type Processor struct {
	handlers map[string]HandlerFunc
}

// NewProcessor builds a Processor with every C12 domain handler
// registered.
func NewProcessor() *Processor {
	p := &Processor{handlers: make(map[string]HandlerFunc)}
	registerSessionHandlers(p)
	registerBrowsingContextHandlers(p)
	registerScriptHandlers(p)
	registerNetworkHandlers(p)
	registerStorageHandlers(p)
	return p
}

// Register binds method to fn. Re-registering a method replaces its
// handler.
func (p *Processor) Register(method string, fn HandlerFunc) {
	p.handlers[method] = fn
}

// Process parses raw as an IncomingFrame, dispatches it to the
// registered handler for its method, and shapes either an
// OutgoingResponse success or error. It never panics or returns an
// error itself: every failure mode is represented in the returned
// OutgoingResponse.
func (p *Processor) Process(ctx context.Context, sess *Session, raw []byte) OutgoingResponse {
	var frame IncomingFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return errorResponse(recoverID(raw), "", bidi.InvalidArgument("malformed command: %v", err))
	}

	if frame.Method == "" {
		return errorResponse(&frame.ID, frame.Channel, bidi.InvalidArgument("missing method"))
	}

	handler, ok := p.handlers[frame.Method]
	if !ok {
		return errorResponse(&frame.ID, frame.Channel, bidi.UnknownCommand("%s", frame.Method))
	}

	result, err := handler(ctx, sess, frame.Params)
	if err != nil {
		return errorResponse(&frame.ID, frame.Channel, bidi.AsError(err))
	}
	if result == nil {
		result = map[string]any{}
	}
	return successResponse(frame.ID, frame.Channel, result)
}
