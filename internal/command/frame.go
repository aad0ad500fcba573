// Package command implements the client-facing command dispatch layer:
// parsing incoming BiDi JSON frames, routing them to domain processors,
// and shaping responses and errors back onto the wire (C11), plus the
// domain processors themselves (C12).
package command

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/grantcarthew/bidid/internal/bidi"
)

// IncomingFrame is a parsed client-to-server BiDi command (§6).
type IncomingFrame struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Channel string          `json:"channel,omitempty"`
}

// OutgoingResponse is a server-to-client command response (§6).
type OutgoingResponse struct {
	ID         *int64 `json:"id,omitempty"`
	Type       string `json:"type"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
	Channel    string `json:"channel,omitempty"`
}

// OutgoingEvent is a server-to-client BiDi event (§6).
type OutgoingEvent struct {
	Type    string `json:"type"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Channel string `json:"channel,omitempty"`
}

func successResponse(id int64, channel string, result any) OutgoingResponse {
	return OutgoingResponse{ID: &id, Type: "success", Result: result, Channel: channel}
}

func errorResponse(id *int64, channel string, err *bidi.Error) OutgoingResponse {
	return OutgoingResponse{
		ID:      id,
		Type:    "error",
		Error:   string(err.Code),
		Message: err.Message,
		Channel: channel,
	}
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*(-?\d+)`)

// recoverID re-parses raw for an "id" field even when the payload as a
// whole failed to parse as a valid frame (§4.11: "Error responses
// always attempt to recover the original id by re-parsing raw JSON —
// even from malformed payloads — if absent, id is omitted").
func recoverID(raw []byte) *int64 {
	m := idPattern.FindSubmatch(raw)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
