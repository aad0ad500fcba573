// Package server implements the BiDi Server (C13) and its per-connection
// Session Manager (C14): the HTTP + WebSocket front end that accepts
// BiDi clients, launches one browser per connection, and pushes every
// queued event out over that connection's socket.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/grantcarthew/bidid/internal/bidi"
	"github.com/grantcarthew/bidid/internal/browser"
	"github.com/grantcarthew/bidid/internal/cdp"
	"github.com/grantcarthew/bidid/internal/command"
)

// syncConn serializes writes to a WebSocket connection the way
// cdp.Client's writeMu serializes the outbound CDP leg: the command
// pump (writing responses) and the Event Queue's sink callback (writing
// events) run on different goroutines and must never interleave frames
// on the same connection, since coder/websocket.Conn.Write is not safe
// for concurrent use.
type syncConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *syncConn) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Config configures a Server's browser launches and HTTP listener.
type Config struct {
	Headless bool
	Channel  browser.Channel
	Verbose  bool
}

// Server is the BiDi Server (C13): it owns the pending-session registry
// and serves POST /session plus the per-session WebSocket endpoint. One
// Command Processor is shared by every connection; one Event Queue
// lives per established connection
// (§4.13: "on construction it subscribes the Command Processor and
// Event Manager to push outgoing messages through the queue").
type Server struct {
	cfg       Config
	processor *command.Processor
	log       *slog.Logger

	pending *sessionRegistry
}

// New creates a Server ready to be mounted on an http.ServeMux.
func New(cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		processor: command.NewProcessor(),
		log:       log,
		pending:   newSessionRegistry(),
	}
}

// Handler returns the HTTP handler serving POST /session and
// /session/{id} (WebSocket upgrade).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleCreateSession)
	mux.HandleFunc("/session/", s.handleSessionSocket)
	return mux
}

// handleCreateSession implements POST /session (§4.13): allocate a
// session id and return the WebSocket URL the client dials next. The
// browser instance itself is deferred to the WebSocket connect, since
// launching one is the documented per-connection behavior.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := uuid.NewString()
	s.pending.reserve(id)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sessionId": id,
		"capabilities": map[string]any{
			"webSocketUrl": "/session/" + id,
		},
	})
}

// handleSessionSocket implements the WebSocket leg of §4.13: upgrade,
// launch a fresh browser instance for this connection, dial it over
// CDP, build the session's full BiDi stack, and pump frames until the
// socket closes.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/session/"):]

	// An empty or "new" path segment is the session.new alternative
	// creation path (§4.13): the socket is accepted directly, with no
	// prior POST /session reservation, under a freshly minted id.
	if id == "" || id == "new" {
		id = uuid.NewString()
	} else if !s.pending.has(id) {
		wsConn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn := &syncConn{conn: wsConn}
		defer wsConn.Close(websocket.StatusNormalClosure, "")
		writeInvalidSessionID(r.Context(), conn, id)
		return
	} else {
		s.pending.claim(id)
	}

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error("websocket accept failed", "session", id, "error", err)
		return
	}
	conn := &syncConn{conn: wsConn}
	defer wsConn.Close(websocket.StatusNormalClosure, "session closed")

	ctx := r.Context()
	b, client, err := s.launchBrowser(ctx)
	if err != nil {
		s.log.Error("browser launch failed", "session", id, "error", err)
		wsConn.Close(websocket.StatusInternalError, "browser launch failed")
		return
	}

	sink := func(payload any) {
		messages, ok := payload.([]*bidi.OutgoingMessage)
		if !ok {
			return
		}
		for _, msg := range messages {
			writeFrame(ctx, conn, command.OutgoingEvent{
				Type:    "event",
				Method:  msg.EventName,
				Params:  msg.Payload,
				Channel: msg.Channel,
			})
		}
	}

	sess := command.NewSession(ctx, id, command.Config{
		Headless: s.cfg.Headless,
		Channel:  s.cfg.Channel,
		Verbose:  s.cfg.Verbose,
	}, b, client, sink)

	s.pump(ctx, wsConn, conn, sess)

	_ = sess.Close()
}

func (s *Server) launchBrowser(ctx context.Context) (*browser.Browser, *cdp.Client, error) {
	b, err := browser.Start(browser.LaunchOptions{
		Headless: s.cfg.Headless,
		Channel:  s.cfg.Channel,
	})
	if err != nil {
		return nil, nil, err
	}

	version, err := b.Version(ctx)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}

	client, err := cdp.Dial(ctx, version.WebSocketURL)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}

	return b, client, nil
}

// pump reads BiDi command frames off wsConn and processes each
// synchronously through the Command Processor, matching §4.13's
// single logical command-processing order per session. Responses are
// written through conn, the same write-serialization point the Event
// Queue's sink uses, so command responses and outgoing events never
// interleave frames on the wire.
func (s *Server) pump(ctx context.Context, wsConn *websocket.Conn, conn *syncConn, sess *command.Session) {
	for {
		_, data, err := wsConn.Read(ctx)
		if err != nil {
			return
		}

		resp := s.processor.Process(ctx, sess, data)
		writeFrame(ctx, conn, resp)
	}
}

func writeFrame(ctx context.Context, conn *syncConn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = conn.write(writeCtx, data)
}

func writeInvalidSessionID(ctx context.Context, conn *syncConn, id string) {
	writeFrame(ctx, conn, map[string]any{
		"type":    "error",
		"error":   string(bidi.CodeInvalidSessionID),
		"message": "no such session: " + id,
	})
}
