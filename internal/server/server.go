// Package server exposes the agent over a websocket, streaming lifecycle
// events to the client as the run progresses.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
	"github.com/ChamsBouzaiene/datapilot/internal/plan"
	"github.com/ChamsBouzaiene/datapilot/internal/session"
)

// EngineFactory builds a fresh engine for one connection. Engines are
// never shared across connections; each run owns its state exclusively.
type EngineFactory func(sessionID string) (*engine.Engine, error)

// command is a client-to-server frame.
type command struct {
	Type string `json:"type"`
	Task string `json:"task,omitempty"`
}

// envelope is a server-to-client frame: either a relayed agent event, a
// final result, or an error notice.
type envelope struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Round   int         `json:"round,omitempty"`
	Plan    *plan.State `json:"plan,omitempty"`
	Answer  string      `json:"answer,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server relays agent runs over websocket connections.
type Server struct {
	factory EngineFactory
}

func New(factory EngineFactory) *Server {
	return &Server{factory: factory}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", s.handleChat)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

// ListenAndServe blocks serving the websocket endpoint on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("listening on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("WARNING: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	sessionID := session.NewSessionID()
	ctx := r.Context()

	for {
		var cmd command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			// Client closed or the frame was unreadable JSON at the
			// transport level; nothing left to do.
			return
		}

		switch cmd.Type {
		case "run":
			if cmd.Task == "" {
				s.sendError(ctx, conn, "run command requires a task")
				continue
			}
			s.runTask(ctx, conn, sessionID, cmd.Task)
		case "ping":
			_ = wsjson.Write(ctx, conn, envelope{Type: "pong"})
		default:
			s.sendError(ctx, conn, fmt.Sprintf("unknown command %q", cmd.Type))
		}
	}
}

func (s *Server) runTask(ctx context.Context, conn *websocket.Conn, sessionID, task string) {
	eng, err := s.factory(sessionID)
	if err != nil {
		s.sendError(ctx, conn, fmt.Sprintf("failed to start engine: %v", err))
		return
	}

	events := eng.RunStream(ctx, task)
	for ev := range events {
		env := envelope{
			Type:    string(ev.Type),
			Message: ev.Message,
			Round:   ev.Round,
			Plan:    ev.Plan,
		}
		if err := wsjson.Write(ctx, conn, env); err != nil {
			log.Printf("WARNING: websocket write failed, draining run: %v", err)
			// Keep draining so the engine goroutine can finish.
			for range events {
			}
			return
		}
	}

	_ = wsjson.Write(ctx, conn, envelope{Type: "result", Answer: eng.Answer()})
}

func (s *Server) sendError(ctx context.Context, conn *websocket.Conn, msg string) {
	_ = wsjson.Write(ctx, conn, envelope{Type: "error", Error: msg})
}

// MarshalEvent renders one agent event as its wire envelope. Exposed for
// hosts that fan events out to their own transports.
func MarshalEvent(ev engine.Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:    string(ev.Type),
		Message: ev.Message,
		Round:   ev.Round,
		Plan:    ev.Plan,
	})
}
