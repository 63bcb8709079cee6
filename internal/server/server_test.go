package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
	"github.com/ChamsBouzaiene/datapilot/internal/executor"
)

type stubCaller struct{ response string }

func (s stubCaller) Call(_ context.Context, _ []engine.Message) (string, error) {
	return s.response, nil
}

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, _ string) (executor.Result, error) {
	return executor.Result{Success: true, Output: "ok"}, nil
}

func (stubExecutor) Close() error { return nil }

func testFactory(response string) EngineFactory {
	return func(sessionID string) (*engine.Engine, error) {
		cfg := engine.DefaultConfig()
		cfg.MaxRounds = 5
		cfg.SessionID = sessionID
		return engine.New(cfg, stubCaller{response: response}, stubExecutor{}, nil, "sys"), nil
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestRunCommandStreamsEventsAndResult(t *testing.T) {
	srv := httptest.NewServer(New(testFactory("<answer>all done</answer>")).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, command{Type: "run", Task: "do the thing"}); err != nil {
		t.Fatalf("write run: %v", err)
	}

	var sawStarted, sawFinished bool
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch env.Type {
		case "agent_started":
			sawStarted = true
		case "agent_finished":
			sawFinished = true
		case "result":
			if !sawStarted || !sawFinished {
				t.Fatal("result arrived before lifecycle events completed")
			}
			if env.Answer != "all done" {
				t.Fatalf("unexpected answer %q", env.Answer)
			}
			return
		}
	}
}

func TestInvalidCommandGetsErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(New(testFactory("<answer>x</answer>")).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, command{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var env envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "error" || env.Error == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}

	// The connection must survive the bad frame.
	if err := wsjson.Write(ctx, conn, command{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if env.Type != "pong" {
		t.Fatalf("expected pong, got %+v", env)
	}
}

func TestRunWithoutTaskRejected(t *testing.T) {
	srv := httptest.NewServer(New(testFactory("<answer>x</answer>")).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, command{Type: "run"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var env envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != "error" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}
