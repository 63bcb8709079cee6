package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
)

// pickyCompleter fails requests carrying capabilities it dislikes and
// records every request it sees.
type pickyCompleter struct {
	rejectStop        bool
	rejectTemperature bool
	rejectMaxTokens   bool
	response          string
	requests          []Request
	err               error
}

func (p *pickyCompleter) Complete(_ context.Context, req Request) (string, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	if p.rejectStop && len(req.Stop) > 0 {
		return "", errors.New("400: stop is not supported with this model")
	}
	if p.rejectTemperature && req.Temperature != nil {
		return "", errors.New("400: temperature does not support 0.2 with this model")
	}
	if p.rejectMaxTokens && req.MaxTokensParam == TokenParamMaxTokens {
		return "", errors.New("400: unsupported parameter: 'max_tokens', use 'max_completion_tokens'")
	}
	return p.response, nil
}

func msgs() []engine.Message {
	return []engine.Message{{Role: engine.RoleUser, Content: "hi"}}
}

func newTestGateway(c Completer) *Gateway {
	return New(c, Config{Model: "test-model", Temperature: 0.2, MaxTokens: 256})
}

func TestCallSucceedsFirstTry(t *testing.T) {
	c := &pickyCompleter{response: "<answer>42</answer>"}
	g := newTestGateway(c)

	out, err := g.Call(context.Background(), msgs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<answer>42</answer>" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(c.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(c.requests))
	}
	req := c.requests[0]
	if len(req.Stop) == 0 || req.Temperature == nil || req.MaxTokensParam != TokenParamMaxTokens {
		t.Fatalf("first attempt should carry all capabilities: %+v", req)
	}
}

func TestLadderDisablesStopThenSucceeds(t *testing.T) {
	c := &pickyCompleter{rejectStop: true, response: "hello </code> trailing junk"}
	g := newTestGateway(c)

	out, err := g.Call(context.Background(), msgs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.requests) != 2 {
		t.Fatalf("expected retry after stop rejection, got %d requests", len(c.requests))
	}
	if len(c.requests[1].Stop) != 0 {
		t.Fatal("retry must not carry stop sequences")
	}
	// Stop disabled means the gateway enforces the boundary itself.
	if out != "hello </code>" {
		t.Fatalf("expected client-side truncation retaining marker, got %q", out)
	}
}

func TestLadderWalksAllThreeCapabilities(t *testing.T) {
	c := &pickyCompleter{
		rejectStop:        true,
		rejectTemperature: true,
		rejectMaxTokens:   true,
		response:          "ok",
	}
	g := newTestGateway(c)

	out, err := g.Call(context.Background(), msgs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(c.requests) != 4 {
		t.Fatalf("expected 4 attempts (3 disablements), got %d", len(c.requests))
	}
	last := c.requests[3]
	if len(last.Stop) != 0 || last.Temperature != nil || last.MaxTokensParam != TokenParamMaxCompletionTokens {
		t.Fatalf("final attempt should have all three capabilities adjusted: %+v", last)
	}
}

func TestDisablementsPersistAcrossCalls(t *testing.T) {
	c := &pickyCompleter{rejectTemperature: true, response: "ok"}
	g := newTestGateway(c)

	if _, err := g.Call(context.Background(), msgs()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := g.Call(context.Background(), msgs()); err != nil {
		t.Fatalf("second call: %v", err)
	}
	// call 1: reject + retry, call 2: straight through without temperature.
	if len(c.requests) != 3 {
		t.Fatalf("expected 3 requests total, got %d", len(c.requests))
	}
	if c.requests[2].Temperature != nil {
		t.Fatal("temperature must stay disabled on subsequent calls")
	}
}

func TestUnrelatedErrorPropagatesAsProviderError(t *testing.T) {
	c := &pickyCompleter{err: errors.New("401: invalid api key")}
	g := newTestGateway(c)

	_, err := g.Call(context.Background(), msgs())
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if !strings.Contains(pe.Error(), "invalid api key") {
		t.Fatalf("cause missing from error: %v", pe)
	}
	if len(c.requests) != 1 {
		t.Fatalf("unrelated errors must not trigger retries, got %d requests", len(c.requests))
	}
}

func TestLadderStopsAfterThreeDisablements(t *testing.T) {
	// Every attempt fails with a message matching "stop"; after the first
	// disablement the capability is off, so the same error no longer
	// matches anything enabled and must propagate.
	c := &pickyCompleter{err: errors.New("stop stop stop")}
	g := newTestGateway(c)
	g.caps.stop = true
	g.caps.temperature = false
	g.caps.legacyTokens = false
	g.caps.disablements = 2

	_, err := g.Call(context.Background(), msgs())
	if err == nil {
		t.Fatal("expected error")
	}
	if g.caps.disablements != 3 {
		t.Fatalf("expected exactly 3 disablements, got %d", g.caps.disablements)
	}
	// 1 failed attempt, 1 disablement, 1 retry that also fails.
	if len(c.requests) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(c.requests))
	}
}

func TestTruncateAtStopEarliestMarkerWins(t *testing.T) {
	got := truncateAtStop("a </answer> b </code> c", []string{"</code>", "</answer>"})
	if got != "a </answer>" {
		t.Fatalf("expected earliest marker to win, got %q", got)
	}
}

func TestTruncateAtStopNoMarker(t *testing.T) {
	if got := truncateAtStop("plain", DefaultStop()); got != "plain" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
