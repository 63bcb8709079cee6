// Package gateway issues completion requests against an LLM provider,
// negotiating away optional capabilities the provider rejects. Some
// OpenAI-compatible backends refuse stop sequences, fix the temperature,
// or expect a different max-token parameter spelling; the gateway walks a
// fixed fallback ladder instead of failing the whole run.
package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
)

// Token-limit parameter spellings. Newer OpenAI models reject the legacy
// name and demand max_completion_tokens.
const (
	TokenParamMaxTokens           = "max_tokens"
	TokenParamMaxCompletionTokens = "max_completion_tokens"
)

// Request is one fully resolved completion request. Optional capabilities
// are expressed by absence: a nil Temperature or empty Stop means "do not
// send the parameter at all".
type Request struct {
	Model          string
	Messages       []engine.Message
	Stop           []string
	Temperature    *float32
	MaxTokens      int
	MaxTokensParam string
}

// Completer is the provider-facing interface. Implementations live in the
// providers package.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderError wraps an unrecoverable provider failure after the ladder
// has been exhausted.
type ProviderError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider error (model %s, %d attempts): %v", e.Model, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// capabilities is the ladder state. Fields only ever flip from enabled to
// disabled; nothing re-enables them for the lifetime of the Gateway.
type capabilities struct {
	stop         bool
	temperature  bool
	legacyTokens bool // true while using max_tokens spelling
	disablements int
}

const maxDisablements = 3

// Config holds the request shape the Gateway applies to every call.
type Config struct {
	Model       string
	Stop        []string
	Temperature float32
	MaxTokens   int
}

// DefaultStop are the markers that end a model turn: the loop only ever
// wants one code block or one answer per round.
func DefaultStop() []string {
	return []string{"</code>", "</answer>"}
}

// Gateway implements engine.Caller on top of a Completer.
type Gateway struct {
	completer Completer
	cfg       Config
	caps      capabilities
}

func New(completer Completer, cfg Config) *Gateway {
	if len(cfg.Stop) == 0 {
		cfg.Stop = DefaultStop()
	}
	return &Gateway{
		completer: completer,
		cfg:       cfg,
		caps:      capabilities{stop: true, temperature: true, legacyTokens: true},
	}
}

// Call issues one completion, retrying with one capability disabled per
// failure, in the fixed order stop → temperature → token-param spelling.
// At most three disablements ever happen; the fourth failure propagates
// as a *ProviderError. Disablements persist across calls.
func (g *Gateway) Call(ctx context.Context, messages []engine.Message) (string, error) {
	attempts := 0
	for {
		attempts++
		text, err := g.completer.Complete(ctx, g.buildRequest(messages))
		if err == nil {
			if !g.caps.stop {
				// The provider ignored our stop markers; enforce the
				// boundary here so the engine never sees text past it.
				text = truncateAtStop(text, g.cfg.Stop)
			}
			return text, nil
		}

		if g.caps.disablements >= maxDisablements || !g.disableForError(err) {
			return "", &ProviderError{Model: g.cfg.Model, Attempts: attempts, Err: err}
		}
	}
}

func (g *Gateway) buildRequest(messages []engine.Message) Request {
	req := Request{
		Model:          g.cfg.Model,
		Messages:       messages,
		MaxTokens:      g.cfg.MaxTokens,
		MaxTokensParam: TokenParamMaxTokens,
	}
	if g.caps.stop {
		req.Stop = g.cfg.Stop
	}
	if g.caps.temperature {
		t := g.cfg.Temperature
		req.Temperature = &t
	}
	if !g.caps.legacyTokens {
		req.MaxTokensParam = TokenParamMaxCompletionTokens
	}
	return req
}

// disableForError matches the provider's error text against the capability
// names in ladder order and disables the first still-enabled match. It
// reports false when nothing matched, meaning the error is not a
// capability mismatch.
func (g *Gateway) disableForError(err error) bool {
	msg := strings.ToLower(err.Error())

	if g.caps.stop && strings.Contains(msg, "stop") {
		g.caps.stop = false
		g.caps.disablements++
		log.Printf("WARNING: provider rejected stop sequences, disabling (model %s)", g.cfg.Model)
		return true
	}
	if g.caps.temperature && strings.Contains(msg, "temperature") {
		g.caps.temperature = false
		g.caps.disablements++
		log.Printf("WARNING: provider rejected temperature, disabling (model %s)", g.cfg.Model)
		return true
	}
	if g.caps.legacyTokens &&
		(strings.Contains(msg, "max_tokens") || strings.Contains(msg, "max_completion_tokens")) {
		g.caps.legacyTokens = false
		g.caps.disablements++
		log.Printf("WARNING: provider rejected max_tokens, switching to max_completion_tokens (model %s)", g.cfg.Model)
		return true
	}
	return false
}

// truncateAtStop cuts text at the first occurrence of any stop marker,
// keeping the marker itself so the parser still sees a closed tag.
func truncateAtStop(text string, stops []string) string {
	cut := -1
	cutLen := 0
	for _, s := range stops {
		if i := strings.Index(text, s); i >= 0 && (cut == -1 || i < cut) {
			cut = i
			cutLen = len(s)
		}
	}
	if cut == -1 {
		return text
	}
	return text[:cut+cutLen]
}
