package providers

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
	"github.com/ChamsBouzaiene/datapilot/internal/gateway"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient implements gateway.Completer against the Anthropic
// messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic-backed completer.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}
}

// Complete issues one messages request. Anthropic has no alternative
// token-param spelling, so MaxTokensParam is accepted and ignored; stop
// sequences and temperature map directly.
func (c *AnthropicClient) Complete(ctx context.Context, req gateway.Request) (string, error) {
	var systemParts []anthropic.MessageSystemPart
	var msgs []anthropic.Message

	for _, m := range req.Messages {
		switch m.Role {
		case engine.RoleSystem:
			systemParts = append(systemParts, anthropic.MessageSystemPart{
				Type: "text",
				Text: m.Content,
			})
		case engine.RoleAssistant:
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
			})
		default:
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
			})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	mr := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if len(systemParts) > 0 {
		mr.MultiSystem = systemParts
	}
	if len(req.Stop) > 0 {
		mr.StopSequences = req.Stop
	}
	if req.Temperature != nil {
		mr.Temperature = req.Temperature
	}

	resp, err := c.client.CreateMessages(ctx, mr)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	text := resp.GetFirstContentText()
	if text == "" {
		return "", fmt.Errorf("empty response from Anthropic (model %s)", req.Model)
	}
	// Anthropic strips the matched stop sequence from the text; restore it
	// so the parser always sees a closed tag.
	if resp.StopReason == anthropic.MessagesStopReasonStopSequence && resp.StopSequence != "" {
		text += resp.StopSequence
	}
	return text, nil
}
