// Package providers contains the concrete LLM clients behind the gateway.
package providers

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/datapilot/internal/engine"
	"github.com/ChamsBouzaiene/datapilot/internal/gateway"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements gateway.Completer against the OpenAI chat
// completions API, or any OpenAI-compatible endpoint via a custom base URL
// (deepseek, groq, ollama, lmstudio, ...).
type OpenAIClient struct {
	client  *openai.Client
	baseURL string
}

// NewOpenAIClient creates an OpenAI-backed completer. baseURL may be empty
// for the official API.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		baseURL: baseURL,
	}
}

// Complete issues one chat completion. Capability parameters are passed
// through exactly as requested; the gateway owns the fallback decisions.
func (c *OpenAIClient) Complete(ctx context.Context, req gateway.Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openaiRole(m.Role),
			Content: m.Content,
		})
	}

	ccr := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	if len(req.Stop) > 0 {
		ccr.Stop = req.Stop
	}
	if req.Temperature != nil {
		ccr.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		switch req.MaxTokensParam {
		case gateway.TokenParamMaxCompletionTokens:
			ccr.MaxCompletionTokens = req.MaxTokens
		default:
			ccr.MaxTokens = req.MaxTokens
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI (model %s)", req.Model)
	}
	return resp.Choices[0].Message.Content, nil
}

func openaiRole(r engine.MessageRole) string {
	switch r {
	case engine.RoleSystem:
		return openai.ChatMessageRoleSystem
	case engine.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
