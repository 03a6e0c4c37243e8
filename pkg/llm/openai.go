package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/commentscope/pkg/config"
)

// openAIBackend calls any OpenAI-compatible chat completion endpoint
type openAIBackend struct {
	client *openai.Client
	cfg    config.LLMConfig
}

func newOpenAIBackend(cfg config.LLMConfig) *openAIBackend {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &openAIBackend{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

func (b *openAIBackend) complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.cfg.Model,
		Temperature: float32(b.cfg.Temperature),
		MaxTokens:   b.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if b.cfg.UseJSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
