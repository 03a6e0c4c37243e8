package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/umputun/commentscope/pkg/config"
)

// anthropicBackend calls the Anthropic messages API
type anthropicBackend struct {
	client anthropic.Client
	cfg    config.LLMConfig
}

func newAnthropicBackend(cfg config.LLMConfig) *anthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &anthropicBackend{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (b *anthropicBackend) complete(ctx context.Context, system, user string) (string, error) {
	message, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(b.cfg.Model),
		MaxTokens:   int64(b.cfg.MaxTokens),
		Temperature: anthropic.Float(b.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}
