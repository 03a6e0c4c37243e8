// Package llm talks to the generation service. It builds the comment analysis prompt,
// sends it through one of the supported backends and recovers structured output from
// whatever text comes back.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/commentscope/pkg/config"
	"github.com/umputun/commentscope/pkg/domain"
)

// completer sends a single system+user exchange to a model and returns its text
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// Client generates comment analyses with the configured backend
type Client struct {
	backend  completer
	provider string
	timeout  time.Duration
	system   string
}

// NewClient makes a client for the provider set in cfg
func NewClient(cfg config.LLMConfig) (*Client, error) {
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	res := &Client{provider: cfg.Provider, timeout: cfg.Timeout, system: system}
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		res.provider = config.ProviderOpenAI
		res.backend = newOpenAIBackend(cfg)
	case config.ProviderAnthropic:
		res.backend = newAnthropicBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	return res, nil
}

// promptComment is the reduced view of a comment sent to the model
type promptComment struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Likes   int64  `json:"likes"`
	Replies int64  `json:"replies"`
}

// Generate sends all comments as one batch and returns the raw model text.
// There is no retry, a failed call is reported as domain.ErrUpstreamGeneration.
func (c *Client) Generate(ctx context.Context, comments []domain.Comment, language string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt, err := buildPrompt(comments, language)
	if err != nil {
		return "", err
	}

	st := time.Now()
	text, err := c.backend.complete(ctx, c.system, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrUpstreamGeneration, c.provider, err)
	}
	lgr.Printf("[DEBUG] %s responded in %v with %d bytes: %s", c.provider, time.Since(st).Round(time.Millisecond),
		len(text), preview(text, 50))
	return text, nil
}

// buildPrompt creates the user message with the comment batch
func buildPrompt(comments []domain.Comment, language string) (string, error) {
	batch := make([]promptComment, len(comments))
	for i, cm := range comments {
		batch[i] = promptComment{Index: i, Text: cm.Text, Likes: cm.LikeCount, Replies: cm.ReplyCount}
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal comments: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze the following %d comments.\n\n", len(comments)))
	sb.WriteString(fmt.Sprintf("Target Language: %s (write the summary, reasons and ideas in this language)\n\n", language))
	sb.WriteString("IMPORTANT CONSTRAINTS:\n")
	sb.WriteString(fmt.Sprintf("1. The \"classifications\" array MUST contain exactly %d items.\n", len(comments)))
	sb.WriteString("2. Every comment provided in the input MUST have a corresponding classification entry.\n")
	sb.WriteString("3. Strictly map the \"i\" field to the input \"index\".\n\n")
	sb.WriteString("Input Data:\n")
	sb.Write(data)
	sb.WriteString("\n")
	return sb.String(), nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// default system prompt with the output shape and the fixed classification scheme
const defaultSystemPrompt = `You are an expert YouTube comment analyst. Analyze the given comments deeply.

Output Format: PURE JSON object (Do NOT use Markdown code blocks).

JSON Structure:
{
  "summary": "A concise executive summary (50-100 words). Focus on the main discussion points and atmosphere. Ignore spam.",
  "sentiment_score": 0-100 (0=Toxic/Hate, 50=Neutral, 100=Love/Support),
  "video_ideas": ["Idea 1", "Idea 2", "Idea 3"] (derived from viewer requests),
  "highlighted_comments": [
    { "index": <original_index>, "reason": "Why this comment is valuable" }
  ],
  "classifications": [
    { "i": <index>, "c": <category_id> }
  ]
}

Classification Rules (strictly map to these IDs):
1: Constructive/Ideas (specific suggestions for improvement, "I hope you do X next time", future topic requests).
2: Questions (genuine information-seeking inquiries only. EXCLUDE rhetorical questions, sarcasm, jokes ending in '?', or rhetorical praise like "How can this be so good?").
3: Positive (praise, appreciation, "Love this", support).
4: Neutral/Personal/Jokes (personal stories, stating facts, jokes, sarcasm, emojis, or anything that doesn't fit other categories. This is the catch-all bucket).
5: Negative (criticism, complaints, hate speech, or harsh feedback).`
