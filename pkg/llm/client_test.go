package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/commentscope/pkg/config"
	"github.com/umputun/commentscope/pkg/domain"
)

var testComments = []domain.Comment{
	{ID: "c1", Text: "please do a video about Go generics", LikeCount: 12, ReplyCount: 1},
	{ID: "c2", Text: "great video!", LikeCount: 3},
}

func TestClient_GenerateOpenAI(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: `{"summary":"viewers want generics"}`}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient(config.LLMConfig{
		Provider:    config.ProviderOpenAI,
		Endpoint:    server.URL + "/v1",
		APIKey:      "test-key",
		Model:       "gemini-2.5-flash",
		Temperature: 0.3,
		MaxTokens:   1000,
		UseJSONMode: true,
	})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), testComments, "English")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"viewers want generics"}`, text)

	assert.Equal(t, "gemini-2.5-flash", gotReq.Model)
	assert.Equal(t, 1000, gotReq.MaxTokens)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, gotReq.ResponseFormat.Type)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "5: Negative")
	assert.Contains(t, gotReq.Messages[1].Content, "Target Language: English")
	assert.Contains(t, gotReq.Messages[1].Content, `{"index":0,"text":"please do a video about Go generics","likes":12,"replies":1}`)
	assert.Contains(t, gotReq.Messages[1].Content, "MUST contain exactly 2 items")
}

func TestClient_GenerateAnthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-sonnet-4-5", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_01","type":"message","role":"assistant","model":"claude-sonnet-4-5",
"content":[{"type":"text","text":"{\"summary\":\"from claude\"}"}],
"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer server.Close()

	client, err := NewClient(config.LLMConfig{
		Provider:  config.ProviderAnthropic,
		Endpoint:  server.URL,
		APIKey:    "test-key",
		Model:     "claude-sonnet-4-5",
		MaxTokens: 1000,
	})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), testComments, "English")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"from claude"}`, text)
}

func TestClient_GenerateFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client, err := NewClient(config.LLMConfig{Endpoint: server.URL + "/v1", APIKey: "k", Model: "m"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), testComments, "English")
	require.ErrorIs(t, err, domain.ErrUpstreamGeneration)
	assert.Contains(t, err.Error(), "openai")
	assert.Equal(t, 1, calls, "generation is never retried")
}

func TestClient_GenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(config.LLMConfig{Endpoint: server.URL + "/v1", APIKey: "k", Model: "m", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	st := time.Now()
	_, err = client.Generate(context.Background(), testComments, "English")
	require.ErrorIs(t, err, domain.ErrUpstreamGeneration)
	assert.Less(t, time.Since(st), time.Second)
}

func TestClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(config.LLMConfig{Endpoint: server.URL + "/v1", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), testComments, "English")
	require.ErrorIs(t, err, domain.ErrUpstreamGeneration)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "bard"})
	require.Error(t, err)

	client, err := NewClient(config.LLMConfig{SystemPrompt: "custom prompt"})
	require.NoError(t, err)
	assert.Equal(t, "custom prompt", client.system)
	assert.Equal(t, config.ProviderOpenAI, client.provider)
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := buildPrompt(testComments, "Japanese")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "Analyze the following 2 comments."))
	assert.Contains(t, prompt, "Target Language: Japanese")
	assert.Contains(t, prompt, `{"index":1,"text":"great video!","likes":3,"replies":0}`)
	assert.NotContains(t, prompt, "c1", "comment ids are not sent to the model")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "héllo...", preview("héllo wörld", 5))
}
