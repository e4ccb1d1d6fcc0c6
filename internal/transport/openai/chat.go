package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// UsageRecorder feeds consumed tokens into the shared budget tracker.
type UsageRecorder interface {
	Record(tokens int64)
}

// ChatConfig holds the chat provider settings shared by the LLM collaborators.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	User        string
	Provider    string
	Usage       UsageRecorder
	Logger      *zap.Logger
}

// ChatClient is the shared chat-completion caller behind the generation,
// expansion, routing and rerank collaborators.
type ChatClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	user        string
	provider    string
	usage       UsageRecorder
	logger      *zap.Logger
}

// NewChatClient creates an OpenAI-compatible chat client.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &ChatClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		user:        cfg.User,
		provider:    cfg.Provider,
		usage:       cfg.Usage,
		logger:      cfg.Logger,
	}
}

// complete runs one system+user chat completion. The op label names the
// calling collaborator for metrics.
func (c *ChatClient) complete(ctx context.Context, op, system, user string) (string, openai.Usage, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		User:        c.user,
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, op, "error").Inc()
		return "", openai.Usage{}, parseChatError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, op, "error").Inc()
		return "", openai.Usage{}, fmt.Errorf("empty chat response")
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.provider, c.model, op, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(c.provider, c.model, op).Observe(duration.Seconds())
	c.recordTokens(ctx, resp.Usage)

	c.logger.Debug("Chat completion",
		zap.String("op", op),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration))

	return resp.Choices[0].Message.Content, resp.Usage, nil
}

func (c *ChatClient) recordTokens(ctx context.Context, u openai.Usage) {
	if u.TotalTokens > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(u.PromptTokens))
		metrics.GenerationTokensTotal.WithLabelValues(c.model, "completion").Add(float64(u.CompletionTokens))
	}
	domain.UsageFromContext(ctx).AddGenerationTokens(u.TotalTokens)
	if c.usage != nil {
		c.usage.Record(int64(u.TotalTokens))
	}
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *ChatClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseChatError extracts a human-readable error from the API response.
// HTTP 429 additionally wraps domain.ErrRateLimited so callers can map it
// before the collaborator sentinel.
func parseChatError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("chat API error %d: %s: %w", reqErr.HTTPStatusCode, detail, domain.ErrRateLimited)
		}
		return fmt.Errorf("chat API error %d: %s", reqErr.HTTPStatusCode, detail)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("chat API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, domain.ErrRateLimited)
		}
		return fmt.Errorf("chat API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("chat request failed: %w", err)
}
