package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

const maxTransientRetries = 3

// AnthropicClient implements Client using the Anthropic API. Transient API
// failures (rate limits, server errors) are retried with exponential backoff
// before the error is surfaced to the pipeline.
type AnthropicClient struct {
	log       *slog.Logger
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient creates a client for the given model, authenticated
// with the given API key.
func NewAnthropicClient(log *slog.Logger, apiKey, model string, maxTokens int64) *AnthropicClient {
	return &AnthropicClient{
		log:       log,
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

// Complete sends a prompt to the model and returns the response text.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.log.Debug("llm: API call starting", "model", c.model, "userPromptLen", len(userPrompt))

	var msg *anthropic.Message
	operation := func() error {
		var err error
		msg, err = c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("llm: transient API error, retrying", "error", err)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxTransientRetries), ctx)
	err := backoff.Retry(operation, policy)
	CallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Error("llm: API call failed", "duration", time.Since(start), "error", err)
		if IsRateLimited(err) {
			CallsTotal.WithLabelValues("rate_limited").Inc()
		} else {
			CallsTotal.WithLabelValues("error").Inc()
		}
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	CallsTotal.WithLabelValues("success").Inc()
	c.log.Debug("llm: API call completed", "duration", time.Since(start), "stopReason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// isTransient reports whether an API error is worth retrying: rate limits,
// request timeouts, and server-side failures.
func isTransient(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.StatusCode == 429:
		return true
	case apiErr.StatusCode == 408:
		return true
	case apiErr.StatusCode >= 500:
		return true
	}
	return false
}

// IsRateLimited reports whether an error chain contains an API rate limit
// response. Callers use it to pick a friendlier user-facing message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit_error")
}
