// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var openaiTracer = otel.Tracer("archmentor.llm.openai")

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	// APIKey authenticates against the provider. Required.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible local
	// servers (e.g. an Ollama or vLLM gateway). Empty uses api.openai.com.
	BaseURL string

	// LargeModel backs TierLarge. Default: gpt-4o.
	LargeModel string

	// SmallModel backs TierSmall. Default: gpt-4o-mini.
	SmallModel string

	// Timeout is the per-call deadline. Default: 30s.
	Timeout time.Duration

	// RequestsPerSecond rate-limits outgoing calls. Default: 5.
	RequestsPerSecond float64

	// Logger for request logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// OpenAIClient implements Client against the OpenAI chat completions API.
//
// Thread Safety: safe for concurrent use.
type OpenAIClient struct {
	client     *openai.Client
	largeModel string
	smallModel string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Compile-time interface check.
var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client from the given config.
//
// Outputs:
//
//	*OpenAIClient - The configured client.
//	error - Non-nil if the API key is missing.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrUnavailable)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	if cfg.LargeModel == "" {
		cfg.LargeModel = openai.GPT4o
	}
	if cfg.SmallModel == "" {
		cfg.SmallModel = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientCfg),
		largeModel: cfg.LargeModel,
		smallModel: cfg.SmallModel,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     cfg.Logger,
	}, nil
}

// Chat implements Client.
//
// One retry with exponential backoff is applied to transient errors
// (rate limits, 5xx, network). Semantic failures (empty choice list)
// are not retried.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, params Params) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()

	model := c.largeModel
	if params.Tier == TierSmall {
		model = c.smallModel
	}
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.messages", len(messages)),
	)

	if len(messages) == 0 {
		return "", fmt.Errorf("openai: empty message list")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("openai: rate limiter: %w", err)
	}

	req := openai.ChatCompletionRequest{Model: model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature > 0 {
		req.Temperature = params.Temperature
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}

	text, err := c.chatOnce(ctx, req)
	if err != nil && isTransient(err) && ctx.Err() == nil {
		c.logger.Warn("transient LLM error, retrying", "error", err, "model", model)
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		text, err = c.chatOnce(ctx, req)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

// chatOnce performs a single completion call under the per-call timeout.
func (c *OpenAIClient) chatOnce(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// isTransient reports whether the error is worth one retry.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
