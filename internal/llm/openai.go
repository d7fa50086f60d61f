package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"answer-engine/internal/common/config"
	commonerrors "answer-engine/internal/common/errors"
	"answer-engine/internal/common/logger"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Completer over an OpenAI-compatible chat API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  logger.Logger
}

func NewOpenAIClient(cfg config.LLMConfig, log logger.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		logger:  log.WithFields(map[string]interface{}{"component": "llm"}),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instructions},
			{Role: openai.ChatMessageRoleUser, Content: req.Context},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, c.classify(callCtx, req.Stage, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", ErrMalformed)
	}

	c.logger.Debug("completion finished", map[string]interface{}{
		"stage":      req.Stage,
		"durationMs": time.Since(start).Milliseconds(),
	})

	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// classify maps transport errors onto the capability's sentinel errors so
// callers can distinguish a timeout (fallback) from an unreachable model
// (fatal to the request).
func (c *OpenAIClient) classify(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		c.logger.WithError(commonerrors.NewLLMTimeoutError(stage)).Warn("completion timed out", map[string]interface{}{"stage": stage})
		return fmt.Errorf("%w: stage %s", ErrTimeout, stage)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: stage %s", ErrTimeout, stage)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// The API answered; the model is reachable but the call failed.
		return fmt.Errorf("%w: stage %s: api status %d", ErrMalformed, stage, apiErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: stage %s", ErrTimeout, stage)
	}

	c.logger.Error("llm unreachable", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
