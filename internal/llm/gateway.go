// Package llm talks to the external completion service. The gateway trusts
// the model's adherence to the schema requested in the prompt: it checks
// that the reply parses as JSON and nothing more, so callers must verify
// the keys they rely on.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrUpstreamUnavailable indicates the completion service could not be
	// reached or answered with a failure status.
	ErrUpstreamUnavailable = errors.New("llm: completion service unavailable")
	// ErrMalformedModelOutput indicates the service answered but the reply
	// is not the JSON it was asked for.
	ErrMalformedModelOutput = errors.New("llm: model reply is not valid JSON")

	errMissingAPIKey = errors.New("llm: api key is required")
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "openai/gpt-oss-120b"
	defaultTimeout = 60 * time.Second
)

// GatewayConfig describes the connection to the completion service.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Gateway is a thin client for an OpenAI-compatible chat completions API.
type Gateway struct {
	client *resty.Client
	model  string
	logger *zap.Logger
}

// NewGateway constructs the completion gateway. Transport-level failures are
// retried once; anything the service actually answered is not.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(timeout).
		SetRetryCount(1)

	return &Gateway{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt as a single user message requesting a JSON
// object reply and returns the raw parsed body. No structural validation is
// performed beyond JSON well-formedness.
func (g *Gateway) Complete(ctx context.Context, userPrompt string) (json.RawMessage, error) {
	request := chatCompletionRequest{
		Model:          g.model,
		Messages:       []chatMessage{{Role: "user", Content: userPrompt}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var reply chatCompletionResponse
	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&reply).
		Post("/chat/completions")
	if err != nil {
		g.logger.Error("completion request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if response.IsError() {
		g.logger.Error("completion request rejected",
			zap.Int("status", response.StatusCode()),
			zap.String("body", response.String()))
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, response.StatusCode())
	}

	if len(reply.Choices) == 0 {
		g.logger.Error("completion reply has no choices")
		return nil, fmt.Errorf("%w: empty choices", ErrMalformedModelOutput)
	}
	content := strings.TrimSpace(reply.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		g.logger.Error("completion reply is not JSON", zap.String("model", g.model))
		return nil, ErrMalformedModelOutput
	}
	return json.RawMessage(content), nil
}
