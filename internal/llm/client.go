package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/config"
	log "github.com/tuannvm/workitem-qa/internal/logging"
)

// ErrDisabled is returned by every call when no completion service is
// configured. Stages treat it like any other failure and use their fallback.
var ErrDisabled = errors.New("completion service disabled")

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("empty completion response")

// Request is one call to the completion service.
type Request struct {
	System string
	User   string
	// Schema, when set, is a JSON schema the answer must follow. It switches
	// the model into JSON mode.
	Schema      string
	Temperature float64
	MaxTokens   int
}

// Completer defines the interface for interacting with LLM services
type Completer interface {
	// Complete sends the request and returns the raw completion text
	Complete(ctx context.Context, req Request) (string, error)
}

// Streamer is a Completer that can emit the answer incrementally.
type Streamer interface {
	Completer
	// Stream calls onToken for every chunk and returns the full text.
	Stream(ctx context.Context, req Request, onToken func(string) error) (string, error)
}

// Client implements Streamer using langchain-go
type Client struct {
	llm       llms.Model
	maxTokens int
	timeout   time.Duration
}

var _ Streamer = (*Client)(nil)

// NewClient creates a new LLM client based on the provided configuration.
// A disabled configuration yields Disabled.
func NewClient(cfg *config.Config) (Streamer, error) {
	if !cfg.LLMEnabled {
		return Disabled{}, nil
	}

	var llmModel llms.Model
	var err error

	// Select LLM provider based on configuration
	switch cfg.LLMProvider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.LLMAPIKey),
			openai.WithModel(cfg.LLMModel),
		}
		if cfg.LLMServiceURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMServiceURL))
		}
		llmModel, err = openai.New(opts...)
	case "azure":
		llmModel, err = openai.New(
			openai.WithToken(cfg.LLMAPIKey),
			openai.WithModel(cfg.LLMModel),
			openai.WithBaseURL(cfg.LLMServiceURL),
			openai.WithAPIType(openai.APITypeAzure),
		)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.LLMModel)}
		if cfg.LLMServiceURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.LLMServiceURL))
		}
		llmModel, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewClientFromModel(llmModel, cfg.LLMMaxTokens, cfg.LLMTimeout), nil
}

// NewClientFromModel wraps an already constructed model.
func NewClientFromModel(model llms.Model, maxTokens int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{llm: model, maxTokens: maxTokens, timeout: timeout}
}

// Complete sends the request and returns the completion text
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req, nil)
}

// Stream sends the request and forwards chunks to onToken as they arrive.
func (c *Client) Stream(ctx context.Context, req Request, onToken func(string) error) (string, error) {
	return c.generate(ctx, req, onToken)
}

func (c *Client) generate(ctx context.Context, req Request, onToken func(string) error) (string, error) {
	if c.llm == nil {
		return "", errors.New("LLM client not initialized")
	}

	log.Debugf("Sending prompt to LLM: %s", log.Truncate(req.User))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	system := req.System
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if maxTokens := c.tokens(req); maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	if req.Schema != "" {
		system += "\n\nRespond only with a JSON object matching this schema:\n" + req.Schema
		opts = append(opts, llms.WithJSONMode())
	}
	if onToken != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return onToken(string(chunk))
		}))
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}
	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	completion := resp.Choices[0].Content

	log.Debugf("Received response from LLM: %s", log.Truncate(completion))

	return completion, nil
}

func (c *Client) tokens(req Request) int {
	if req.MaxTokens > 0 && (c.maxTokens <= 0 || req.MaxTokens < c.maxTokens) {
		return req.MaxTokens
	}
	return c.maxTokens
}

// CompleteJSON runs req and decodes the first JSON object in the answer.
// The result is untrusted and must be coerced field by field.
func CompleteJSON(ctx context.Context, c Completer, req Request) (map[string]interface{}, error) {
	text, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	obj, err := common.DecodeObject(text)
	if err != nil {
		return nil, fmt.Errorf("malformed completion: %w", err)
	}
	return obj, nil
}

// Disabled fails every call with ErrDisabled.
type Disabled struct{}

func (Disabled) Complete(context.Context, Request) (string, error) { return "", ErrDisabled }

func (Disabled) Stream(context.Context, Request, func(string) error) (string, error) {
	return "", ErrDisabled
}
