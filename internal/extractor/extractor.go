// Package extractor sends cleaned content plus a JSON schema to an LLM
// and returns structured data, grounded on the retry-then-validate loop
// of refyne's BaseLLMExtractor and backed by anthropic-sdk-go, with no
// call-site for the SDK found anywhere in the retrieved pack: its wiring
// here follows the SDK's documented Messages API.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/andreabozzo/ares/internal/apperrors"
	"github.com/andreabozzo/ares/internal/domain"
)

// Extractor is the pipeline-facing LLM extraction contract.
type Extractor interface {
	Extract(ctx context.Context, content string, schema domain.JSONBMap) (domain.JSONBMap, error)
}

// Factory builds an Extractor bound to a job's requested model and
// optional custom base URL, grounded on ares-core/src/traits.rs's
// ExtractorFactory trait.
type Factory interface {
	Create(model, baseURL string) (Extractor, error)
}

// Config tunes retry behavior shared by every LLM-backed extractor.
type Config struct {
	MaxRetries     int
	MaxTokens      int64
	Temperature    float64
	ExtractTimeout time.Duration
}

// DefaultConfig mirrors refyne's DefaultLLMConfig defaults for this domain.
func DefaultConfig() Config {
	return Config{MaxRetries: 2, MaxTokens: 4096, Temperature: 0, ExtractTimeout: 120 * time.Second}
}

// AnthropicFactory creates AnthropicExtractors; every Create call builds a
// new client for the given (model, baseURL), with no caching between calls.
type AnthropicFactory struct {
	apiKey string
	cfg    Config
}

// NewAnthropicFactory builds a Factory using apiKey for every client it
// creates.
func NewAnthropicFactory(apiKey string, cfg Config) *AnthropicFactory {
	return &AnthropicFactory{apiKey: apiKey, cfg: cfg}
}

// Create implements Factory.
func (f *AnthropicFactory) Create(model, baseURL string) (Extractor, error) {
	if model == "" {
		return nil, apperrors.NewConfig("extractor: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(f.apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicExtractor{client: &client, model: model, cfg: f.cfg}, nil
}

// AnthropicExtractor extracts structured JSON from content using Claude's
// Messages API, instructed via the prompt to respond with schema-shaped
// JSON only (Anthropic's API takes a JSON schema as extraction guidance
// rather than an OpenAI-style function-call contract).
type AnthropicExtractor struct {
	client *anthropic.Client
	model  string
	cfg    Config
}

// Extract implements Extractor, retrying failed attempts up to cfg.MaxRetries
// times. Only errors for which apperrors.Retryable is true (network,
// timeout, rate limit, retryable LLM status) are retried; a malformed or
// schema-invalid response is not, matching refyne's isRetryable policy
// that retrying a model's own non-conformance wastes tokens without
// changing the outcome.
func (e *AnthropicExtractor) Extract(ctx context.Context, content string, schema domain.JSONBMap) (domain.JSONBMap, error) {
	schemaJSON, err := schema.CanonicalJSON()
	if err != nil {
		return nil, apperrors.NewSerialization("marshal extraction schema", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		data, err := e.extractOnce(ctx, content, schemaJSON)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !apperrors.Retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (e *AnthropicExtractor) extractOnce(ctx context.Context, content string, schemaJSON []byte) (domain.JSONBMap, error) {
	prompt := fmt.Sprintf(
		"Extract structured data from the content below as a single JSON object matching this JSON schema exactly. "+
			"Respond with JSON only, no prose, no markdown code fences.\n\nSchema:\n%s\n\nContent:\n%s",
		schemaJSON, content,
	)

	timeout := e.cfg.ExtractTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := e.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeout(int(timeout.Seconds()))
		}
		return nil, classifyAnthropicError(err)
	}

	var raw string
	for _, block := range msg.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}

	jsonText := stripMarkdownCodeBlock(raw)

	var data domain.JSONBMap
	if err := json.Unmarshal([]byte(jsonText), &data); err != nil {
		return nil, apperrors.NewSchema(fmt.Sprintf("failed to parse model response as JSON: %v", err))
	}
	return data, nil
}

// stripMarkdownCodeBlock removes a leading/trailing ```json ... ``` or
// ``` ... ``` fence, since models frequently wrap JSON in one despite
// being asked not to.
func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		status := apiErr.StatusCode
		switch status {
		case 429:
			return apperrors.NewRateLimit()
		case 500, 502, 503, 504:
			return apperrors.NewLLM(status, apiErr.Error(), true)
		default:
			return apperrors.NewLLM(status, apiErr.Error(), false)
		}
	}
	return apperrors.NewLLM(0, err.Error(), false)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	for err != nil {
		if apiErr, ok := err.(*anthropic.Error); ok {
			*target = apiErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
