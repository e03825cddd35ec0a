// Package openai is a client for OpenAI-compatible /chat/completions
// endpoints (OpenAI, OpenRouter, Ollama and other local servers).
//
// The client makes exactly one HTTP request per Chat call. Retry policy
// belongs to the caller (see ai/structured); the client only classifies
// failures with the marks from package errors.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/internal/httpclient"
	"github.com/teranos/featsmith/logger"
)

const (
	// DefaultBaseURL is the OpenAI API root
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when Config.Model is empty
	DefaultModel = "gpt-4o"

	// DefaultTimeout bounds a single HTTP request
	DefaultTimeout = 120 * time.Second

	// maxErrorBody caps how much of an error response is kept in messages
	maxErrorBody = 2048
)

// oversizePhrases are substrings that providers use when a request exceeds
// the model context window.
var oversizePhrases = []string{
	"maximum context length",
	"context_length_exceeded",
	"too many tokens",
}

// Client talks to one OpenAI-compatible endpoint
type Client struct {
	config     Config
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// Config holds client configuration
type Config struct {
	BaseURL      string
	APIKey       string // optional for local servers
	Model        string
	Temperature  *float64 // nil = server default
	MaxTokens    *int     // nil = server default
	Timeout      time.Duration
	AllowPrivate bool   // permit loopback/private base URLs
	Title        string // X-Title header, used by OpenRouter dashboards
	Logger       *zap.SugaredLogger
}

// NewClient creates a client with defaults applied
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		config: config,
		httpClient: httpclient.New(httpclient.Options{
			Timeout:      config.Timeout,
			AllowPrivate: config.AllowPrivate,
		}),
		logger: logger.OrNop(config.Logger).Named("openai"),
	}
}

// ChatRequest is a single-turn request
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // overrides Config.Temperature
	MaxTokens    *int     // overrides Config.MaxTokens
	Model        *string  // overrides Config.Model
	JSONObject   bool     // request response_format {"type":"json_object"}
}

// ChatResponse is the first choice of a completion
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// ChatCompletionRequest is the wire request body
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	N              int             `json:"n,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat selects structured output
type ResponseFormat struct {
	Type string `json:"type"`
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the wire response body
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token accounting reported by the server
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is a non-200 response
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "API request failed with status %d", e.StatusCode)
	if e.Code != "" {
		b.WriteString(" (" + e.Code + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

type errorEnvelope struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
	} `json:"error"`
}

// Chat sends one chat completion request
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	wire := c.buildRequest(req)

	c.logger.Debugw("Chat request",
		logger.FieldModel, wire.Model,
		logger.FieldMaxTokens, wire.MaxTokens,
		"json_object", req.JSONObject,
		"prompt_length", len(req.UserPrompt),
	)

	resp, err := c.CreateChatCompletion(ctx, wire)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Mark(errors.New("no response choices"), errors.ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	c.logger.Debugw("Chat response",
		logger.FieldModel, resp.Model,
		"finish_reason", choice.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return &ChatResponse{
		Content:      strings.TrimSpace(choice.Message.Content),
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}, nil
}

func (c *Client) buildRequest(req ChatRequest) ChatCompletionRequest {
	model := c.config.Model
	if req.Model != nil {
		model = *req.Model
	}
	temperature := c.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	maxTokens := c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = req.MaxTokens
	}

	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: req.UserPrompt})

	wire := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		N:           1,
	}
	if req.JSONObject {
		wire.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return wire
}

// CreateChatCompletion posts a raw request. Failures are marked:
// oversize requests with ErrOversizeRequest, rate limits, server errors
// and transport failures with ErrTransientService, and rejected
// credentials with ErrInvalidRequest.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Title != "" {
		httpReq.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Mark(errors.Wrap(err, "failed to send request"), errors.ErrTransientService)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response"), errors.ErrTransientService)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(parseAPIError(resp.StatusCode, respBody))
	}

	var out ChatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to unmarshal response"), errors.ErrMalformedResponse)
	}
	return &out, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		apiErr.Code = strings.Trim(string(env.Error.Code), `"`)
		if apiErr.Code == "null" {
			apiErr.Code = ""
		}
		return apiErr
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	apiErr.Message = msg
	return apiErr
}

func classify(apiErr *APIError) error {
	err := errors.WithStack(apiErr)
	switch {
	case apiErr.StatusCode == http.StatusRequestEntityTooLarge || isOversizeMessage(apiErr.Message+" "+apiErr.Code):
		return errors.Mark(err, errors.ErrOversizeRequest)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return errors.WithHint(errors.Mark(err, errors.ErrInvalidRequest),
			"check model.api_key, model.api_key_file or OPENAI_API_KEY")
	case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
		return errors.Mark(err, errors.ErrTransientService)
	default:
		return err
	}
}

func isOversizeMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range oversizePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsConfigured reports whether an API key is set
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// SetHTTPClient replaces the transport; tests use it with httptest servers.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}
