// Package structured asks a chat model for a JSON object of a known shape.
//
// One Execute call is a small state machine:
//
//	attempt -> reply ok    -> validate -> Result | ErrMalformedResponse
//	        -> oversize    -> halve max_tokens, wait, attempt
//	        -> other error -> wait, attempt
//	        -> no attempts remaining -> ErrExhausted
//
// Malformed replies are returned at once and are never retried.
package structured

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/featsmith/ai/openai"
	"github.com/teranos/featsmith/ai/provider"
	"github.com/teranos/featsmith/ai/tracker"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/internal/util"
	"github.com/teranos/featsmith/logger"
)

// ErrExhausted is returned when every attempt failed. It is marked
// ErrTransientService; callers treat it as "no result".
var ErrExhausted = errors.Mark(errors.New("model attempts exhausted"), errors.ErrTransientService)

// Defaults used when Options leaves a field zero
const (
	DefaultMaxAttempts = 21
	DefaultMaxTokens   = 4096
	DefaultRetryDelay  = 10 * time.Second
)

// UsageRecorder stores one row per model attempt
type UsageRecorder interface {
	TrackUsage(usage *tracker.ModelUsage) error
}

// Observer receives one call per model attempt; outcome is "success" or an
// errors.Category name.
type Observer interface {
	ObserveModelAttempt(operation, outcome string, duration time.Duration)
}

// Options configures a Client
type Options struct {
	SystemPrompt      string
	Provider          string // recorded with usage rows
	Model             string // recorded with usage rows; the transport picks the model
	MaxTokens         int
	MaxAttempts       int
	RetryDelay        time.Duration // negative disables the wait
	RequestsPerMinute int           // 0 = unlimited
	Recorder          UsageRecorder
	Observer          Observer
	Logger            *zap.SugaredLogger
}

// Request is one structured query
type Request struct {
	Prompt      string
	Shape       Shape
	Temperature float64
	Operation   string // "generate", "repair"; labels usage rows and metrics
	Entity      string // unit name the request is for
}

// Result is a validated reply
type Result struct {
	Raw       string
	Fields    map[string]string
	Attempts  int
	MaxTokens int // budget of the successful attempt
	Usage     openai.Usage
}

// Field returns one validated value
func (r *Result) Field(key string) string {
	return r.Fields[key]
}

// Client wraps a chat transport with retry, budget halving and validation
type Client struct {
	ai      provider.AIClient
	opts    Options
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient creates a structured client over ai
func NewClient(ai provider.AIClient, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	c := &Client{
		ai:     ai,
		opts:   opts,
		logger: logger.OrNop(opts.Logger).Named("model"),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	return c
}

// BuildPrompt appends the JSON reply instruction for shape to prompt
func BuildPrompt(prompt string, shape Shape) string {
	return prompt + "\n\nPlease only reply with JSON format:\n" + shape.Format() + "\n"
}

// Query is Execute without operation labels
func (c *Client) Query(ctx context.Context, prompt string, shape Shape, temperature float64) (*Result, error) {
	return c.Execute(ctx, Request{Prompt: prompt, Shape: shape, Temperature: temperature})
}

// Execute runs the attempt loop for req
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, errors.NewInvalidRequestError("prompt is empty")
	}
	if len(req.Shape.keys) == 0 {
		return nil, errors.NewInvalidRequestError("shape is empty")
	}

	log := c.logger
	if req.Entity != "" {
		log = log.With(logger.FieldUnit, req.Entity)
	}

	userPrompt := BuildPrompt(req.Prompt, req.Shape)
	temperature := req.Temperature
	maxTokens := c.opts.MaxTokens
	attemptsRemaining := c.opts.MaxAttempts
	attempt := 0
	var lastErr error

	for attemptsRemaining > 0 {
		if attempt > 0 {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, errors.Wrap(err, "rate limiter")
			}
		}

		attempt++
		attemptsRemaining--
		budget := maxTokens

		started := time.Now()
		resp, err := c.ai.Chat(ctx, openai.ChatRequest{
			SystemPrompt: c.opts.SystemPrompt,
			UserPrompt:   userPrompt,
			Temperature:  util.Ptr(temperature),
			MaxTokens:    util.Ptr(budget),
			JSONObject:   true,
		})
		if err == nil {
			var fields map[string]string
			fields, err = req.Shape.Validate(resp.Content)
			c.record(req, started, budget, resp, err)
			if err != nil {
				log.Warnw("Model reply does not match shape",
					logger.FieldAttempt, attempt,
					logger.FieldError, err,
				)
				return nil, errors.Wrapf(err, "attempt %d", attempt)
			}
			log.Debugw("Model reply accepted",
				logger.FieldAttempt, attempt,
				logger.FieldMaxTokens, budget,
			)
			return &Result{
				Raw:       resp.Content,
				Fields:    fields,
				Attempts:  attempt,
				MaxTokens: budget,
				Usage:     resp.Usage,
			}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.record(req, started, budget, nil, err)

		if errors.Is(err, errors.ErrMalformedResponse) || errors.IsInvalidRequestError(err) {
			return nil, errors.Wrapf(err, "attempt %d", attempt)
		}
		if errors.IsOversize(err) {
			maxTokens = halve(maxTokens)
		}

		log.Warnw("Model attempt failed",
			logger.FieldAttempt, attempt,
			logger.FieldMaxTokens, budget,
			"attempts_remaining", attemptsRemaining,
			logger.FieldCategory, errors.Category(err),
			logger.FieldError, err,
		)
		lastErr = err
	}

	return nil, errors.WithSecondaryError(
		errors.Wrapf(ErrExhausted, "gave up after %d attempts", attempt),
		lastErr,
	)
}

func halve(n int) int {
	if n <= 1 {
		return 1
	}
	return n / 2
}

func (c *Client) wait(ctx context.Context) error {
	if c.opts.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.opts.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) record(req Request, started time.Time, budget int, resp *openai.ChatResponse, err error) {
	outcome := "success"
	if err != nil {
		outcome = errors.Category(err)
	}
	finished := time.Now()
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveModelAttempt(req.Operation, outcome, finished.Sub(started))
	}
	if c.opts.Recorder == nil {
		return
	}

	usage := &tracker.ModelUsage{
		OperationType:     req.Operation,
		EntityType:        "unit",
		EntityID:          req.Entity,
		ModelName:         c.opts.Model,
		ModelProvider:     c.opts.Provider,
		ModelConfig:       tracker.NewModelConfig(util.Ptr(req.Temperature), util.Ptr(budget)),
		RequestTimestamp:  started,
		ResponseTimestamp: &finished,
		Success:           err == nil,
	}
	if resp != nil {
		if resp.Model != "" {
			usage.ModelName = resp.Model
		}
		usage.TokensUsed = util.Ptr(resp.Usage.TotalTokens)
		for _, name := range []string{usage.ModelName, c.opts.Model} {
			if cost, ok := openai.CalculateCost(name, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
				usage.Cost = util.Ptr(cost)
				break
			}
		}
	}
	if err != nil {
		usage.ErrorMessage = util.Ptr(err.Error())
	}

	if trackErr := c.opts.Recorder.TrackUsage(usage); trackErr != nil {
		c.logger.Warnw("Failed to track model usage", logger.FieldError, trackErr)
	}
}
