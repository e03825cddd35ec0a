package structured

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/featsmith/ai/openai"
	"github.com/teranos/featsmith/ai/tracker"
	"github.com/teranos/featsmith/errors"
)

var codeShape = MustShape("move_code")

// scriptedAI replays one step per Chat call; the last step repeats.
type scriptedAI struct {
	mu       sync.Mutex
	steps    []step
	requests []openai.ChatRequest
}

type step struct {
	content string
	err     error
}

func (s *scriptedAI) Chat(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	return &openai.ChatResponse{Content: st.content, Model: "gpt-4o", Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}}, nil
}

func (s *scriptedAI) budgets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.requests))
	for i, r := range s.requests {
		out[i] = *r.MaxTokens
	}
	return out
}

type recorder struct {
	mu   sync.Mutex
	rows []*tracker.ModelUsage
}

func (r *recorder) TrackUsage(u *tracker.ModelUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, u)
	return nil
}

type observer struct {
	outcomes []string
}

func (o *observer) ObserveModelAttempt(operation, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, operation+":"+outcome)
}

func transient() error {
	return errors.Mark(errors.New("502 bad gateway"), errors.ErrTransientService)
}

func oversize() error {
	return errors.Mark(errors.New("This model's maximum context length is 128000 tokens"), errors.ErrOversizeRequest)
}

func newClient(t *testing.T, ai *scriptedAI, opts Options) *Client {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t).Sugar()
	if opts.RetryDelay == 0 {
		opts.RetryDelay = -1
	}
	return NewClient(ai, opts)
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Write a Move module.", codeShape)
	assert.Equal(t, "Write a Move module.\n\nPlease only reply with JSON format:\n{\"move_code\": \"FILL_IN_CODE\"}\n", got)
}

func TestQuerySuccess(t *testing.T) {
	ai := &scriptedAI{steps: []step{{content: `{"move_code": "module 0x1::m {}"}`}}}
	rec := &recorder{}
	c := newClient(t, ai, Options{SystemPrompt: "You are a Move expert.", Recorder: rec, Model: "gpt-4o", Provider: "openai"})

	res, err := c.Query(context.Background(), "write casting", codeShape, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "module 0x1::m {}", res.Field("move_code"))
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, DefaultMaxTokens, res.MaxTokens)

	require.Len(t, ai.requests, 1)
	req := ai.requests[0]
	assert.Equal(t, "You are a Move expert.", req.SystemPrompt)
	assert.True(t, req.JSONObject)
	assert.Equal(t, 0.5, *req.Temperature)
	assert.Contains(t, req.UserPrompt, "Please only reply with JSON format:")

	require.Len(t, rec.rows, 1)
	assert.True(t, rec.rows[0].Success)
	require.NotNil(t, rec.rows[0].Cost)
	assert.Equal(t, 30, *rec.rows[0].TokensUsed)
}

func TestQueryRejectsEmptyPrompt(t *testing.T) {
	ai := &scriptedAI{steps: []step{{content: "{}"}}}
	_, err := newClient(t, ai, Options{}).Query(context.Background(), "", codeShape, 0.5)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Empty(t, ai.requests)
}

func TestOversizeHalvesBudget(t *testing.T) {
	ai := &scriptedAI{steps: []step{
		{err: oversize()},
		{err: oversize()},
		{content: `{"move_code": "ok"}`},
	}}
	obs := &observer{}
	c := newClient(t, ai, Options{MaxTokens: 4096, Observer: obs})

	res, err := c.Execute(context.Background(), Request{Prompt: "p", Shape: codeShape, Operation: "generate"})
	require.NoError(t, err)
	assert.Equal(t, []int{4096, 2048, 1024}, ai.budgets())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1024, res.MaxTokens)
	assert.Equal(t, []string{"generate:oversize_request", "generate:oversize_request", "generate:success"}, obs.outcomes)
}

func TestBudgetFloorIsOne(t *testing.T) {
	ai := &scriptedAI{steps: []step{{err: oversize()}, {err: oversize()}, {err: oversize()}, {content: `{"move_code": "x"}`}}}
	c := newClient(t, ai, Options{MaxTokens: 2})

	_, err := c.Query(context.Background(), "p", codeShape, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 1}, ai.budgets())
}

func TestTransientFailuresThenSuccess(t *testing.T) {
	ai := &scriptedAI{steps: []step{{err: transient()}, {err: transient()}, {content: `{"move_code": "x"}`}}}
	c := newClient(t, ai, Options{})

	res, err := c.Query(context.Background(), "p", codeShape, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []int{4096, 4096, 4096}, ai.budgets(), "only oversize errors shrink the budget")
}

func TestExhaustedAfterMaxAttempts(t *testing.T) {
	ai := &scriptedAI{steps: []step{{err: transient()}}}
	rec := &recorder{}
	c := newClient(t, ai, Options{Recorder: rec})

	res, err := c.Query(context.Background(), "p", codeShape, 0.5)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.True(t, errors.Is(err, errors.ErrTransientService))
	assert.Contains(t, err.Error(), "gave up after 21 attempts")
	assert.Len(t, ai.requests, DefaultMaxAttempts)
	assert.Len(t, rec.rows, DefaultMaxAttempts)
	assert.False(t, rec.rows[0].Success)
}

func TestMalformedReplyIsNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "module 0x1::m {}"},
		{"missing key", `{"code": "x"}`},
		{"wrong type", `{"move_code": 42}`},
		{"array", `["move_code"]`},
		{"null code", `{"move_code": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &scriptedAI{steps: []step{{content: tt.content}, {content: `{"move_code": "x"}`}}}
			_, err := newClient(t, ai, Options{}).Query(context.Background(), "p", codeShape, 0.5)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedResponse))
			assert.False(t, errors.Is(err, ErrExhausted))
			assert.Len(t, ai.requests, 1)
		})
	}
}

func TestInvalidRequestIsNotRetried(t *testing.T) {
	ai := &scriptedAI{steps: []step{{err: errors.NewInvalidRequestError("bad key")}}}
	_, err := newClient(t, ai, Options{}).Query(context.Background(), "p", codeShape, 0.5)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Len(t, ai.requests, 1)
}

func TestContextCancelledDuringWait(t *testing.T) {
	ai := &scriptedAI{steps: []step{{err: transient()}}}
	c := newClient(t, ai, Options{RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Query(ctx, "p", codeShape, 0.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Len(t, ai.requests, 1)
}

func TestRateLimiterGatesAttempts(t *testing.T) {
	ai := &scriptedAI{steps: []step{{err: transient()}, {content: `{"move_code": "x"}`}}}
	// One token per second; the second attempt waits for a refill
	c := newClient(t, ai, Options{RequestsPerMinute: 60})

	start := time.Now()
	_, err := c.Query(context.Background(), "p", codeShape, 0.5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestRecorderLabelsOperation(t *testing.T) {
	ai := &scriptedAI{steps: []step{{content: `{"move_code": "x"}`}}}
	rec := &recorder{}
	c := newClient(t, ai, Options{Recorder: rec, Provider: "openrouter", Model: "openai/gpt-4o"})

	_, err := c.Execute(context.Background(), Request{Prompt: "fix", Shape: codeShape, Operation: "repair", Entity: "vector_1"})
	require.NoError(t, err)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, "repair", rec.rows[0].OperationType)
	assert.Equal(t, "vector_1", rec.rows[0].EntityID)
	assert.Equal(t, "openrouter", rec.rows[0].ModelProvider)
}

func TestRecorderKeepsConfigAndError(t *testing.T) {
	ai := &scriptedAI{steps: []step{{content: `{"move_code": null}`}}}
	rec := &recorder{}
	c := newClient(t, ai, Options{Recorder: rec, MaxTokens: 512})

	_, err := c.Execute(context.Background(), Request{Prompt: "p", Shape: codeShape, Temperature: 0.7, Operation: "generate", Entity: "casting_0"})
	require.Error(t, err)
	require.Len(t, rec.rows, 1)

	row := rec.rows[0]
	assert.False(t, row.Success)
	require.NotNil(t, row.ErrorMessage)
	assert.Contains(t, *row.ErrorMessage, "is not a string")
	require.NotNil(t, row.ModelConfig)
	assert.JSONEq(t, `{"temperature": 0.7, "max_tokens": 512}`, *row.ModelConfig)
}
