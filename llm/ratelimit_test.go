package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type scriptedLLM struct {
	errs  []error
	calls int
}

func (s *scriptedLLM) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}, nil
}

func (s *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := s.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func messagesOf(text string) []llms.MessageContent {
	return []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: text}}},
	}
}

func TestRateLimitedLLM_PassThrough(t *testing.T) {
	wrapped := &scriptedLLM{}
	rl := NewRateLimitedLLM(wrapped, 0, 0, false, "")

	resp, err := rl.GenerateContent(context.Background(), messagesOf("hello"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Content)
	assert.Equal(t, 1, wrapped.calls)
}

func TestRateLimitedLLM_No429RetryWhenDisabled(t *testing.T) {
	wrapped := &scriptedLLM{errs: []error{errors.New("429 too many requests")}}
	rl := NewRateLimitedLLM(wrapped, 0, 0, false, "")

	_, err := rl.GenerateContent(context.Background(), messagesOf("hello"))
	assert.Error(t, err)
	assert.Equal(t, 1, wrapped.calls)
}

func TestRateLimitedLLM_RetriesOn429(t *testing.T) {
	wrapped := &scriptedLLM{errs: []error{errors.New("429 too many requests"), nil}}
	rl := NewRateLimitedLLM(wrapped, 0, 0, true, "")

	resp, err := rl.GenerateContent(context.Background(), messagesOf("hello"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Content)
	assert.Equal(t, 2, wrapped.calls)
}

func TestRateLimitedLLM_NonRateLimitErrorNotRetried(t *testing.T) {
	wrapped := &scriptedLLM{errs: []error{errors.New("401 unauthorized")}}
	rl := NewRateLimitedLLM(wrapped, 0, 0, true, "")

	_, err := rl.GenerateContent(context.Background(), messagesOf("hello"))
	assert.Error(t, err)
	assert.Equal(t, 1, wrapped.calls)
}

func TestRateLimitedLLM_Call(t *testing.T) {
	rl := NewRateLimitedLLM(&scriptedLLM{}, 0, 0, false, "")
	out, err := rl.Call(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, isRateLimitError(errors.New("HTTP 429")))
	assert.True(t, isRateLimitError(errors.New("Rate limit exceeded")))
	assert.True(t, isRateLimitError(errors.New("Too Many Requests")))
	assert.False(t, isRateLimitError(errors.New("500 internal error")))
	assert.False(t, isRateLimitError(nil))
}

func TestExtractRetryAfter(t *testing.T) {
	assert.Equal(t, 12*time.Second, extractRetryAfter(errors.New("Please retry after 12 seconds.")))
	assert.Equal(t, 1*time.Second, extractRetryAfter(errors.New("retry after 1 second")))
	assert.Equal(t, time.Duration(0), extractRetryAfter(errors.New("some other error")))
	assert.Equal(t, time.Duration(0), extractRetryAfter(nil))
}

func TestEstimateTokens_Fallback(t *testing.T) {
	rl := NewRateLimitedLLM(&scriptedLLM{}, 0, 0, false, "not-a-real-model")
	// 40 characters at ~4 chars per token.
	text := "0123456789012345678901234567890123456789"
	tokens := rl.estimateTokens(messagesOf(text))
	assert.Equal(t, 10, tokens)
}
