package llm

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/mykhaliev/testcase-gen/logger"
)

const (
	max429Retries  = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second

	// Fallback token estimate when no tokenizer is available for the
	// model: roughly four characters per token.
	approxCharsPerToken = 4
)

var retryAfterRe = regexp.MustCompile(`retry after (\d+) seconds?`)

// RateLimitedLLM throttles an llms.Model against per-minute request and
// token budgets and optionally retries on 429 responses. Throttling is
// best-effort: token counts are estimated before the call, so the
// provider can still reject a request.
type RateLimitedLLM struct {
	wrapped    llms.Model
	rpmLimiter *rate.Limiter
	tpmLimiter *rate.Limiter
	retryOn429 bool
	modelName  string
}

// NewRateLimitedLLM wraps a model. rpm and tpm of zero disable the
// corresponding limiter.
func NewRateLimitedLLM(wrapped llms.Model, rpm, tpm int, retryOn429 bool, modelName string) *RateLimitedLLM {
	rl := &RateLimitedLLM{
		wrapped:    wrapped,
		retryOn429: retryOn429,
		modelName:  modelName,
	}
	if rpm > 0 {
		rl.rpmLimiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
		logger.Logger.Info("Rate limiter configured", "type", "RPM", "limit", rpm)
	}
	if tpm > 0 {
		rl.tpmLimiter = rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm)
		logger.Logger.Info("Rate limiter configured", "type", "TPM", "limit", tpm)
	}
	return rl
}

// GenerateContent implements llms.Model.
func (rl *RateLimitedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if rl.rpmLimiter != nil {
		if err := rl.rpmLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if rl.tpmLimiter != nil {
		if tokens := rl.estimateTokens(messages); tokens > 0 {
			logger.Logger.Debug("Waiting for TPM rate limit", "estimated_tokens", tokens)
			if err := rl.tpmLimiter.WaitN(ctx, tokens); err != nil {
				return nil, err
			}
		}
	}

	response, err := rl.wrapped.GenerateContent(ctx, messages, options...)
	if err == nil || !rl.retryOn429 || !isRateLimitError(err) {
		return response, err
	}

	backoff := initialBackoff
	for attempt := 1; attempt <= max429Retries; attempt++ {
		if ra := extractRetryAfter(err); ra > 0 {
			backoff = ra
		}
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		logger.Logger.Warn("429 rate limit hit, retrying",
			"attempt", attempt,
			"max_retries", max429Retries,
			"wait_seconds", backoff.Seconds())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		response, err = rl.wrapped.GenerateContent(ctx, messages, options...)
		if err == nil {
			logger.Logger.Info("Request succeeded after 429 retry", "attempt", attempt)
			return response, nil
		}
		if !isRateLimitError(err) {
			return nil, err
		}
		backoff *= 2
	}

	logger.Logger.Error("429 retries exhausted", "max_retries", max429Retries, "error", err.Error())
	return nil, err
}

// Call implements llms.Model for plain text prompts.
func (rl *RateLimitedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	response, err := rl.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Content, nil
}

// estimateTokens counts prompt tokens with tiktoken when the model is
// known, otherwise falls back to a character heuristic.
func (rl *RateLimitedLLM) estimateTokens(messages []llms.MessageContent) int {
	totalChars := 0
	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if p, ok := part.(llms.TextContent); ok {
				texts = append(texts, p.Text)
				totalChars += len(p.Text)
			}
		}
	}

	if rl.modelName != "" {
		if enc, err := tiktoken.EncodingForModel(rl.modelName); err == nil {
			tokens := 0
			for _, t := range texts {
				tokens += len(enc.Encode(t, nil, nil))
			}
			// Reserve headroom for the completion as well.
			return tokens + tokens/2
		}
	}

	tokens := totalChars / approxCharsPerToken
	if tokens < 1 && totalChars > 0 {
		tokens = 1
	}
	return tokens
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// extractRetryAfter parses a "retry after N seconds" hint out of the
// error text, as sent by Azure OpenAI.
func extractRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryAfterRe.FindStringSubmatch(strings.ToLower(err.Error()))
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := time.ParseDuration(matches[1] + "s")
	if parseErr != nil || seconds <= 0 {
		return 0
	}
	return seconds
}
