// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/config"
)

const (
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// contentGenerator is the slice of the genai Models service the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements schemas.LLMClient on top of the official genai SDK,
// adding per-model rate limiting and retries for transient failures.
type GeminiClient struct {
	models     contentGenerator
	cfg        config.LLMModelConfig
	limiter    *rate.Limiter
	logger     *zap.Logger
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for model %q (set GEMINI_API_KEY)", cfg.Model)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	if cfg.APITimeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiClient(cli.Models, cfg, logger), nil
}

func newGeminiClient(models contentGenerator, cfg config.LLMModelConfig, logger *zap.Logger) *GeminiClient {
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if burst <= 0 {
		burst = 1
	}
	return &GeminiClient{
		models:     models,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("llm_client.gemini").With(zap.String("model", cfg.Model)),
		retryDelay: defaultRetryDelay,
		sleep:      sleepCtx,
	}
}

// Generate sends the prompts to Gemini and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}
	genCfg := c.buildConfig(req)

	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			c.logger.Warn("Retrying LLM request after transient failure.",
				zap.String("phase", req.Phase), zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait failed: %w", err)
		}

		start := time.Now()
		resp, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, genCfg)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("gemini request failed: %w", err)
			if !isTransient(err) {
				return "", lastErr
			}
			continue
		}

		text, err := c.extractText(resp)
		if err != nil {
			lastErr = err
			var blocked *BlockedError
			if errors.As(err, &blocked) {
				return "", err
			}
			continue
		}

		fields := []zap.Field{zap.String("phase", req.Phase), zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount))
		}
		c.logger.Info("LLM generation complete.", fields...)
		return text, nil
	}
	return "", fmt.Errorf("gemini request failed after %d attempt(s): %w", attempts, lastErr)
}

// Close implements schemas.LLMClient. The genai client holds no resources
// that need releasing.
func (c *GeminiClient) Close() error { return nil }

func (c *GeminiClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	temperature := c.cfg.Temperature
	if req.Options.Temperature > 0 {
		temperature = float32(req.Options.Temperature)
	}
	cfg.Temperature = genai.Ptr(temperature)

	if topP := pick32(float32(req.Options.TopP), c.cfg.TopP); topP > 0 {
		cfg.TopP = genai.Ptr(topP)
	}
	if topK := pickInt(req.Options.TopK, c.cfg.TopK); topK > 0 {
		cfg.TopK = genai.Ptr(float32(topK))
	}
	if maxTokens := pickInt(req.Options.MaxOutputTokens, c.cfg.MaxTokens); maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.Options.ForceJSONFormat {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func (c *GeminiClient) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}
		}
		return "", errors.New("gemini API returned no candidates")
	}
	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return "", &BlockedError{Reason: string(candidate.FinishReason)}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini API returned empty content (finish reason: %s)", candidate.FinishReason)
	}
	return text, nil
}

// BlockedError reports a response withheld by the provider's safety filters.
// It is never retried.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("gemini API blocked the request (reason: %s)", e.Reason)
}

// isTransient reports whether a request error is worth retrying.
func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return retryableStatus(apiErrPtr.Code)
	}
	// Network level failures carry no status code.
	return true
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pick32(override, fallback float32) float32 {
	if override > 0 {
		return override
	}
	return fallback
}

func pickInt(override, fallback int) int {
	if override > 0 {
		return override
	}
	return fallback
}
