// internal/llmclient/gemini_client_test.go
package llmclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/leoforge/api/schemas"
)

func TestNewGeminiClient(t *testing.T) {
	logger, _ := setupTestLogger(t)

	t.Run("requires an API key", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.APIKey = ""
		_, err := NewGeminiClient(context.Background(), cfg, logger)
		assert.ErrorContains(t, err, "API key is required")
	})

	t.Run("requires a model", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Model = ""
		_, err := NewGeminiClient(context.Background(), cfg, logger)
		assert.ErrorContains(t, err, "model name is required")
	})

	t.Run("builds a client", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Endpoint = "http://127.0.0.1:1/"
		client, err := NewGeminiClient(context.Background(), cfg, logger)
		require.NoError(t, err)
		assert.NotNil(t, client.models)
		assert.NoError(t, client.Close())
	})
}

func TestGeminiClient_Generate_Success(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("program demo.aleo {}")}}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "You write Leo.",
		UserPrompt:   "Write a token.",
		Phase:        "generate",
		Options:      schemas.GenerationOptions{Temperature: 0.3, ForceJSONFormat: true},
	})

	require.NoError(t, err)
	assert.Equal(t, "program demo.aleo {}", out)
	require.Len(t, models.calls, 1)

	call := models.calls[0]
	assert.Equal(t, "test-model", call.model)
	require.Len(t, call.contents, 1)
	assert.Equal(t, "Write a token.", call.contents[0].Parts[0].Text)
	require.NotNil(t, call.cfg.SystemInstruction)
	assert.Equal(t, "You write Leo.", call.cfg.SystemInstruction.Parts[0].Text)
	assert.InDelta(t, 0.3, float64(*call.cfg.Temperature), 1e-6)
	assert.InDelta(t, 0.9, float64(*call.cfg.TopP), 1e-6)
	assert.Equal(t, float32(50), *call.cfg.TopK)
	assert.Equal(t, int32(1024), call.cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", call.cfg.ResponseMIMEType)
}

func TestGeminiClient_Generate_UsesModelDefaults(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("ok")}}
	cfg := getValidLLMConfig()
	cfg.TopP, cfg.TopK, cfg.MaxTokens = 0, 0, 0
	client := newTestGeminiClient(t, cfg, models)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)

	call := models.calls[0]
	assert.Nil(t, call.cfg.SystemInstruction)
	assert.InDelta(t, 0.7, float64(*call.cfg.Temperature), 1e-6)
	assert.Nil(t, call.cfg.TopP)
	assert.Nil(t, call.cfg.TopK)
	assert.Zero(t, call.cfg.MaxOutputTokens)
	assert.Empty(t, call.cfg.ResponseMIMEType)
}

func TestGeminiClient_Generate_RetriesTransientErrors(t *testing.T) {
	models := &fakeModels{
		responses: []*genai.GenerateContentResponse{nil, nil, textResponse("third time lucky")},
		errs: []error{
			genai.APIError{Code: http.StatusTooManyRequests, Message: "quota"},
			genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"},
		},
	}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "third time lucky", out)
	assert.Equal(t, 3, models.callCount())
}

func TestGeminiClient_Generate_GivesUpAfterMaxRetries(t *testing.T) {
	transient := genai.APIError{Code: http.StatusInternalServerError, Message: "boom"}
	models := &fakeModels{errs: []error{transient, transient, transient, transient}}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.Equal(t, 3, models.callCount())
}

func TestGeminiClient_Generate_PermanentErrorsAreNotRetried(t *testing.T) {
	models := &fakeModels{errs: []error{genai.APIError{Code: http.StatusBadRequest, Message: "bad request"}}}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})

	require.Error(t, err)
	var apiErr genai.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, models.callCount())
}

func TestGeminiClient_Generate_SafetyBlock(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	models := &fakeModels{responses: []*genai.GenerateContentResponse{blocked}}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})

	var be *BlockedError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "SAFETY", be.Reason)
	assert.Equal(t, 1, models.callCount())
}

func TestGeminiClient_Generate_PromptFeedbackBlock(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}
	client := newTestGeminiClient(t, getValidLLMConfig(), &fakeModels{responses: []*genai.GenerateContentResponse{blocked}})

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})

	var be *BlockedError
	assert.ErrorAs(t, err, &be)
}

func TestGeminiClient_Generate_EmptyContentIsRetried(t *testing.T) {
	empty := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}}}
	models := &fakeModels{responses: []*genai.GenerateContentResponse{empty, textResponse("done")}}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestGeminiClient_Generate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	models := &fakeModels{}
	client := newTestGeminiClient(t, getValidLLMConfig(), models)

	_, err := client.Generate(ctx, schemas.GenerationRequest{UserPrompt: "x"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeminiClient_RateLimiter(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.RateLimit = 2
	cfg.Burst = 3
	client := newTestGeminiClient(t, cfg, &fakeModels{})
	assert.Equal(t, rate.Limit(2), client.limiter.Limit())
	assert.Equal(t, 3, client.limiter.Burst())

	cfg.RateLimit = 0
	cfg.Burst = 0
	client = newTestGeminiClient(t, cfg, &fakeModels{})
	assert.Equal(t, rate.Inf, client.limiter.Limit())
	assert.Equal(t, 1, client.limiter.Burst())
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("connection reset by peer")))
	assert.True(t, isTransient(genai.APIError{Code: 429}))
	assert.True(t, isTransient(&genai.APIError{Code: 503}))
	assert.False(t, isTransient(genai.APIError{Code: 401}))
	assert.False(t, isTransient(&genai.APIError{Code: 404}))
}
