// internal/agents/evaluator.go
package agents

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/llmutil"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// CodeEvaluator implements refinement.Evaluator.
type CodeEvaluator struct {
	logger       *zap.Logger
	llmClient    schemas.LLMClient
	adminAddress string
}

// NewCodeEvaluator initializes the evaluation agent.
func NewCodeEvaluator(logger *zap.Logger, llmClient schemas.LLMClient, adminAddress string) *CodeEvaluator {
	return &CodeEvaluator{
		logger:       logger.Named("code_evaluator"),
		llmClient:    llmClient,
		adminAddress: adminAddress,
	}
}

type evaluationResponse struct {
	Score                   float64  `json:"score"`
	IsComplete              bool     `json:"is_complete"`
	HasErrors               bool     `json:"has_errors"`
	MissingFeatures         flexList `json:"missing_features"`
	Improvements            flexList `json:"improvements"`
	SecurityIssues          flexList `json:"security_issues"`
	PrivacyIssues           flexList `json:"privacy_issues"`
	OptimizationSuggestions flexList `json:"optimization_suggestions"`
}

// Evaluate scores source against the design. An unparseable verdict is
// reported as an evaluation failure.
func (e *CodeEvaluator) Evaluate(ctx context.Context, source refinement.SourceText, design refinement.Design) (refinement.EvaluationResult, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: evaluatorSystemPrompt(e.adminAddress),
		UserPrompt:   evaluateUserPrompt(source, design),
		Tier:         schemas.TierFast,
		Phase:        "evaluate",
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     0.1,
		},
	}

	response, err := e.llmClient.Generate(ctx, req)
	if err != nil {
		return refinement.EvaluationResult{}, &refinement.EvaluationError{Err: fmt.Errorf("LLM generation failed: %w", err)}
	}

	parsed, err := llmutil.ParseJSONResponse[evaluationResponse](response)
	if err != nil {
		e.logger.Error("Failed to parse evaluation response.", zap.Error(err), zap.String("raw_response", response))
		return refinement.EvaluationResult{}, &refinement.EvaluationError{Err: err}
	}

	result := refinement.EvaluationResult{
		Score:                   NormalizeScore(parsed.Score),
		IsComplete:              parsed.IsComplete,
		HasErrors:               parsed.HasErrors,
		MissingFeatures:         parsed.MissingFeatures.compact(),
		Improvements:            parsed.Improvements.compact(),
		SecurityIssues:          append(parsed.SecurityIssues.compact(), parsed.PrivacyIssues.compact()...),
		OptimizationSuggestions: parsed.OptimizationSuggestions.compact(),
	}
	e.logger.Info("Evaluation complete.",
		zap.String("project", design.ProjectName),
		zap.Float64("raw_score", parsed.Score),
		zap.Float64("score", result.Score),
		zap.Int("missing_features", len(result.MissingFeatures)))
	return result, nil
}

// NormalizeScore maps a model score onto the 0-10 scale. Scores above 10 are
// read as percentages.
func NormalizeScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > refinement.MaxScore {
		score /= 10
	}
	return math.Min(score, refinement.MaxScore)
}
