// internal/agents/generator.go
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/llmutil"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// CodeGenerator implements refinement.Generator.
type CodeGenerator struct {
	logger       *zap.Logger
	llmClient    schemas.LLMClient
	adminAddress string
}

// NewCodeGenerator initializes the code generation agent.
func NewCodeGenerator(logger *zap.Logger, llmClient schemas.LLMClient, adminAddress string) *CodeGenerator {
	return &CodeGenerator{
		logger:       logger.Named("code_generator"),
		llmClient:    llmClient,
		adminAddress: adminAddress,
	}
}

type generatedCode struct {
	Code string `json:"code"`
}

// Generate writes a fresh program from the design.
func (g *CodeGenerator) Generate(ctx context.Context, design refinement.Design) (refinement.SourceText, error) {
	source, err := g.request(ctx, "generate", generateUserPrompt(design), 0.2)
	if err != nil {
		return "", &refinement.GenerationError{Err: err}
	}
	g.logger.Info("Generated program source.", zap.String("project", design.ProjectName), zap.Int("bytes", len(source)))
	return source, nil
}

// Repair asks for a corrected version of source given the compiler's
// diagnostics.
func (g *CodeGenerator) Repair(ctx context.Context, design refinement.Design, source refinement.SourceText, diag refinement.Diagnostics) (refinement.SourceText, error) {
	repaired, err := g.request(ctx, "repair", repairUserPrompt(design, source, diag), 0.1)
	if err != nil {
		return "", &refinement.GenerationError{Repair: true, Err: err}
	}
	g.logger.Info("Repaired program source.",
		zap.String("project", design.ProjectName),
		zap.Int("errors", len(diag.Errors)),
		zap.Bool("changed", repaired != source))
	return repaired, nil
}

func (g *CodeGenerator) request(ctx context.Context, phase, prompt string, temperature float64) (refinement.SourceText, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: generatorSystemPrompt(g.adminAddress),
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Phase:        phase,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     temperature,
		},
	}

	response, err := g.llmClient.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}

	code := extractCode(response)
	if code == "" {
		g.logger.Error("Model returned no program source.", zap.String("phase", phase), zap.String("raw_response", response))
		return "", errors.New("model returned no program source")
	}
	return refinement.SourceText(code), nil
}

// extractCode prefers the {"code": ...} envelope and falls back to treating
// the whole response as source.
func extractCode(response string) string {
	if parsed, err := llmutil.ParseJSONResponse[generatedCode](response); err == nil && strings.TrimSpace(parsed.Code) != "" {
		return llmutil.ExtractProgram(parsed.Code)
	}
	return llmutil.ExtractProgram(response)
}
