// internal/agents/cache.go
package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// CachedEvaluator memoizes verdicts for identical (source, design) pairs.
type CachedEvaluator struct {
	inner  refinement.Evaluator
	cache  *lru.Cache[string, refinement.EvaluationResult]
	logger *zap.Logger
}

// NewCachedEvaluator wraps inner with an LRU cache holding size verdicts.
func NewCachedEvaluator(logger *zap.Logger, inner refinement.Evaluator, size int) (*CachedEvaluator, error) {
	cache, err := lru.New[string, refinement.EvaluationResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation cache: %w", err)
	}
	return &CachedEvaluator{
		inner:  inner,
		cache:  cache,
		logger: logger.Named("evaluation_cache"),
	}, nil
}

// Evaluate implements refinement.Evaluator. Failures are not cached.
func (c *CachedEvaluator) Evaluate(ctx context.Context, source refinement.SourceText, design refinement.Design) (refinement.EvaluationResult, error) {
	key, err := cacheKey(source, design)
	if err != nil {
		return c.inner.Evaluate(ctx, source, design)
	}
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("Evaluation cache hit.", zap.String("project", design.ProjectName))
		return cached, nil
	}

	result, err := c.inner.Evaluate(ctx, source, design)
	if err != nil {
		return result, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// Len reports the number of cached verdicts.
func (c *CachedEvaluator) Len() int { return c.cache.Len() }

func cacheKey(source refinement.SourceText, design refinement.Design) (string, error) {
	designJSON, err := json.Marshal(design)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write(designJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}
