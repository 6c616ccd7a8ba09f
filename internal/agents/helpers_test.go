// internal/agents/helpers_test.go
package agents

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/mocks"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

const testAdmin = "aleo1rhgdu77hgyqd3xjj8ucu3jj9r2krwz6mnzyd80gncr5fxcwlh5rsvzp9px"

func newTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// phase matches a GenerationRequest by its Phase label.
func phase(name string) interface{} {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Phase == name })
}

func newMockLLM() *mocks.MockLLMClient {
	return new(mocks.MockLLMClient)
}

func tokenDesign() refinement.Design {
	return refinement.Design{
		ProjectName: "simple_token",
		Category:    "token",
		Description: "A fungible token with minting.",
		Features:    []string{"mint", "transfer"},
		Transitions: []string{"mint: transition mint(receiver: address, amount: u64) -> Token"},
	}
}
