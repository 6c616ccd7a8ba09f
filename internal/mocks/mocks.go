// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/leoforge/api/schemas"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Event Sink --

// RecordingSink captures every event it receives. It is safe for concurrent
// use so it can sit behind the batch runner.
type RecordingSink struct {
	mu     sync.Mutex
	events []refinement.Event
}

func (s *RecordingSink) Emit(e refinement.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []refinement.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]refinement.Event(nil), s.events...)
}

// Kinds returns the recorded event kinds in order.
func (s *RecordingSink) Kinds() []refinement.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]refinement.EventKind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}
