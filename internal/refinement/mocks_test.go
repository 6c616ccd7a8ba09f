// internal/refinement/mocks_test.go
package refinement_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	leomocks "github.com/xkilldash9x/leoforge/internal/mocks"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// MockDesigner is a mock implementation of refinement.Designer.
type MockDesigner struct {
	mock.Mock
}

func (m *MockDesigner) Design(ctx context.Context, query refinement.Query) (refinement.Design, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(refinement.Design), args.Error(1)
}

// MockGenerator is a mock implementation of refinement.Generator.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, design refinement.Design) (refinement.SourceText, error) {
	args := m.Called(ctx, design)
	return args.Get(0).(refinement.SourceText), args.Error(1)
}

func (m *MockGenerator) Repair(ctx context.Context, design refinement.Design, source refinement.SourceText, diag refinement.Diagnostics) (refinement.SourceText, error) {
	args := m.Called(ctx, design, source, diag)
	return args.Get(0).(refinement.SourceText), args.Error(1)
}

// MockEvaluator is a mock implementation of refinement.Evaluator.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, source refinement.SourceText, design refinement.Design) (refinement.EvaluationResult, error) {
	args := m.Called(ctx, source, design)
	return args.Get(0).(refinement.EvaluationResult), args.Error(1)
}

// MockBuilder is a mock implementation of refinement.Builder.
type MockBuilder struct {
	mock.Mock
}

func (m *MockBuilder) Build(ctx context.Context, ws refinement.WorkspaceHandle, timeout time.Duration) (refinement.BuildOutcome, error) {
	args := m.Called(ctx, ws, timeout)
	return args.Get(0).(refinement.BuildOutcome), args.Error(1)
}

// MockWorkspace is a mock implementation of refinement.Workspace and
// refinement.Releaser.
type MockWorkspace struct {
	mock.Mock
}

func (m *MockWorkspace) Create(ctx context.Context, projectName string) (refinement.WorkspaceHandle, error) {
	args := m.Called(ctx, projectName)
	return args.Get(0).(refinement.WorkspaceHandle), args.Error(1)
}

func (m *MockWorkspace) Save(ctx context.Context, ws refinement.WorkspaceHandle, source refinement.SourceText) error {
	args := m.Called(ctx, ws, source)
	return args.Error(0)
}

func (m *MockWorkspace) Release(ws refinement.WorkspaceHandle) {
	m.Called(ws)
}

// recordingSink captures every event in order.
type recordingSink = leomocks.RecordingSink

type mocks struct {
	designer  *MockDesigner
	generator *MockGenerator
	evaluator *MockEvaluator
	builder   *MockBuilder
	workspace *MockWorkspace
}

func newMocks() *mocks {
	return &mocks{
		designer:  new(MockDesigner),
		generator: new(MockGenerator),
		evaluator: new(MockEvaluator),
		builder:   new(MockBuilder),
		workspace: new(MockWorkspace),
	}
}

func (m *mocks) collaborators() refinement.Collaborators {
	return refinement.Collaborators{
		Designer:  m.designer,
		Generator: m.generator,
		Evaluator: m.evaluator,
		Builder:   m.builder,
		Workspace: m.workspace,
	}
}

func (m *mocks) assertExpectations(t mock.TestingT) {
	m.designer.AssertExpectations(t)
	m.generator.AssertExpectations(t)
	m.evaluator.AssertExpectations(t)
	m.builder.AssertExpectations(t)
	m.workspace.AssertExpectations(t)
}
