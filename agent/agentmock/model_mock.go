// Package agentmock provides a go.uber.org/mock/gomock double for
// agent.Model, hand-authored in the shape mockgen would produce (the
// teacher's enginetest package follows the same generated-mock
// convention for its engine interfaces).
package agentmock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/lyra-sh/lyra/agent"
)

// MockModel is a mock of the agent.Model interface.
type MockModel struct {
	ctrl     *gomock.Controller
	recorder *MockModelMockRecorder
}

// MockModelMockRecorder is the mock recorder for MockModel.
type MockModelMockRecorder struct {
	mock *MockModel
}

// NewMockModel creates a new mock instance.
func NewMockModel(ctrl *gomock.Controller) *MockModel {
	mock := &MockModel{ctrl: ctrl}
	mock.recorder = &MockModelMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockModel) EXPECT() *MockModelMockRecorder {
	return m.recorder
}

// Generate mocks base method.
func (m *MockModel) Generate(ctx context.Context, systemPrompt, prompt string, history []agent.Turn) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Generate", ctx, systemPrompt, prompt, history)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Generate indicates an expected call of Generate.
func (mr *MockModelMockRecorder) Generate(ctx, systemPrompt, prompt, history any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Generate",
		reflect.TypeOf((*MockModel)(nil).Generate), ctx, systemPrompt, prompt, history)
}
