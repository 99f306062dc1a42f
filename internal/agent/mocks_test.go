package agent

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate mocks the model call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (*schemas.GenerationResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.GenerationResponse), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// respond queues one canned model response.
func (m *MockLLMClient) respond(text string) *mock.Call {
	return m.On("Generate", mock.Anything, mock.Anything).
		Return(&schemas.GenerationResponse{Text: text, Model: "mock-vlm"}, nil).Once()
}

// -- Device Mocks --

// MockObserver mocks the Observer interface.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) CaptureScreen(ctx context.Context) (schemas.Screenshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Screenshot), args.Error(1)
}

func (m *MockObserver) CurrentApp(ctx context.Context) (schemas.AppInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.AppInfo), args.Error(1)
}

// MockExecutor mocks the Executor interface and keeps the dispatched actions.
type MockExecutor struct {
	mock.Mock
	mu         sync.Mutex
	dispatched []actions.Action
}

func (m *MockExecutor) Execute(ctx context.Context, action actions.Action) (actions.Outcome, error) {
	m.mu.Lock()
	m.dispatched = append(m.dispatched, action)
	m.mu.Unlock()
	args := m.Called(ctx, action)
	return args.Get(0).(actions.Outcome), args.Error(1)
}

func (m *MockExecutor) Dispatched() []actions.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]actions.Action(nil), m.dispatched...)
}

// -- Recorder Mock --

// MockRecorder mocks the Recorder interface.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) CreateSession(ctx context.Context, s store.Session) (store.Session, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(store.Session), args.Error(1)
}

func (m *MockRecorder) RecordStep(ctx context.Context, rec store.StepRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockRecorder) UpdateStatus(ctx context.Context, id string, u store.StatusUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

// -- Replier Mock --

type MockReplier struct {
	mock.Mock
}

func (m *MockReplier) Reply(ctx context.Context, task, question string) (string, error) {
	args := m.Called(ctx, task, question)
	return args.String(0), args.Error(1)
}

// -- Helpers --

// kindIs matches an action argument by kind.
func kindIs(k actions.Kind) interface{} {
	return mock.MatchedBy(func(a actions.Action) bool { return a.Kind == k })
}
