// internal/llmclient/helper_test.go
package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// MockLLMClient is a mock implementation of the LLMClient interface for testing.
type MockLLMClient struct {
	mock.Mock
	Name string
}

// Generate mocks the Generate method.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (*schemas.GenerationResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*schemas.GenerationResponse)
	return resp, args.Error(1)
}

// Close mocks the Close method.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	core, _ := observer.New(zap.DebugLevel)
	return zap.New(core)
}

// getValidLLMConfig returns a valid LLMModelConfig for testing purposes.
func getValidLLMConfig() config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:    config.ProviderGemini,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        50,
		MaxTokens:   1024,
	}
}

// screenshotRequest is a two-turn request with an image on the last user turn.
func screenshotRequest() schemas.GenerationRequest {
	img := schemas.ImagePart{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}
	return schemas.GenerationRequest{
		Messages: []schemas.Message{
			schemas.SystemMessage("System prompt instructions."),
			schemas.UserMessage("Step 1 screen: launcher"),
			schemas.AssistantMessage(`{"action":"HOME"}`),
			schemas.UserMessage("What next?", img),
		},
		Tier: schemas.TierPowerful,
	}
}
