// internal/llmclient/openai_client_test.go
package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// fakeModel is an llms.Model that records the last call.
type fakeModel struct {
	resp *llms.ContentResponse
	err  error

	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	f.opts = llms.CallOptions{}
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func openAIConfig() config.LLMModelConfig {
	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.Model = "autoglm-phone-9b"
	return cfg
}

func TestNewOpenAIClient_RequiresKeyOrEndpoint(t *testing.T) {
	cfg := openAIConfig()
	cfg.APIKey = ""

	_, err := NewOpenAIClient(cfg, setupTestLogger(t))
	assert.Error(t, err)

	cfg.Endpoint = "http://127.0.0.1:8000/v1"
	client, err := NewOpenAIClient(cfg, setupTestLogger(t))
	require.NoError(t, err, "a local endpoint does not need a key")
	assert.NoError(t, client.Close())
}

func TestOpenAIClient_Generate_MapsMessages(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        `do(action="Home")`,
		StopReason:     "stop",
		GenerationInfo: map[string]any{"PromptTokens": 200, "CompletionTokens": 12, "TotalTokens": 212},
	}}}}
	client := newOpenAIClient(model, openAIConfig(), setupTestLogger(t))

	req := screenshotRequest()
	req.Options = schemas.GenerationOptions{MaxTokens: 300, ForceJSONFormat: true}
	resp, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, `do(action="Home")`, resp.Text)
	assert.Equal(t, schemas.Usage{PromptTokens: 200, CompletionTokens: 12, TotalTokens: 212}, resp.Usage)

	require.Len(t, model.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)

	last := model.messages[3]
	require.Len(t, last.Parts, 2)
	img, ok := last.Parts[1].(llms.ImageURLContent)
	require.True(t, ok, "screenshots are sent as image URL parts")
	assert.Equal(t, "data:image/png;base64,iVBORw==", img.URL)

	assert.InDelta(t, 0.7, model.opts.Temperature, 1e-6, "model default temperature applies")
	assert.Equal(t, 300, model.opts.MaxTokens)
	assert.True(t, model.opts.JSONMode)
}

func TestOpenAIClient_Generate_Failures(t *testing.T) {
	client := newOpenAIClient(&fakeModel{err: errors.New("502 bad gateway")}, openAIConfig(), setupTestLogger(t))
	_, err := client.Generate(context.Background(), screenshotRequest())
	assert.ErrorContains(t, err, "502 bad gateway")

	client = newOpenAIClient(&fakeModel{resp: &llms.ContentResponse{}}, openAIConfig(), setupTestLogger(t))
	_, err = client.Generate(context.Background(), screenshotRequest())
	assert.EqualError(t, err, "openai API returned no choices")
}
