// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// OpenAIClient implements schemas.LLMClient for OpenAI-compatible chat
// endpoints, including self-hosted phone-agent models served by vLLM.
// Screenshots are sent as base64 data URLs.
type OpenAIClient struct {
	model  llms.Model
	logger *zap.Logger
	config config.LLMModelConfig
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.Endpoint == "" {
		return nil, fmt.Errorf("OpenAI-compatible client requires an API key or a custom endpoint")
	}
	token := cfg.APIKey
	if token == "" {
		// Local servers ignore the token, but the SDK refuses an empty one.
		token = "EMPTY"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return newOpenAIClient(m, cfg, logger), nil
}

func newOpenAIClient(m llms.Model, cfg config.LLMModelConfig, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		model:  m,
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}
}

// Generate sends the conversation and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (*schemas.GenerationResponse, error) {
	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	startTime := time.Now()
	resp, err := c.model.GenerateContent(ctx, buildLangchainMessages(req.Messages), c.callOptions(req.Options)...)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("OpenAI-compatible request failed", zap.String("model", c.config.Model), zap.Duration("duration", duration), zap.Error(err))
		return nil, fmt.Errorf("openai generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai API returned no choices")
	}

	choice := resp.Choices[0]
	out := &schemas.GenerationResponse{
		Text:    choice.Content,
		Model:   c.config.Model,
		Latency: duration,
		Usage: schemas.Usage{
			PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
			CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
			TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
		},
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.String("model", c.config.Model),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.String("stop_reason", choice.StopReason),
	)
	return out, nil
}

// Close implements schemas.LLMClient.
func (c *OpenAIClient) Close() error { return nil }

func (c *OpenAIClient) callOptions(opts schemas.GenerationOptions) []llms.CallOption {
	temp := c.config.Temperature
	if opts.Temperature > 0 {
		temp = opts.Temperature
	}
	maxTokens := c.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	out := []llms.CallOption{llms.WithTemperature(float64(temp))}
	if maxTokens > 0 {
		out = append(out, llms.WithMaxTokens(maxTokens))
	}
	if c.config.TopP > 0 {
		out = append(out, llms.WithTopP(float64(c.config.TopP)))
	}
	if opts.ForceJSONFormat {
		out = append(out, llms.WithJSONMode())
	}
	return out
}

func buildLangchainMessages(msgs []schemas.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		mc := llms.MessageContent{Role: llms.ChatMessageTypeHuman}
		switch m.Role {
		case schemas.RoleSystem:
			mc.Role = llms.ChatMessageTypeSystem
		case schemas.RoleAssistant:
			mc.Role = llms.ChatMessageTypeAI
		}
		mc.Parts = append(mc.Parts, llms.TextPart(m.Text))
		for _, img := range m.Images {
			mc.Parts = append(mc.Parts, llms.ImageURLPart(img.DataURL()))
		}
		out = append(out, mc)
	}
	return out
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
