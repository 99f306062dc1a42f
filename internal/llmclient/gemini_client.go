// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// contentGenerator is the slice of the genai SDK the client uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements schemas.LLMClient for Google Gemini models,
// sending screenshots as inline image parts.
type GeminiClient struct {
	models contentGenerator
	logger *zap.Logger
	config config.LLMModelConfig
}

// ErrBlocked is returned when Gemini refuses to answer for safety reasons.
var ErrBlocked = errors.New("gemini blocked the request")

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, logger), nil
}

func newGeminiClient(models contentGenerator, cfg config.LLMModelConfig, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		models: models,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
	}
}

// Generate sends the conversation to Gemini and returns the first
// candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (*schemas.GenerationResponse, error) {
	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	contents, system := buildGeminiContents(req.Messages)
	genCfg := c.buildConfig(req.Options)
	genCfg.SystemInstruction = system

	startTime := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.config.Model, contents, genCfg)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Gemini request failed", zap.String("model", c.config.Model), zap.Duration("duration", duration), zap.Error(err))
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text, err := candidateText(resp)
	if err != nil {
		return nil, err
	}

	out := &schemas.GenerationResponse{
		Text:    text,
		Model:   c.config.Model,
		Latency: duration,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = schemas.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	c.logger.Info("LLM generation complete (Gemini)",
		zap.String("model", c.config.Model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}

// Close implements schemas.LLMClient. The genai client holds no resources.
func (c *GeminiClient) Close() error { return nil }

func (c *GeminiClient) buildConfig(opts schemas.GenerationOptions) *genai.GenerateContentConfig {
	temp := c.config.Temperature
	if opts.Temperature > 0 {
		temp = opts.Temperature
	}
	maxTokens := c.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temp),
		MaxOutputTokens: int32(maxTokens),
		SafetySettings:  c.getSafetySettings(),
	}
	if c.config.TopP > 0 {
		cfg.TopP = genai.Ptr(c.config.TopP)
	}
	if c.config.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(c.config.TopK))
	}
	if opts.ForceJSONFormat {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func (c *GeminiClient) getSafetySettings() []*genai.SafetySetting {
	settings := make([]*genai.SafetySetting, 0, len(c.config.SafetyFilters))
	for category, threshold := range c.config.SafetyFilters {
		settings = append(settings, &genai.SafetySetting{
			Category:  genai.HarmCategory(category),
			Threshold: genai.HarmBlockThreshold(threshold),
		})
	}
	return settings
}

// buildGeminiContents maps role-tagged messages onto Gemini contents. System
// messages are merged into the system instruction; assistant turns use the
// model role.
func buildGeminiContents(msgs []schemas.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system []string
	for _, m := range msgs {
		switch m.Role {
		case schemas.RoleSystem:
			system = append(system, m.Text)
		case schemas.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleModel))
		default:
			parts := []*genai.Part{genai.NewPartFromText(m.Text)}
			for _, img := range m.Images {
				parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonBlocklist {
			return "", fmt.Errorf("%w (reason: %s)", ErrBlocked, cand.FinishReason)
		}
		return "", fmt.Errorf("gemini API returned empty content parts (reason: %s)", cand.FinishReason)
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String(), nil
}
