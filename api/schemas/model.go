package schemas

import (
	"context"
	"encoding/base64"
	"time"
)

// -- Model Client Schemas & Interface --

// Role tags a message in a conversation with a model.
type Role string

const (
	RoleSystem    Role = "system"    // Fixed instructions for the model.
	RoleUser      Role = "user"      // Observations, tasks and user replies.
	RoleAssistant Role = "assistant" // Previous model decisions.
)

// ImagePart is an inline image attached to a user message.
type ImagePart struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// DataURL renders the image as a base64 data URL.
func (p ImagePart) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Message is a single role-tagged turn. Only user messages carry images.
type Message struct {
	Role   Role        `json:"role"`
	Text   string      `json:"text"`
	Images []ImagePart `json:"images,omitempty"`
}

// SystemMessage builds a system turn.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// UserMessage builds a user turn with optional image attachments.
func UserMessage(text string, images ...ImagePart) Message {
	return Message{Role: RoleUser, Text: text, Images: images}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// ModelTier allows for selecting a model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Planning, auto replies.
	TierPowerful ModelTier = "powerful" // Per-step screen decisions.
)

// GenerationOptions controls sampling and output size. Zero values defer to
// the client's configured defaults.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates a complete request to the model.
type GenerationRequest struct {
	Messages []Message        `json:"messages"`
	Tier     ModelTier         `json:"tier"`
	Options  GenerationOptions `json:"options"`
}

// Usage reports token accounting for a single generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResponse is the model's answer plus accounting.
type GenerationResponse struct {
	Text    string        `json:"text"`
	Model   string        `json:"model"`
	Usage   Usage         `json:"usage"`
	Latency time.Duration `json:"latency"`
}

// LLMClient defines a standard interface for interacting with a vision
// language model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a completion for the given role-tagged messages.
	// Network, timeout and provider errors are returned as-is.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
	// Close releases any resources held by the client.
	Close() error
}
