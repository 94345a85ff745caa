package models

import (
	"context"
	"fmt"
	"strings"
)

// Options configure a chat model provider.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// NewChatModel builds the provider named in opts.
func NewChatModel(ctx context.Context, opts Options) (ChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "gemini", "google":
		return NewGeminiChat(ctx, opts)
	case "openai":
		return NewOpenAIChat(opts)
	case "anthropic", "claude":
		return NewAnthropicChat(opts)
	case "ollama":
		return NewOllamaChat(opts)
	case "dummy":
		return NewDummyChat(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}

// splitTrailingDraft removes assistant answers that end the conversation and
// returns their text. Providers that require a conversation to end on a user
// turn present the draft through the system instruction instead.
func splitTrailingDraft(messages []Message) ([]Message, string) {
	end := len(messages)
	for end > 0 {
		m := messages[end-1]
		if m.Role != RoleAssistant || m.IsToolRequest() {
			break
		}
		end--
	}
	if end == len(messages) {
		return messages, ""
	}
	parts := make([]string, 0, len(messages)-end)
	for _, m := range messages[end:] {
		if text := strings.TrimSpace(m.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return messages[:end], strings.Join(parts, "\n")
}

// systemText joins every system message and appends the draft, if any.
func systemText(messages []Message, draft string) string {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	if draft != "" {
		parts = append(parts, "Draft answer:\n"+draft)
	}
	return strings.Join(parts, "\n\n")
}

// schemaFields extracts properties and required names from a JSON schema.
func schemaFields(schema map[string]any) (map[string]any, []string) {
	props, _ := schema["properties"].(map[string]any)
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = append(required, r...)
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}

func lastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func invocationError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	return &InvocationError{Provider: provider, Model: model, Err: err}
}
