package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicChat implements ChatModel using Anthropic's Messages API.
type AnthropicChat struct {
	Client      *anthropic.Client
	Model       string
	MaxTokens   int
	Temperature float32
}

// NewAnthropicChat constructs a client. It reads ANTHROPIC_API_KEY from the env
// when opts carries no key.
func NewAnthropicChat(opts Options) (*AnthropicChat, error) {
	key := opts.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, errors.New("missing ANTHROPIC_API_KEY")
	}
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(key))
	model := opts.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicChat{Client: &cl, Model: model, MaxTokens: maxTokens, Temperature: opts.Temperature}, nil
}

func (a *AnthropicChat) Name() string { return "anthropic/" + a.Model }

func (a *AnthropicChat) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	messages, draft := splitTrailingDraft(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(a.MaxTokens),
		Messages:    toAnthropicMessages(messages),
		Temperature: anthropic.Float(float64(a.Temperature)),
	}
	if system := systemText(messages, draft); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, spec := range tools {
		props, required := schemaFields(spec.Parameters)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: props, Required: required},
		}})
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return Message{}, invocationError("anthropic", a.Model, err)
	}

	out := Message{Role: RoleAssistant}
	var b strings.Builder
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return Message{}, invocationError("anthropic", a.Model, fmt.Errorf("decode tool input: %w", err))
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Content = b.String()
	return out, nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}
