package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAIChat struct {
	Client      *openai.Client
	Model       string
	Temperature float32
}

// OpenAIClient builds a client from an explicit key or OPENAI_API_KEY.
func OpenAIClient(apiKey, baseURL string) *openai.Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func NewOpenAIChat(opts Options) (*OpenAIChat, error) {
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIChat{
		Client:      OpenAIClient(opts.APIKey, opts.BaseURL),
		Model:       model,
		Temperature: opts.Temperature,
	}, nil
}

func (o *OpenAIChat) Name() string { return "openai/" + o.Model }

func (o *OpenAIChat) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: o.Temperature,
	}
	for _, spec := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}

	resp, err := o.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Message{}, invocationError("openai", o.Model, err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, invocationError("openai", o.Model, errors.New("no response from OpenAI"))
	}
	msg, err := fromOpenAIMessage(resp.Choices[0].Message)
	if err != nil {
		return Message{}, invocationError("openai", o.Model, err)
	}
	return msg, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, call := range m.ToolCalls {
				args, _ := json.Marshal(call.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Name, Arguments: string(args)},
				})
			}
			out = append(out, msg)
		case RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.ToolName,
			})
		}
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) (Message, error) {
	msg := Message{Role: RoleAssistant, Content: m.Content}
	for _, call := range m.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return Message{}, fmt.Errorf("decode arguments for %s: %w", call.Function.Name, err)
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: args})
	}
	return msg, nil
}
