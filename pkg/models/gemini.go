package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiChat struct {
	Client      *genai.Client
	Model       string
	Temperature float32
}

// GeminiAPIKey resolves the key from opts or the environment.
func GeminiAPIKey(explicit string) (string, error) {
	apiKey := strings.TrimSpace(explicit)
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return "", errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	return apiKey, nil
}

func NewGeminiChat(ctx context.Context, opts Options) (*GeminiChat, error) {
	apiKey, err := GeminiAPIKey(opts.APIKey)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiChat{Client: client, Model: model, Temperature: opts.Temperature}, nil
}

func (g *GeminiChat) Name() string { return "gemini/" + g.Model }

func (g *GeminiChat) Close() error { return g.Client.Close() }

func (g *GeminiChat) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	model := g.Client.GenerativeModel(g.Model)
	model.SetTemperature(g.Temperature)

	system, contents := toGeminiContents(messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiFunctions(tools)}}
	}
	if len(contents) == 0 {
		return Message{}, invocationError("gemini", g.Model, errors.New("empty conversation"))
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return Message{}, invocationError("gemini", g.Model, fmt.Errorf("gemini generate: %w", err))
	}
	msg, err := fromGeminiResponse(resp)
	if err != nil {
		return Message{}, invocationError("gemini", g.Model, err)
	}
	return msg, nil
}

// toGeminiContents maps the conversation onto Gemini's user/model turns and
// collapses system messages into the system instruction.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	messages, draft := splitTrailingDraft(messages)
	system := systemText(messages, draft)

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			var parts []genai.Part
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case RoleTool:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{
				genai.FunctionResponse{Name: m.ToolName, Response: map[string]any{"content": m.Content}},
			}})
		}
	}
	return system, contents
}

func toGeminiFunctions(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, spec := range tools {
		props, required := schemaFields(spec.Parameters)
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(props)),
			Required:   required,
		}
		for name, raw := range props {
			prop, _ := raw.(map[string]any)
			desc, _ := prop["description"].(string)
			schema.Properties[name] = &genai.Schema{Type: geminiType(prop["type"]), Description: desc}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func geminiType(v any) genai.Type {
	s, _ := v.(string)
	switch s {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) (Message, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Message{}, errors.New("gemini: empty response")
	}
	msg := Message{Role: RoleAssistant}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: fmt.Sprintf("call_%d", len(msg.ToolCalls)), Name: p.Name, Arguments: p.Args})
		case *genai.FunctionCall:
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: fmt.Sprintf("call_%d", len(msg.ToolCalls)), Name: p.Name, Arguments: p.Args})
		}
	}
	msg.Content = text.String()
	return msg, nil
}
