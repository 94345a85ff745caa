package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

// OllamaChat talks to a local Ollama server through the generate endpoint.
// Tool selection uses a plain-text protocol: the model replies with
// `tool:<name> <input>` to request a tool.
type OllamaChat struct {
	Client      *ollama.Client
	Model       string
	Temperature float32
}

// OllamaClient resolves OLLAMA_HOST (or baseURL) into a client.
func OllamaClient(baseURL string) (*ollama.Client, error) {
	host := baseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	return ollama.NewClient(u, &http.Client{Timeout: 60 * time.Second}), nil
}

func NewOllamaChat(opts Options) (*OllamaChat, error) {
	c, err := OllamaClient(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaChat{Client: c, Model: model, Temperature: opts.Temperature}, nil
}

func (o *OllamaChat) Name() string { return "ollama/" + o.Model }

func (o *OllamaChat) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	system, prompt := renderTranscript(messages, tools)

	var text strings.Builder
	req := &ollama.GenerateRequest{
		Model:   o.Model,
		Prompt:  prompt,
		System:  system,
		Options: map[string]any{"temperature": o.Temperature},
	}
	if err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	}); err != nil {
		return Message{}, invocationError("ollama", o.Model, err)
	}
	return parseToolReply(text.String(), tools), nil
}

// renderTranscript flattens the conversation into a single prompt.
func renderTranscript(messages []Message, tools []ToolSpec) (string, string) {
	system := systemText(messages, "")

	var sb strings.Builder
	if len(tools) > 0 {
		sb.WriteString("Available tools:\n")
		for _, spec := range tools {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", spec.Name, spec.Description))
		}
		sb.WriteString("Invoke a tool by replying with the exact format `tool:<name> <input>` if necessary. Otherwise answer directly.\n\n")
	}
	sb.WriteString("Conversation:\n")
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			sb.WriteString("[user] " + strings.TrimSpace(m.Content) + "\n")
		case RoleAssistant:
			for _, call := range m.ToolCalls {
				sb.WriteString(fmt.Sprintf("[assistant] tool:%s %v\n", call.Name, call.Arguments))
			}
			if strings.TrimSpace(m.Content) != "" {
				sb.WriteString("[assistant] " + strings.TrimSpace(m.Content) + "\n")
			}
		case RoleTool:
			sb.WriteString(fmt.Sprintf("[tool %s] %s\n", m.ToolName, strings.TrimSpace(m.Content)))
		}
	}
	sb.WriteString("\nCompose the best possible assistant reply.\n")
	return system, sb.String()
}

// parseToolReply turns a `tool:<name> <input>` reply into a tool request. The
// input is bound to the tool's first required parameter.
func parseToolReply(reply string, tools []ToolSpec) Message {
	trimmed := strings.TrimSpace(reply)
	if len(tools) == 0 || !strings.HasPrefix(strings.ToLower(trimmed), "tool:") {
		return Assistant(reply)
	}
	payload := strings.TrimSpace(trimmed[len("tool:"):])
	name, input := splitCommand(payload)
	for _, spec := range tools {
		if !strings.EqualFold(spec.Name, name) {
			continue
		}
		param := "input"
		if _, required := schemaFields(spec.Parameters); len(required) > 0 {
			param = required[0]
		}
		return Message{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:        "call_0",
			Name:      spec.Name,
			Arguments: map[string]any{param: strings.Trim(input, "`\"' ")},
		}}}
	}
	return Assistant(reply)
}

func splitCommand(payload string) (name string, args string) {
	parts := strings.Fields(payload)
	if len(parts) == 0 {
		return "", ""
	}
	name = parts[0]
	if len(payload) > len(name) {
		args = strings.TrimSpace(payload[len(name):])
	}
	return name, args
}
