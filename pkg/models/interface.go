package models

import (
	"context"
	"fmt"
)

// Role tags a Message. Together with ToolCalls it forms the conversation's
// tagged union: user is a human question, assistant with ToolCalls is a tool
// request, tool is a tool result, and assistant without ToolCalls is an answer.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model's request to invoke a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// IsToolRequest reports whether the message asks for tool execution.
func (m Message) IsToolRequest() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func System(text string) Message { return Message{Role: RoleSystem, Content: text} }

func Human(text string) Message { return Message{Role: RoleUser, Content: text} }

func Assistant(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// ToolResult answers the given call.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, ToolName: call.Name}
}

// ToolSpec describes a tool the model may call. Parameters is a JSON schema
// object with "properties" and "required".
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatModel is the hosted language-model capability: given the conversation
// and optionally a set of tools, return the next assistant message.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error)
	Name() string
}

// InvocationError wraps any failure raised while calling a provider.
type InvocationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
