package models

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
)

var retrieveSpec = ToolSpec{
	Name:        "retrieve",
	Description: "Retrieve information related to a query.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search query"},
		},
		"required": []string{"query"},
	},
}

func TestNewChatModelErrorsOnUnknownProvider(t *testing.T) {
	if _, err := NewChatModel(context.Background(), Options{Provider: "unknown"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewChatModelDummy(t *testing.T) {
	m, err := NewChatModel(context.Background(), Options{Provider: "dummy"})
	if err != nil {
		t.Fatalf("NewChatModel returned error: %v", err)
	}
	if m.Name() != "dummy" {
		t.Fatalf("unexpected name %q", m.Name())
	}
}

func TestSplitTrailingDraft(t *testing.T) {
	msgs := []Message{System("sys"), Human("hi"), Assistant("hello there")}
	rest, draft := splitTrailingDraft(msgs)
	if len(rest) != 2 || draft != "hello there" {
		t.Fatalf("unexpected split: %d messages, draft %q", len(rest), draft)
	}

	withCall := []Message{Human("q"), {Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "retrieve"}}}}
	rest, draft = splitTrailingDraft(withCall)
	if len(rest) != 2 || draft != "" {
		t.Fatalf("tool requests must not be treated as drafts")
	}
}

func TestToGeminiContents(t *testing.T) {
	call := ToolCall{ID: "call_0", Name: "retrieve", Arguments: map[string]any{"query": "q"}}
	system, contents := toGeminiContents([]Message{
		System("be brief"),
		Human("question"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		ToolResult(call, "Source: a.pdf\nContent: text"),
	})
	if system != "be brief" {
		t.Fatalf("unexpected system instruction %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Fatalf("expected model role for tool request, got %q", contents[1].Role)
	}
	if _, ok := contents[1].Parts[0].(genai.FunctionCall); !ok {
		t.Fatalf("expected function call part, got %T", contents[1].Parts[0])
	}
	resp, ok := contents[2].Parts[0].(genai.FunctionResponse)
	if !ok || resp.Name != "retrieve" {
		t.Fatalf("expected function response for retrieve, got %#v", contents[2].Parts[0])
	}
}

func TestToGeminiContentsFoldsDraftIntoSystem(t *testing.T) {
	system, contents := toGeminiContents([]Message{System("rules"), Human("Hello"), Assistant("Hi!")})
	if len(contents) != 1 || contents[0].Role != "user" {
		t.Fatalf("expected conversation to end on the user turn, got %d contents", len(contents))
	}
	if !strings.Contains(system, "Draft answer:\nHi!") {
		t.Fatalf("expected draft in system instruction, got %q", system)
	}
}

func TestToGeminiFunctions(t *testing.T) {
	decls := toGeminiFunctions([]ToolSpec{retrieveSpec})
	if len(decls) != 1 || decls[0].Name != "retrieve" {
		t.Fatalf("unexpected declarations: %+v", decls)
	}
	params := decls[0].Parameters
	if params.Type != genai.TypeObject || params.Properties["query"].Type != genai.TypeString {
		t.Fatalf("unexpected schema: %+v", params)
	}
	if len(params.Required) != 1 || params.Required[0] != "query" {
		t.Fatalf("unexpected required list: %v", params.Required)
	}
}

func TestOpenAIMessageConversion(t *testing.T) {
	call := ToolCall{ID: "abc", Name: "retrieve", Arguments: map[string]any{"query": "paris"}}
	out := toOpenAIMessages([]Message{Human("q"), {Role: RoleAssistant, ToolCalls: []ToolCall{call}}, ToolResult(call, "ctx")})
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[1].ToolCalls[0].Function.Arguments != `{"query":"paris"}` {
		t.Fatalf("unexpected arguments %q", out[1].ToolCalls[0].Function.Arguments)
	}
	if out[2].Role != openai.ChatMessageRoleTool || out[2].ToolCallID != "abc" {
		t.Fatalf("unexpected tool message %+v", out[2])
	}

	msg, err := fromOpenAIMessage(out[1])
	if err != nil {
		t.Fatalf("fromOpenAIMessage returned error: %v", err)
	}
	if !msg.IsToolRequest() || msg.ToolCalls[0].Arguments["query"] != "paris" {
		t.Fatalf("unexpected round trip %+v", msg)
	}
}

func TestFromOpenAIMessageRejectsBadArguments(t *testing.T) {
	_, err := fromOpenAIMessage(openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{{
		Function: openai.FunctionCall{Name: "retrieve", Arguments: "{not json"},
	}}})
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestParseToolReply(t *testing.T) {
	msg := parseToolReply("tool:retrieve capital of France", []ToolSpec{retrieveSpec})
	if !msg.IsToolRequest() {
		t.Fatalf("expected tool request, got %+v", msg)
	}
	if got := msg.ToolCalls[0].Arguments["query"]; got != "capital of France" {
		t.Fatalf("unexpected query %v", got)
	}

	msg = parseToolReply("Paris is the capital.", []ToolSpec{retrieveSpec})
	if msg.IsToolRequest() || msg.Content != "Paris is the capital." {
		t.Fatalf("plain replies must stay answers, got %+v", msg)
	}

	msg = parseToolReply("tool:unknown x", []ToolSpec{retrieveSpec})
	if msg.IsToolRequest() {
		t.Fatalf("unknown tools must not become tool requests")
	}
}

func TestRenderTranscriptListsTools(t *testing.T) {
	system, prompt := renderTranscript([]Message{System("sys"), Human("What?")}, []ToolSpec{retrieveSpec})
	if system != "sys" {
		t.Fatalf("unexpected system %q", system)
	}
	if !strings.Contains(prompt, "- retrieve: Retrieve information related to a query.") {
		t.Fatalf("tool listing missing from prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "[user] What?") {
		t.Fatalf("user turn missing from prompt: %q", prompt)
	}
}

func TestDummyChatRequestsToolForQuestions(t *testing.T) {
	msg, err := NewDummyChat().Complete(context.Background(), []Message{Human("What is the capital of France?")}, []ToolSpec{retrieveSpec})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if !msg.IsToolRequest() || msg.ToolCalls[0].Arguments["query"] != "What is the capital of France?" {
		t.Fatalf("expected retrieve call, got %+v", msg)
	}
}

func TestDummyChatAnswersGreetingsDirectly(t *testing.T) {
	msg, err := NewDummyChat().Complete(context.Background(), []Message{Human("Hello")}, []ToolSpec{retrieveSpec})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if msg.IsToolRequest() || msg.Content == "" {
		t.Fatalf("expected direct answer, got %+v", msg)
	}
}

func TestDummyChatGroundsAnswerInContext(t *testing.T) {
	system := System("Answer concisely.\n\nSource: france.pdf\nContent: Lyon is large. The capital of France is Paris.")
	msg, err := NewDummyChat().Complete(context.Background(), []Message{system, Human("What is the capital of France?")}, nil)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if msg.Content != "The capital of France is Paris." {
		t.Fatalf("unexpected answer %q", msg.Content)
	}
}

func TestDummyChatAdmitsIgnorance(t *testing.T) {
	msg, _ := NewDummyChat().Complete(context.Background(), []Message{System("Answer.\n\n"), Human("What is the capital of France?")}, nil)
	if msg.Content != dontKnow {
		t.Fatalf("expected %q, got %q", dontKnow, msg.Content)
	}

	msg, _ = NewDummyChat().Complete(context.Background(), []Message{System("Answer.\n\n"), Human("Hello"), Assistant("Hi!")}, nil)
	if msg.Content != "Hi!" {
		t.Fatalf("expected draft to be kept without context, got %q", msg.Content)
	}
}

type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) Name() string { return "flaky" }

func (f *flakyChat) Complete(ctx context.Context, _ []Message, _ []ToolSpec) (Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return Message{}, &InvocationError{Provider: "flaky", Err: errors.New("rate limited")}
	}
	return Assistant("ok"), nil
}

func TestWithRetryRecovers(t *testing.T) {
	inner := &flakyChat{failures: 2}
	m := WithRetry(inner, RetryOptions{MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	msg, err := m.Complete(context.Background(), []Message{Human("q")}, nil)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if msg.Content != "ok" || inner.calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", msg.Content, inner.calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	inner := &flakyChat{failures: 5}
	m := WithRetry(inner, RetryOptions{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil)
	_, err := m.Complete(context.Background(), []Message{Human("q")}, nil)
	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", inner.calls)
	}
}
