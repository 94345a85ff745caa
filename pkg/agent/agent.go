package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Protocol-Lattice/docqa/pkg/index"
	"github.com/Protocol-Lattice/docqa/pkg/models"
)

// DefaultSystemPrompt prefixes the retrieved context in the generation step.
const DefaultSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, say that you don't know. " +
	"Use three sentences maximum and keep the answer concise.\n\n"

// NoIndexNotice is the tool result used when nothing has been uploaded yet.
const NoIndexNotice = "No documents have been indexed yet."

// Agent answers a question by letting the model decide whether to retrieve,
// running the retrieval tool calls, and generating a grounded answer.
type Agent struct {
	model        models.ChatModel
	systemPrompt string
	logger       *slog.Logger

	tools     map[string]Tool
	toolOrder []Tool
}

// Options configure a new Agent.
type Options struct {
	Model        models.ChatModel
	SystemPrompt string
	Tools        []Tool
	Logger       *slog.Logger
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Model == nil {
		return nil, errors.New("agent requires a language model")
	}
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{
		model:        opts.Model,
		systemPrompt: systemPrompt,
		logger:       logger,
		tools:        make(map[string]Tool),
	}
	for _, tool := range opts.Tools {
		if tool == nil {
			continue
		}
		key := strings.ToLower(tool.Spec().Name)
		if key == "" {
			continue
		}
		if _, dup := a.tools[key]; dup {
			return nil, fmt.Errorf("duplicate tool %q", key)
		}
		a.tools[key] = tool
		a.toolOrder = append(a.toolOrder, tool)
	}
	return a, nil
}

// ToolSpecs returns the specs offered to the model, in registration order.
func (a *Agent) ToolSpecs() []models.ToolSpec {
	specs := make([]models.ToolSpec, 0, len(a.toolOrder))
	for _, t := range a.toolOrder {
		specs = append(specs, t.Spec())
	}
	return specs
}

// Answer runs START → DECIDING → (RETRIEVING → GENERATING) | GENERATING → DONE
// on a fresh conversation. Nothing is shared between calls.
func (a *Agent) Answer(ctx context.Context, question string) (Answer, error) {
	var out Answer
	enter := func(s State) {
		out.States = append(out.States, s)
		a.logger.Debug("answer state", "state", string(s))
	}

	enter(StateStart)
	if strings.TrimSpace(question) == "" {
		return out, errors.New("question is empty")
	}
	conversation := []models.Message{models.Human(question)}

	enter(StateDeciding)
	decision, err := a.complete(ctx, conversation, a.ToolSpecs())
	if err != nil {
		return out, err
	}
	conversation = append(conversation, decision)

	var docs []string
	if decision.IsToolRequest() {
		enter(StateRetrieving)
		for _, call := range decision.ToolCalls {
			resp, err := a.invoke(ctx, call)
			if err != nil {
				return out, err
			}
			conversation = append(conversation, models.ToolResult(call, resp.Content))
			docs = append(docs, resp.Content)
			out.Retrieved = append(out.Retrieved, resp.Results...)
		}
	}

	enter(StateGenerating)
	prompt := append([]models.Message{models.System(a.systemPrompt + strings.Join(docs, "\n"))}, filterConversation(conversation)...)
	final, err := a.complete(ctx, prompt, nil)
	if err != nil {
		return out, err
	}
	conversation = append(conversation, final)

	enter(StateDone)
	out.Text = final.Content
	out.Sources = sources(out.Retrieved)
	out.Transcript = conversation
	return out, nil
}

func (a *Agent) complete(ctx context.Context, msgs []models.Message, tools []models.ToolSpec) (models.Message, error) {
	reply, err := a.model.Complete(ctx, msgs, tools)
	if err != nil {
		var ie *models.InvocationError
		if errors.As(err, &ie) {
			return models.Message{}, err
		}
		return models.Message{}, &models.InvocationError{Model: a.model.Name(), Err: err}
	}
	reply.Role = models.RoleAssistant
	return reply, nil
}

// invoke runs one tool call. Unknown tools, bad arguments and a missing index
// become tool results; every other error aborts the question.
func (a *Agent) invoke(ctx context.Context, call models.ToolCall) (ToolResponse, error) {
	tool, ok := a.tools[strings.ToLower(call.Name)]
	if !ok {
		a.logger.Warn("model requested unknown tool", "tool", call.Name)
		return ToolResponse{Content: fmt.Sprintf("Error: unknown tool %q", call.Name)}, nil
	}
	resp, err := tool.Invoke(ctx, ToolRequest{CallID: call.ID, Arguments: call.Arguments})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, index.ErrIndexNotFound):
		a.logger.Info("retrieval skipped, no index yet")
		return ToolResponse{Content: NoIndexNotice}, nil
	case errors.Is(err, ErrInvalidArguments):
		return ToolResponse{Content: "Error: " + err.Error()}, nil
	default:
		return ToolResponse{}, fmt.Errorf("tool %s: %w", call.Name, err)
	}
}

// filterConversation keeps user and system turns and assistant turns that
// did not request tools, in their original order.
func filterConversation(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser, models.RoleSystem:
			out = append(out, m)
		case models.RoleAssistant:
			if !m.IsToolRequest() {
				out = append(out, m)
			}
		}
	}
	return out
}

func sources(results []index.Result) []string {
	seen := make(map[string]struct{}, len(results))
	var out []string
	for _, r := range results {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}
