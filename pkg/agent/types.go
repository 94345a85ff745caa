package agent

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/docqa/pkg/index"
	"github.com/Protocol-Lattice/docqa/pkg/models"
)

// ErrInvalidArguments marks tool calls whose arguments do not match the tool
// schema. The model gets the error text back instead of failing the question.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ToolRequest captures an invocation request for a tool.
type ToolRequest struct {
	CallID    string
	Arguments map[string]any
}

// ToolResponse carries the text handed to the model plus the structured
// results behind it.
type ToolResponse struct {
	Content string
	Results []index.Result
}

// Tool exposes structured metadata and an invocation handler.
type Tool interface {
	Spec() models.ToolSpec
	Invoke(ctx context.Context, req ToolRequest) (ToolResponse, error)
}

// State is a step of the answer state machine.
type State string

const (
	StateStart      State = "START"
	StateDeciding   State = "DECIDING"
	StateRetrieving State = "RETRIEVING"
	StateGenerating State = "GENERATING"
	StateDone       State = "DONE"
)

// Answer is the outcome of one question.
type Answer struct {
	Text       string
	Sources    []string
	Retrieved  []index.Result
	Transcript []models.Message
	States     []State
}
