package models

import (
	"context"
	"strings"
	"unicode"
)

const dontKnow = "I don't know."

// DummyChat is a deterministic model for local runs and tests without API
// calls. With tools offered it requests the first tool for anything that looks
// like a question and answers greetings directly. Without tools it answers
// with the context sentence that best overlaps the question.
type DummyChat struct{}

func NewDummyChat() *DummyChat { return &DummyChat{} }

func (d *DummyChat) Name() string { return "dummy" }

func (d *DummyChat) Complete(_ context.Context, messages []Message, tools []ToolSpec) (Message, error) {
	question := strings.TrimSpace(lastUserText(messages))
	if len(tools) > 0 {
		if looksLikeQuestion(question) {
			param := "query"
			if _, required := schemaFields(tools[0].Parameters); len(required) > 0 {
				param = required[0]
			}
			return Message{Role: RoleAssistant, ToolCalls: []ToolCall{{
				ID:        "call_0",
				Name:      tools[0].Name,
				Arguments: map[string]any{param: question},
			}}}, nil
		}
		return Assistant("Hello! Ask me anything about your uploaded documents."), nil
	}

	rest, draft := splitTrailingDraft(messages)
	docs := contextBlock(systemText(rest, ""))
	if strings.TrimSpace(docs) == "" && draft != "" {
		return Assistant(draft), nil
	}
	if best := bestSentence(docs, question); best != "" {
		return Assistant(best), nil
	}
	return Assistant(dontKnow), nil
}

func looksLikeQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	return len(strings.Fields(text)) > 3
}

// contextBlock returns what follows the first blank line of the system text.
func contextBlock(system string) string {
	if _, after, ok := strings.Cut(system, "\n\n"); ok {
		return after
	}
	return ""
}

func bestSentence(docs, question string) string {
	want := wordSet(question)
	var (
		best  string
		score int
	)
	for _, line := range strings.Split(docs, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Source:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "Content:"))
		for _, sentence := range splitSentences(line) {
			n := 0
			for w := range wordSet(sentence) {
				if _, ok := want[w]; ok {
					n++
				}
			}
			if n > score {
				best, score = sentence, n
			}
		}
	}
	return best
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "of": {}, "what": {}, "who": {},
	"to": {}, "in": {}, "on": {}, "and": {}, "or": {}, "it": {}, "does": {}, "do": {},
}

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

var _ ChatModel = (*DummyChat)(nil)
