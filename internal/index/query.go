package index

import (
	"context"
	"fmt"

	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/llm/prompts"
)

// DefaultTopK is the number of passages placed in front of each instruction.
const DefaultTopK = 2

// QueryEngine is a retrieval-augmented Completer: it retrieves the passages
// closest to the instruction and asks the model to answer from them.
type QueryEngine struct {
	idx     *Index
	model   llm.Completer
	prompts *prompts.Set
	topK    int
}

// NewQueryEngine binds a query engine to one index snapshot.
func NewQueryEngine(idx *Index, model llm.Completer, p *prompts.Set) *QueryEngine {
	return &QueryEngine{idx: idx, model: model, prompts: p, topK: DefaultTopK}
}

// Complete implements llm.Completer.
func (q *QueryEngine) Complete(ctx context.Context, instruction string) (string, error) {
	passages, err := q.idx.Retrieve(ctx, instruction, q.topK)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	prompt, err := q.prompts.Context(texts, instruction)
	if err != nil {
		return "", fmt.Errorf("render context prompt: %w", err)
	}
	return q.model.Complete(ctx, prompt)
}
