// Package synth asks the routed backends for questions, category by category,
// and numbers them across the whole request.
package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/records"
	"github.com/pavelanni/examgen/internal/router"
)

// DefaultLanguages is attached to every code question.
var DefaultLanguages = []string{"python"}

// Synthesizer generates questions over a routing plan.
type Synthesizer struct {
	backends router.Backends
	prompts  *prompts.Set
}

// New creates a Synthesizer.
func New(backends router.Backends, p *prompts.Set) *Synthesizer {
	return &Synthesizer{backends: backends, prompts: p}
}

// Synthesize walks the topics in order and, per topic, MCQ, Text and Code in
// order. Ids and sequence numbers run from 1 across the whole request.
// A backend failure aborts; unparseable output contributes nothing.
func (s *Synthesizer) Synthesize(ctx context.Context, req model.GenerationRequest, idx *index.Index) ([]model.Question, error) {
	var questions []model.Question
	start := 1

	for _, route := range req.Routes {
		backend, err := s.backends.For(route.Source, idx)
		if err != nil {
			return nil, fmt.Errorf("select backend for %q: %w", route.Topic, err)
		}

		for _, qt := range model.QuestionTypes {
			n := req.Count(qt)
			if n == 0 {
				continue
			}

			data := prompts.GenerationData{Topic: route.Topic, Count: n, Difficulty: req.Difficulty}
			var languages []string
			if qt == model.TypeCode {
				languages = DefaultLanguages
				data.Languages = languages
			}

			instruction, err := s.prompts.Generation(qt, data)
			if err != nil {
				return nil, fmt.Errorf("render %s instruction: %w", qt, err)
			}

			raw, err := backend.Complete(ctx, instruction)
			if err != nil {
				return nil, fmt.Errorf("generate %s questions for %q: %w", qt, route.Topic, err)
			}
			slog.Debug("generation output", "topic", route.Topic, "type", qt, "source", route.Source, "raw", raw)

			batch := records.ParseQuestions(raw, records.Options{
				Kind:       qt,
				Topic:      route.Topic,
				Difficulty: req.Difficulty,
				Start:      start,
				Languages:  languages,
			})
			if len(batch) == 0 {
				slog.Warn("no questions parsed", "topic", route.Topic, "type", qt)
			}
			start += len(batch)
			questions = append(questions, batch...)
		}
	}
	return questions, nil
}
