// Package router decides, per topic, whether generation and evaluation are
// grounded in the uploaded document or left to the general model.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

// ScoreThreshold is the similarity a passage must exceed to ground a topic.
const ScoreThreshold = 0.7

// Policy controls how verdicts are applied across the topics of one request.
type Policy string

const (
	// PerTopic routes every topic independently.
	PerTopic Policy = "per-topic"
	// FirstTopic routes the first topic and applies its verdict to all topics.
	FirstTopic Policy = "first-topic"
)

// ParsePolicy validates a configured policy name; empty means PerTopic.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PerTopic:
		return PerTopic, nil
	case FirstTopic:
		return FirstTopic, nil
	}
	return "", fmt.Errorf("unknown routing policy %q (want %s or %s)", s, PerTopic, FirstTopic)
}

// Route returns SourcePDF when the best passage for topic scores above
// ScoreThreshold and contains the topic, case-insensitively. A nil index
// routes to SourceModel without retrieval.
func Route(ctx context.Context, topic string, idx *index.Index) (model.Source, error) {
	if idx == nil {
		return model.SourceModel, nil
	}

	p, ok, err := idx.RetrieveTop(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("route %q: %w", topic, err)
	}
	if !ok {
		return model.SourceModel, nil
	}

	contains := strings.Contains(strings.ToLower(p.Text), strings.ToLower(topic))
	src := decide(p.Score, contains)
	slog.Debug("topic routed", "topic", topic, "source", src, "score", p.Score, "contains", contains)
	return src, nil
}

// decide grounds a topic only when the score is strictly above ScoreThreshold.
func decide(score float64, contains bool) model.Source {
	if score > ScoreThreshold && contains {
		return model.SourcePDF
	}
	return model.SourceModel
}

// Plan routes every topic of a request under policy.
func Plan(ctx context.Context, topics []string, idx *index.Index, policy Policy) ([]model.TopicRoute, error) {
	routes := make([]model.TopicRoute, 0, len(topics))
	for i, topic := range topics {
		if policy == FirstTopic && i > 0 {
			routes = append(routes, model.TopicRoute{Topic: topic, Source: routes[0].Source})
			continue
		}
		src, err := Route(ctx, topic, idx)
		if err != nil {
			return nil, err
		}
		routes = append(routes, model.TopicRoute{Topic: topic, Source: src})
	}
	return routes, nil
}

// Backends resolves a routing verdict to the Completer that serves it.
type Backends struct {
	Model   llm.Completer
	Prompts *prompts.Set
}

// For returns the query engine over idx for SourcePDF and the model client otherwise.
func (b Backends) For(src model.Source, idx *index.Index) (llm.Completer, error) {
	switch src {
	case model.SourcePDF:
		if idx == nil {
			return nil, fmt.Errorf("document source selected without an index")
		}
		return index.NewQueryEngine(idx, b.Model, b.Prompts), nil
	case model.SourceModel:
		return b.Model, nil
	default:
		return nil, fmt.Errorf("unknown source %q", src)
	}
}
