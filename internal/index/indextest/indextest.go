// Package indextest provides a deterministic embedder and index builders for tests.
package indextest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/model"
)

// Embedder maps a text to the per-word occurrence counts of Vocab, so cosine
// scores are controlled by which vocabulary words a text contains.
// Queries overrides the vector for exact query strings.
type Embedder struct {
	Vocab   []string
	Queries map[string][]float32
	Err     error

	mu    sync.Mutex
	calls int
}

// Embed implements index.Embedder.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// Calls returns the number of Embed calls made.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) vector(text string) []float32 {
	if v, ok := e.Queries[text]; ok {
		return v
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.Vocab))
	for i, w := range e.Vocab {
		vec[i] = float32(strings.Count(lower, strings.ToLower(w)))
	}
	return vec
}

// New builds an index with one chunk per passage without counting embed calls.
func New(t testing.TB, emb *Embedder, passages ...string) *index.Index {
	t.Helper()
	chunks := make([]model.Chunk, len(passages))
	for i, p := range passages {
		chunks[i] = model.Chunk{Seq: i, Text: p, Vector: emb.vector(p)}
	}
	info := model.DocumentInfo{Name: "test.txt", Version: 1, IndexedAt: time.Now().UTC()}
	return index.FromChunks(info, chunks, emb)
}

// NewWithVectors builds an index whose chunks carry explicit vectors.
func NewWithVectors(t testing.TB, emb index.Embedder, chunks ...model.Chunk) *index.Index {
	t.Helper()
	info := model.DocumentInfo{Name: "test.txt", Version: 1, IndexedAt: time.Now().UTC()}
	return index.FromChunks(info, chunks, emb)
}
