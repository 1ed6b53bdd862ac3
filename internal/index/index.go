// Package index holds the retrieval index built from the uploaded reference
// document, the handle that publishes it to requests, and the query engine
// that grounds generation in retrieved passages.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
)

const (
	// ChunkWords is the window size used to split the document.
	ChunkWords = 200
	// ChunkOverlap is the number of words shared by consecutive chunks.
	ChunkOverlap = 20
	// embedBatch bounds the number of chunks sent per embedding call.
	embedBatch = 64
)

// ErrEmptyDocument is returned when a document yields no indexable text.
var ErrEmptyDocument = errors.New("document contains no text")

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Passage is a retrieved chunk with its cosine similarity to the query.
type Passage struct {
	Text  string
	Score float64
}

// Index is an immutable, versioned vector index over one document.
type Index struct {
	info     model.DocumentInfo
	chunks   []model.Chunk
	embedder Embedder
}

// Build splits text into chunks, embeds them and returns a new index.
func Build(ctx context.Context, name, text string, embedder Embedder, version int64) (*Index, error) {
	pieces := Split(text, ChunkWords, ChunkOverlap)
	if len(pieces) == 0 {
		return nil, ErrEmptyDocument
	}

	chunks := make([]model.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += embedBatch {
		end := min(start+embedBatch, len(pieces))
		vectors, err := embedder.Embed(ctx, pieces[start:end])
		if err != nil {
			return nil, upstream("embed document", err)
		}
		if len(vectors) != end-start {
			return nil, upstream("embed document", fmt.Errorf("got %d vectors for %d chunks", len(vectors), end-start))
		}
		for i, v := range vectors {
			chunks = append(chunks, model.Chunk{Seq: start + i, Text: pieces[start+i], Vector: v})
		}
	}

	info := model.DocumentInfo{
		Name:      name,
		Version:   version,
		Chunks:    len(chunks),
		IndexedAt: time.Now().UTC(),
	}
	return &Index{info: info, chunks: chunks, embedder: embedder}, nil
}

// FromChunks rebuilds an index from persisted chunks without re-embedding them.
func FromChunks(info model.DocumentInfo, chunks []model.Chunk, embedder Embedder) *Index {
	info.Chunks = len(chunks)
	return &Index{info: info, chunks: chunks, embedder: embedder}
}

// Info describes the indexed document.
func (x *Index) Info() model.DocumentInfo { return x.info }

// Version is the monotonically increasing ingest number.
func (x *Index) Version() int64 { return x.info.Version }

// Chunks returns a copy of the indexed chunks, in document order.
func (x *Index) Chunks() []model.Chunk {
	out := make([]model.Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Retrieve returns up to k passages ranked by descending similarity to query.
func (x *Index) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 || len(x.chunks) == 0 {
		return nil, nil
	}
	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, upstream("embed query", err)
	}
	if len(vectors) != 1 {
		return nil, upstream("embed query", fmt.Errorf("got %d vectors for 1 query", len(vectors)))
	}
	q := vectors[0]

	passages := make([]Passage, len(x.chunks))
	for i, c := range x.chunks {
		passages[i] = Passage{Text: c.Text, Score: Cosine(q, c.Vector)}
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })

	if k < len(passages) {
		passages = passages[:k]
	}
	return passages, nil
}

// RetrieveTop returns the single best passage; ok is false when the index is empty.
func (x *Index) RetrieveTop(ctx context.Context, query string) (Passage, bool, error) {
	passages, err := x.Retrieve(ctx, query, 1)
	if err != nil {
		return Passage{}, false, err
	}
	if len(passages) == 0 {
		return Passage{}, false, nil
	}
	return passages[0], true, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Split breaks text into windows of size words, consecutive windows sharing
// overlap words.
func Split(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var out []string
	step := size - overlap
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

func upstream(op string, err error) error {
	if llm.IsUpstream(err) {
		return err
	}
	return &llm.UpstreamError{Op: op, Err: err}
}

// Handle publishes the current index. Readers take one Snapshot per request
// and never observe a partially built index.
type Handle struct {
	current atomic.Pointer[Index]
}

// Snapshot returns the current index, or nil when no document has been ingested.
func (h *Handle) Snapshot() *Index {
	return h.current.Load()
}

// Replace publishes idx; in-flight requests keep the snapshot they already hold.
func (h *Handle) Replace(idx *Index) {
	h.current.Store(idx)
}

// NextVersion is the version the next ingest should carry.
func (h *Handle) NextVersion() int64 {
	if cur := h.Snapshot(); cur != nil {
		return cur.Version() + 1
	}
	return 1
}
