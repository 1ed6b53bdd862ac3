package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/examgen/internal/model"
)

// DocumentStore persists the chunks of the current document.
type DocumentStore interface {
	ReplaceDocument(ctx context.Context, info model.DocumentInfo, chunks []model.Chunk) error
	LoadDocument(ctx context.Context) (model.DocumentInfo, []model.Chunk, error)
}

// ExtractText returns the plain text of an uploaded file. PDFs are parsed;
// .txt and .md files are taken as-is.
func ExtractText(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return pdfText(data)
	case ".txt", ".md", ".markdown":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", model.ErrInvalidRequest, name)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", model.ErrInvalidRequest, filepath.Ext(name))
	}
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", model.ErrInvalidRequest, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extract pdf text: %v", model.ErrInvalidRequest, err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(text), nil
}

// Ingester rebuilds the index wholesale from an uploaded document, persists
// it and swaps it into the handle. Ingests are serialized.
type Ingester struct {
	handle   *Handle
	embedder Embedder
	store    DocumentStore
	mu       sync.Mutex
}

// NewIngester creates an ingester publishing into handle.
func NewIngester(handle *Handle, embedder Embedder, store DocumentStore) *Ingester {
	return &Ingester{handle: handle, embedder: embedder, store: store}
}

// Ingest replaces the current index with one built from data.
func (g *Ingester) Ingest(ctx context.Context, name string, data []byte) (model.DocumentInfo, error) {
	text, err := ExtractText(name, data)
	if err != nil {
		return model.DocumentInfo{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, err := Build(ctx, filepath.Base(name), text, g.embedder, g.handle.NextVersion())
	if errors.Is(err, ErrEmptyDocument) {
		return model.DocumentInfo{}, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	if err != nil {
		return model.DocumentInfo{}, fmt.Errorf("build index: %w", err)
	}

	if g.store != nil {
		if err := g.store.ReplaceDocument(ctx, idx.Info(), idx.Chunks()); err != nil {
			return model.DocumentInfo{}, fmt.Errorf("persist index: %w", err)
		}
	}
	g.handle.Replace(idx)

	slog.Info("document indexed", "name", idx.Info().Name, "version", idx.Version(), "chunks", idx.Info().Chunks)
	return idx.Info(), nil
}

// Restore loads the persisted document, if any, into the handle.
func (g *Ingester) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	info, chunks, err := g.store.LoadDocument(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load persisted index: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.handle.Replace(FromChunks(info, chunks, g.embedder))
	slog.Info("restored document index", "name", info.Name, "version", info.Version, "chunks", len(chunks))
	return nil
}
