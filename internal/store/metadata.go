package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

const (
	keyDocumentName    = "document_name"
	keyDocumentVersion = "document_version"
	keyDocumentIndexed = "document_indexed_at"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func setMetadata(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO store_metadata (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return err
}

// getMetadata returns "" and a nil error when the key is missing.
func getMetadata(ctx context.Context, db queryer, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM store_metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetMetadata upserts a key-value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, s.db, key, value)
}

// GetMetadata returns the value for key, or "" when it is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, s.db, key)
}

// ReplaceDocument swaps the persisted document for info and chunks in one transaction.
func (s *Store) ReplaceDocument(ctx context.Context, info model.DocumentInfo, chunks []model.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, c := range chunks {
		vec, err := json.Marshal(c.Vector)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", c.Seq, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_chunks (seq, text, vector_json) VALUES ($1, $2, $3)`,
			c.Seq, c.Text, string(vec),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Seq, err)
		}
	}

	pairs := []struct{ k, v string }{
		{keyDocumentName, info.Name},
		{keyDocumentVersion, strconv.FormatInt(info.Version, 10)},
		{keyDocumentIndexed, info.IndexedAt.UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if err := setMetadata(ctx, tx, p.k, p.v); err != nil {
			return fmt.Errorf("set %s: %w", p.k, err)
		}
	}
	return tx.Commit()
}

// LoadDocument returns the persisted document, or ErrNotFound when none was ingested.
func (s *Store) LoadDocument(ctx context.Context) (model.DocumentInfo, []model.Chunk, error) {
	var info model.DocumentInfo
	var err error

	if info.Name, err = s.GetMetadata(ctx, keyDocumentName); err != nil {
		return info, nil, err
	}
	if info.Name == "" {
		return info, nil, fmt.Errorf("document: %w", model.ErrNotFound)
	}
	v, err := s.GetMetadata(ctx, keyDocumentVersion)
	if err != nil {
		return info, nil, err
	}
	if v != "" {
		if info.Version, err = strconv.ParseInt(v, 10, 64); err != nil {
			return info, nil, fmt.Errorf("parse document version: %w", err)
		}
	}
	at, err := s.GetMetadata(ctx, keyDocumentIndexed)
	if err != nil {
		return info, nil, err
	}
	if at != "" {
		if info.IndexedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return info, nil, fmt.Errorf("parse document timestamp: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, text, vector_json FROM document_chunks ORDER BY seq`)
	if err != nil {
		return info, nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var vec string
		if err := rows.Scan(&c.Seq, &c.Text, &vec); err != nil {
			return info, nil, err
		}
		if err := json.Unmarshal([]byte(vec), &c.Vector); err != nil {
			return info, nil, fmt.Errorf("decode chunk %d: %w", c.Seq, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return info, nil, err
	}
	info.Chunks = len(chunks)
	return info, chunks, nil
}
