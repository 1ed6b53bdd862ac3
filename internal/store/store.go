package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/pavelanni/examgen/internal/model"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects to the database and ensures the schema exists.
// An empty dsn selects a local default for the driver.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "file:examgen.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/examgen?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS exams (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam_id TEXT UNIQUE,
	placeholder_id TEXT NOT NULL,
	document TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS drafts (
	exam_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	answers_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (exam_id, user_id)
);

CREATE TABLE IF NOT EXISTS feedback (
	exam_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	feedback_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (exam_id, user_id)
);

CREATE TABLE IF NOT EXISTS document_chunks (
	seq INTEGER PRIMARY KEY,
	text TEXT NOT NULL,
	vector_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS store_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS exams (
	id BIGSERIAL PRIMARY KEY,
	exam_id TEXT UNIQUE,
	placeholder_id TEXT NOT NULL,
	document TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS drafts (
	exam_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	answers_json TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (exam_id, user_id)
);

CREATE TABLE IF NOT EXISTS feedback (
	exam_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	feedback_json TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (exam_id, user_id)
);

CREATE TABLE IF NOT EXISTS document_chunks (
	seq INTEGER PRIMARY KEY,
	text TEXT NOT NULL,
	vector_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS store_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// InsertExam stores e and returns its canonical id, which replaces the
// placeholder exam_id both in the row and in the stored document.
func (s *Store) InsertExam(ctx context.Context, e model.Exam) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	placeholder := e.ExamID
	doc, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode exam: %w", err)
	}

	var rowID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO exams (placeholder_id, document, created_at) VALUES ($1, $2, $3) RETURNING id`,
		placeholder, string(doc), time.Now().Unix(),
	).Scan(&rowID)
	if err != nil {
		return "", fmt.Errorf("insert exam: %w", err)
	}

	e.ExamID = strconv.FormatInt(rowID, 10)
	doc, err = json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode exam: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE exams SET exam_id = $1, document = $2 WHERE id = $3`,
		e.ExamID, string(doc), rowID,
	); err != nil {
		return "", fmt.Errorf("assign exam id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Info("stored exam", "exam_id", e.ExamID, "placeholder", placeholder, "questions", len(e.Questions()))
	return e.ExamID, nil
}

// GetExam returns the exam with the given canonical id.
func (s *Store) GetExam(ctx context.Context, examID string) (model.Exam, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM exams WHERE exam_id = $1`, examID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, fmt.Errorf("exam %s: %w", examID, model.ErrNotFound)
	}
	if err != nil {
		return model.Exam{}, err
	}
	return decodeExam(doc)
}

// LatestExam returns the most recently inserted exam.
func (s *Store) LatestExam(ctx context.Context) (model.Exam, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM exams ORDER BY id DESC LIMIT 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, fmt.Errorf("latest exam: %w", model.ErrNotFound)
	}
	if err != nil {
		return model.Exam{}, err
	}
	return decodeExam(doc)
}

// ExamIDs returns every canonical exam id in insertion order.
func (s *Store) ExamIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exam_id FROM exams WHERE exam_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func decodeExam(doc string) (model.Exam, error) {
	var e model.Exam
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return model.Exam{}, fmt.Errorf("decode exam: %w", err)
	}
	return e, nil
}

// SaveDraft inserts or replaces a learner's draft.
func (s *Store) SaveDraft(ctx context.Context, d model.Draft) error {
	answers := d.Answers
	if answers == nil {
		answers = []model.DraftAnswer{}
	}
	buf, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (exam_id, user_id, answers_json, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id) DO UPDATE SET answers_json = EXCLUDED.answers_json, updated_at = EXCLUDED.updated_at`,
		d.ExamID, d.UserID, string(buf), updated.Unix(),
	)
	return err
}

// GetDraft returns one learner's draft for an exam.
func (s *Store) GetDraft(ctx context.Context, examID, userID string) (model.Draft, error) {
	var answers string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT answers_json, updated_at FROM drafts WHERE exam_id = $1 AND user_id = $2`, examID, userID,
	).Scan(&answers, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Draft{}, fmt.Errorf("draft of %s for exam %s: %w", userID, examID, model.ErrNotFound)
	}
	if err != nil {
		return model.Draft{}, err
	}
	d := model.Draft{ExamID: examID, UserID: userID, UpdatedAt: time.Unix(updated, 0).UTC()}
	if err := json.Unmarshal([]byte(answers), &d.Answers); err != nil {
		return model.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

// DraftsForExam returns every saved draft of an exam, ordered by user id.
func (s *Store) DraftsForExam(ctx context.Context, examID string) ([]model.Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, answers_json, updated_at FROM drafts WHERE exam_id = $1 ORDER BY user_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drafts []model.Draft
	for rows.Next() {
		var answers string
		var updated int64
		d := model.Draft{ExamID: examID}
		if err := rows.Scan(&d.UserID, &answers, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &d.Answers); err != nil {
			return nil, fmt.Errorf("decode draft of %s: %w", d.UserID, err)
		}
		d.UpdatedAt = time.Unix(updated, 0).UTC()
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// UpsertFeedback replaces the feedback set of (exam, user).
func (s *Store) UpsertFeedback(ctx context.Context, set model.FeedbackSet) error {
	fb := set.Feedback
	if fb == nil {
		fb = []model.AnswerFeedback{}
	}
	buf, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	updated := set.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (exam_id, user_id, feedback_json, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id) DO UPDATE SET feedback_json = EXCLUDED.feedback_json, updated_at = EXCLUDED.updated_at`,
		set.ExamID, set.UserID, string(buf), updated.Unix(),
	)
	return err
}

// FeedbackForExam returns every learner's feedback set for an exam, ordered by user id.
// An exam without feedback yields ErrNotFound.
func (s *Store) FeedbackForExam(ctx context.Context, examID string) ([]model.FeedbackSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, feedback_json, updated_at FROM feedback WHERE exam_id = $1 ORDER BY user_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sets []model.FeedbackSet
	for rows.Next() {
		var fb string
		var updated int64
		set := model.FeedbackSet{ExamID: examID}
		if err := rows.Scan(&set.UserID, &fb, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fb), &set.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback of %s: %w", set.UserID, err)
		}
		set.UpdatedAt = time.Unix(updated, 0).UTC()
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("feedback for exam %s: %w", examID, model.ErrNotFound)
	}
	return sets, nil
}
