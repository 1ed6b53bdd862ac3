package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testExam(placeholder string, topics ...string) model.Exam {
	return model.Exam{
		ExamID:          placeholder,
		TotalSections:   1,
		DifficultyLevel: model.DifficultyMedium,
		PrimarySkills:   topics,
		SecondarySkills: []string{},
		TotalMarks:      20,
		Sections: []model.Section{{
			ID:         "sec-" + placeholder,
			Name:       "Generated Questions",
			TotalMarks: 20,
			Questions: []model.Question{
				{ID: "1", SequenceNo: 1, Text: "What is recursion?", Type: model.TypeText, Options: []string{}, Languages: []string{}},
				{ID: "2", SequenceNo: 2, Text: "Write factorial", Type: model.TypeCode, Options: []string{}, Languages: []string{"python"}},
			},
		}},
	}
}

func insertTestExam(t *testing.T, s *Store, placeholder string, topics ...string) string {
	t.Helper()
	id, err := s.InsertExam(context.Background(), testExam(placeholder, topics...))
	if err != nil {
		t.Fatalf("insertTestExam: %v", err)
	}
	return id
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", ""); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestExamLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty store.
	if _, err := s.LatestExam(ctx); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LatestExam on empty store: %v, want ErrNotFound", err)
	}
	ids, err := s.ExamIDs(ctx)
	if err != nil {
		t.Fatalf("ExamIDs: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("ExamIDs on empty store = %v, want empty", ids)
	}

	first := insertTestExam(t, s, "uuid-1", "recursion")
	second := insertTestExam(t, s, "uuid-2", "graphs")
	if first == "uuid-1" || first == second {
		t.Errorf("canonical ids should be fresh and distinct: %q %q", first, second)
	}

	e, err := s.GetExam(ctx, first)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if e.ExamID != first {
		t.Errorf("stored document exam_id = %q, want canonical %q", e.ExamID, first)
	}
	if e.PrimaryTopic() != "recursion" || len(e.Questions()) != 2 {
		t.Errorf("unexpected exam: %+v", e)
	}
	if e.Questions()[1].Languages[0] != "python" {
		t.Errorf("languages not round-tripped: %+v", e.Questions()[1])
	}

	latest, err := s.LatestExam(ctx)
	if err != nil {
		t.Fatalf("LatestExam: %v", err)
	}
	if latest.ExamID != second {
		t.Errorf("LatestExam = %q, want %q", latest.ExamID, second)
	}

	ids, err = s.ExamIDs(ctx)
	if err != nil {
		t.Fatalf("ExamIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{first, second}) {
		t.Errorf("ExamIDs = %v, want [%s %s]", ids, first, second)
	}

	if _, err := s.GetExam(ctx, "uuid-1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("placeholder ids must not resolve: %v", err)
	}
	if _, err := s.GetExam(ctx, "9999"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetExam(9999): %v, want ErrNotFound", err)
	}
}

func TestDrafts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetDraft(ctx, "1", "alice"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetDraft on empty store: %v, want ErrNotFound", err)
	}

	d := model.Draft{ExamID: "1", UserID: "alice", Answers: []model.DraftAnswer{{QuestionID: "1", Answer: "a"}, {Answer: ""}}}
	if err := s.SaveDraft(ctx, d); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	got, err := s.GetDraft(ctx, "1", "alice")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if !reflect.DeepEqual(got.Answers, d.Answers) {
		t.Errorf("answers = %+v, want %+v", got.Answers, d.Answers)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	// Saving again replaces the answers.
	d.Answers = []model.DraftAnswer{{Answer: "changed"}}
	if err := s.SaveDraft(ctx, d); err != nil {
		t.Fatalf("SaveDraft (update): %v", err)
	}
	if err := s.SaveDraft(ctx, model.Draft{ExamID: "1", UserID: "bob"}); err != nil {
		t.Fatalf("SaveDraft (bob): %v", err)
	}
	if err := s.SaveDraft(ctx, model.Draft{ExamID: "2", UserID: "carol"}); err != nil {
		t.Fatalf("SaveDraft (other exam): %v", err)
	}

	drafts, err := s.DraftsForExam(ctx, "1")
	if err != nil {
		t.Fatalf("DraftsForExam: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}
	if drafts[0].UserID != "alice" || len(drafts[0].Answers) != 1 || drafts[0].Answers[0].Answer != "changed" {
		t.Errorf("alice draft = %+v", drafts[0])
	}
	if drafts[1].UserID != "bob" || drafts[1].Answers == nil {
		t.Errorf("bob draft = %+v", drafts[1])
	}
}

func TestFeedbackUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FeedbackForExam(ctx, "1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("FeedbackForExam on empty store: %v, want ErrNotFound", err)
	}

	set := model.FeedbackSet{ExamID: "1", UserID: "alice", Feedback: []model.AnswerFeedback{
		{QuestionID: "1", QuestionText: "Q", AnswerText: "A", Score: 7, FeedbackText: "ok"},
	}}
	if err := s.UpsertFeedback(ctx, set); err != nil {
		t.Fatalf("UpsertFeedback: %v", err)
	}

	set.Feedback = []model.AnswerFeedback{{QuestionID: "2", Score: 3, FeedbackText: "retry"}}
	set.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.UpsertFeedback(ctx, set); err != nil {
		t.Fatalf("UpsertFeedback (replace): %v", err)
	}

	sets, err := s.FeedbackForExam(ctx, "1")
	if err != nil {
		t.Fatalf("FeedbackForExam: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d sets, want 1", len(sets))
	}
	if !reflect.DeepEqual(sets[0].Feedback, set.Feedback) {
		t.Errorf("feedback = %+v, want last write %+v", sets[0].Feedback, set.Feedback)
	}
	if !sets[0].UpdatedAt.Equal(set.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", sets[0].UpdatedAt, set.UpdatedAt)
	}
}

func TestDocumentPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.LoadDocument(ctx); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LoadDocument on empty store: %v, want ErrNotFound", err)
	}

	indexed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := model.DocumentInfo{Name: "notes.pdf", Version: 2, IndexedAt: indexed}
	chunks := []model.Chunk{
		{Seq: 0, Text: "first", Vector: []float32{0.5, 1}},
		{Seq: 1, Text: "second", Vector: []float32{-1, 0.25}},
	}
	if err := s.ReplaceDocument(ctx, info, chunks); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}

	gotInfo, gotChunks, err := s.LoadDocument(ctx)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if gotInfo.Name != "notes.pdf" || gotInfo.Version != 2 || gotInfo.Chunks != 2 || !gotInfo.IndexedAt.Equal(indexed) {
		t.Errorf("info = %+v", gotInfo)
	}
	if !reflect.DeepEqual(gotChunks, chunks) {
		t.Errorf("chunks = %+v, want %+v", gotChunks, chunks)
	}

	// A new document replaces every old chunk.
	if err := s.ReplaceDocument(ctx, model.DocumentInfo{Name: "v3.txt", Version: 3, IndexedAt: indexed},
		[]model.Chunk{{Seq: 0, Text: "only", Vector: []float32{1}}}); err != nil {
		t.Fatalf("ReplaceDocument (second): %v", err)
	}
	gotInfo, gotChunks, err = s.LoadDocument(ctx)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if gotInfo.Version != 3 || len(gotChunks) != 1 || gotChunks[0].Text != "only" {
		t.Errorf("after replace: %+v %+v", gotInfo, gotChunks)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetMetadata(ctx, "missing")
	if err != nil || v != "" {
		t.Errorf("GetMetadata(missing) = %q, %v", v, err)
	}
	if err := s.SetMetadata(ctx, "k", "1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata(ctx, "k", "2"); err != nil {
		t.Fatalf("SetMetadata (update): %v", err)
	}
	if v, _ := s.GetMetadata(ctx, "k"); v != "2" {
		t.Errorf("GetMetadata(k) = %q, want 2", v)
	}
}

func TestExportFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ExportFeedback(ctx, "404"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ExportFeedback on missing exam: %v, want ErrNotFound", err)
	}

	id := insertTestExam(t, s, "uuid", "recursion", "trees")

	exp, err := s.ExportFeedback(ctx, id)
	if err != nil {
		t.Fatalf("ExportFeedback (no feedback): %v", err)
	}
	if exp.Results == nil || len(exp.Results) != 0 {
		t.Errorf("unevaluated exam should export empty results, got %+v", exp.Results)
	}

	for _, set := range []model.FeedbackSet{
		{ExamID: id, UserID: "bob", Feedback: []model.AnswerFeedback{{QuestionID: "1", Score: 4}}},
		{ExamID: id, UserID: "alice", Feedback: []model.AnswerFeedback{{QuestionID: "1", Score: 10}, {QuestionID: "2", Score: 6}}},
	} {
		if err := s.UpsertFeedback(ctx, set); err != nil {
			t.Fatalf("UpsertFeedback: %v", err)
		}
	}

	exp, err = s.ExportFeedback(ctx, id)
	if err != nil {
		t.Fatalf("ExportFeedback: %v", err)
	}
	if exp.ExamID != id || exp.TotalMarks != 20 || !reflect.DeepEqual(exp.Topics, []string{"recursion", "trees"}) {
		t.Errorf("export header = %+v", exp)
	}
	if len(exp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(exp.Results))
	}
	if exp.Results[0].UserID != "alice" || exp.Results[0].Score != 16 || exp.Results[0].Answered != 2 {
		t.Errorf("alice result = %+v", exp.Results[0])
	}
	if exp.Results[1].UserID != "bob" || exp.Results[1].Score != 4 {
		t.Errorf("bob result = %+v", exp.Results[1])
	}
}
