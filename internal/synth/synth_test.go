package synth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/router"
)

func newTestSynth(t *testing.T, responses ...llm.MockResponse) (*Synthesizer, *llm.MockCompleter) {
	t.Helper()
	mock := llm.NewMockCompleter(responses...)
	p := prompts.Default()
	return New(router.Backends{Model: mock, Prompts: p}, p), mock
}

func modelRoutes(topics ...string) []model.TopicRoute {
	routes := make([]model.TopicRoute, len(topics))
	for i, t := range topics {
		routes[i] = model.TopicRoute{Topic: t, Source: model.SourceModel}
	}
	return routes
}

func TestSynthesizeOrderAndNumbering(t *testing.T) {
	s, mock := newTestSynth(t,
		llm.MockResponse{Text: `[{"qtext": "trees mcq 1"}, {"qtext": "trees mcq 2"}]`},
		llm.MockResponse{Text: `[{"qtext": "trees text"}]`},
		llm.MockResponse{Text: `[{"qtext": "trees code"}]`},
		llm.MockResponse{Text: `[{"qtext": "graphs mcq"}]`},
		llm.MockResponse{Text: `[{"qtext": "graphs text"}]`},
		llm.MockResponse{Text: `[{"qtext": "graphs code"}]`},
	)

	req := model.GenerationRequest{
		Topics: []string{"trees", "graphs"}, MCQCount: 2, TextCount: 1, CodeCount: 1,
		Difficulty: model.DifficultyMedium, Routes: modelRoutes("trees", "graphs"),
	}
	got, err := s.Synthesize(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	wantTexts := []string{"trees mcq 1", "trees mcq 2", "trees text", "trees code", "graphs mcq", "graphs text", "graphs code"}
	wantTypes := []model.QuestionType{model.TypeMCQ, model.TypeMCQ, model.TypeText, model.TypeCode, model.TypeMCQ, model.TypeText, model.TypeCode}
	if len(got) != len(wantTexts) {
		t.Fatalf("got %d questions, want %d", len(got), len(wantTexts))
	}
	for i, q := range got {
		if q.Text != wantTexts[i] || q.Type != wantTypes[i] {
			t.Errorf("q[%d] = %s %q, want %s %q", i, q.Type, q.Text, wantTypes[i], wantTexts[i])
		}
		if q.SequenceNo != i+1 || q.ID != strconv.Itoa(i+1) {
			t.Errorf("q[%d] numbered %s/%d, want %d", i, q.ID, q.SequenceNo, i+1)
		}
	}

	if mock.CallCount() != 6 {
		t.Errorf("backend calls = %d, want 6", mock.CallCount())
	}
	if !strings.Contains(mock.Calls[0], "multiple-choice questions about trees") {
		t.Errorf("first call should ask for trees MCQs:\n%s", mock.Calls[0])
	}
	if !strings.Contains(mock.Calls[5], "coding questions about graphs") {
		t.Errorf("last call should ask for graphs code questions:\n%s", mock.Calls[5])
	}
}

func TestSynthesizeCodeLanguages(t *testing.T) {
	s, _ := newTestSynth(t,
		llm.MockResponse{Text: `[{"qtext": "explain"}]`},
		llm.MockResponse{Text: `[{"qtext": "implement"}]`},
	)
	req := model.GenerationRequest{
		Topics: []string{"recursion"}, TextCount: 1, CodeCount: 1,
		Difficulty: model.DifficultyEasy, Routes: modelRoutes("recursion"),
	}
	got, err := s.Synthesize(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
	if len(got[0].Languages) != 0 {
		t.Errorf("text question languages = %v, want none", got[0].Languages)
	}
	if len(got[1].Languages) != 1 || got[1].Languages[0] != "python" {
		t.Errorf("code question languages = %v, want [python]", got[1].Languages)
	}
}

func TestSynthesizeSkipsZeroCounts(t *testing.T) {
	s, mock := newTestSynth(t, llm.MockResponse{Text: `[{"qtext": "only text"}]`})
	req := model.GenerationRequest{
		Topics: []string{"heaps"}, TextCount: 1,
		Difficulty: model.DifficultyHard, Routes: modelRoutes("heaps"),
	}
	got, err := s.Synthesize(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("backend calls = %d, want 1", mock.CallCount())
	}
	if len(got) != 1 || got[0].Type != model.TypeText {
		t.Errorf("got %+v", got)
	}
}

func TestSynthesizeUnparseableBatchKeepsNumberingContiguous(t *testing.T) {
	s, _ := newTestSynth(t,
		llm.MockResponse{Text: "Sorry, I can't help with that."},
		llm.MockResponse{Text: `[{"qtext": "a"}, {"qtext": "b"}]`},
	)
	req := model.GenerationRequest{
		Topics: []string{"x"}, MCQCount: 2, TextCount: 2,
		Difficulty: model.DifficultyMedium, Routes: modelRoutes("x"),
	}
	got, err := s.Synthesize(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
	if got[0].SequenceNo != 1 || got[1].SequenceNo != 2 {
		t.Errorf("sequence numbers = %d, %d; want 1, 2", got[0].SequenceNo, got[1].SequenceNo)
	}
}

func TestSynthesizeBackendErrorAborts(t *testing.T) {
	boom := &llm.UpstreamError{Op: "chat completion", Err: errors.New("503")}
	s, mock := newTestSynth(t,
		llm.MockResponse{Text: `[{"qtext": "a"}]`},
		llm.MockResponse{Err: boom},
		llm.MockResponse{Text: `[{"qtext": "never"}]`},
	)
	req := model.GenerationRequest{
		Topics: []string{"x"}, MCQCount: 1, TextCount: 1, CodeCount: 1,
		Difficulty: model.DifficultyMedium, Routes: modelRoutes("x"),
	}
	got, err := s.Synthesize(context.Background(), req, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want backend error", err)
	}
	if got != nil {
		t.Errorf("no questions should be returned on failure, got %d", len(got))
	}
	if mock.CallCount() != 2 {
		t.Errorf("synthesis should stop at the failing call, made %d", mock.CallCount())
	}
}

func TestSynthesizePDFRouteWithoutIndex(t *testing.T) {
	s, _ := newTestSynth(t)
	req := model.GenerationRequest{
		Topics: []string{"x"}, MCQCount: 1, Difficulty: model.DifficultyMedium,
		Routes: []model.TopicRoute{{Topic: "x", Source: model.SourcePDF}},
	}
	if _, err := s.Synthesize(context.Background(), req, nil); err == nil {
		t.Error("a pdf route without an index should fail")
	}
}
