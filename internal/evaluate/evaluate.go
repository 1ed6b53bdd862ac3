// Package evaluate scores learner answers with the same grounding decision
// used to generate the questions.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/records"
	"github.com/pavelanni/examgen/internal/router"
)

// Evaluator scores answers one backend call at a time.
type Evaluator struct {
	backends router.Backends
	prompts  *prompts.Set
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(backends router.Backends, p *prompts.Set) *Evaluator {
	return &Evaluator{backends: backends, prompts: p}
}

// Evaluate routes once on primaryTopic and scores every non-blank answer.
// Blank answers produce no feedback entry.
func (ev *Evaluator) Evaluate(ctx context.Context, primaryTopic string, answered []model.AnsweredQuestion, idx *index.Index) ([]model.AnswerFeedback, error) {
	src, err := router.Route(ctx, primaryTopic, idx)
	if err != nil {
		return nil, err
	}
	backend, err := ev.backends.For(src, idx)
	if err != nil {
		return nil, err
	}

	feedback := []model.AnswerFeedback{}
	for _, aq := range answered {
		if strings.TrimSpace(aq.Answer) == "" {
			continue
		}

		instruction, err := ev.prompts.Score(aq.Question, aq.Answer)
		if err != nil {
			return nil, fmt.Errorf("render score instruction: %w", err)
		}
		raw, err := backend.Complete(ctx, instruction)
		if err != nil {
			return nil, fmt.Errorf("score question %s: %w", aq.Question.ID, err)
		}
		slog.Debug("scoring output", "question", aq.Question.ID, "source", src, "raw", raw)

		score, text := records.ParseScore(raw)
		feedback = append(feedback, model.AnswerFeedback{
			QuestionID:   aq.Question.ID,
			QuestionText: aq.Question.Text,
			AnswerText:   aq.Answer,
			Score:        score,
			FeedbackText: text,
		})
	}
	return feedback, nil
}

// ExamReader loads a stored exam.
type ExamReader interface {
	GetExam(ctx context.Context, examID string) (model.Exam, error)
}

// DraftReader lists the saved drafts of an exam.
type DraftReader interface {
	DraftsForExam(ctx context.Context, examID string) ([]model.Draft, error)
}

// FeedbackWriter stores one learner's feedback, replacing any previous set.
type FeedbackWriter interface {
	UpsertFeedback(ctx context.Context, set model.FeedbackSet) error
}

// Service evaluates every saved draft of an exam.
type Service struct {
	evaluator *Evaluator
	handle    *index.Handle
	exams     ExamReader
	drafts    DraftReader
	feedback  FeedbackWriter
}

// NewService creates a Service.
func NewService(ev *Evaluator, handle *index.Handle, exams ExamReader, drafts DraftReader, feedback FeedbackWriter) *Service {
	return &Service{evaluator: ev, handle: handle, exams: exams, drafts: drafts, feedback: feedback}
}

// EvaluateExam scores all drafts of examID and stores one feedback set per
// learner. Nothing is stored unless every draft was scored.
func (s *Service) EvaluateExam(ctx context.Context, examID string) ([]model.FeedbackSet, error) {
	e, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam %s: %w", examID, err)
	}
	topic := e.PrimaryTopic()
	if topic == "" {
		return nil, fmt.Errorf("exam %s has no primary skill: %w", examID, model.ErrMissingPrerequisite)
	}

	drafts, err := s.drafts.DraftsForExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load drafts for exam %s: %w", examID, err)
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("exam %s has no saved drafts: %w", examID, model.ErrMissingPrerequisite)
	}

	var snap *index.Index
	if s.handle != nil {
		snap = s.handle.Snapshot()
	}

	questions := e.Questions()
	sets := make([]model.FeedbackSet, 0, len(drafts))
	for _, d := range drafts {
		fb, err := s.evaluator.Evaluate(ctx, topic, Pair(questions, d.Answers), snap)
		if err != nil {
			return nil, fmt.Errorf("evaluate draft of %s: %w", d.UserID, err)
		}
		sets = append(sets, model.FeedbackSet{ExamID: examID, UserID: d.UserID, Feedback: fb})
	}

	now := time.Now().UTC()
	for i := range sets {
		sets[i].UpdatedAt = now
		if err := s.feedback.UpsertFeedback(ctx, sets[i]); err != nil {
			return nil, fmt.Errorf("store feedback for %s: %w", sets[i].UserID, err)
		}
	}

	slog.Info("exam evaluated", "exam_id", examID, "learners", len(sets))
	return sets, nil
}

// Pair aligns answers with questions by position. Extra answers are dropped;
// questions without an answer get a blank one.
func Pair(questions []model.Question, answers []model.DraftAnswer) []model.AnsweredQuestion {
	out := make([]model.AnsweredQuestion, len(questions))
	for i, q := range questions {
		out[i].Question = q
		if i < len(answers) {
			out[i].Answer = answers[i].Answer
		}
	}
	return out
}
