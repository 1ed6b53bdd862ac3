// Package workflow runs the two-stage generation pipeline: route every topic,
// then synthesize and assemble the exam.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/index"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/router"
	"github.com/pavelanni/examgen/internal/synth"
)

// ErrNoQuestions is returned when every backend reply was unparseable or empty.
var ErrNoQuestions = &llm.UpstreamError{
	Op:  "question generation",
	Err: errors.New("no parseable questions were produced"),
}

// State is a stage of one generation run.
type State int

const (
	StateRouting State = iota
	StateGenerating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRouting:
		return "routing"
	case StateGenerating:
		return "generating"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Workflow drives a GenerationRequest from routing to an assembled exam.
type Workflow struct {
	handle *index.Handle
	synth  *synth.Synthesizer
	policy router.Policy
}

// New creates a Workflow reading the index from handle.
func New(handle *index.Handle, s *synth.Synthesizer, policy router.Policy) *Workflow {
	return &Workflow{handle: handle, synth: s, policy: policy}
}

// Run validates req and executes it against a single index snapshot.
// Nothing is persisted.
func (w *Workflow) Run(ctx context.Context, req model.GenerationRequest) (model.Exam, error) {
	if err := req.Validate(); err != nil {
		return model.Exam{}, err
	}
	req.Difficulty, _ = model.ParseDifficulty(string(req.Difficulty))
	req.Routes, req.Result = nil, nil

	var snap *index.Index
	if w.handle != nil {
		snap = w.handle.Snapshot()
	}

	started := time.Now()
	state := StateRouting
	for state != StateDone {
		next, err := w.step(ctx, state, &req, snap)
		if err != nil {
			return model.Exam{}, fmt.Errorf("%s: %w", state, err)
		}
		slog.Debug("workflow transition", "from", state, "to", next)
		state = next
	}

	slog.Info("exam generated",
		"topics", req.Topics,
		"questions", len(req.Result.Questions()),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return *req.Result, nil
}

func (w *Workflow) step(ctx context.Context, state State, req *model.GenerationRequest, idx *index.Index) (State, error) {
	switch state {
	case StateRouting:
		routes, err := router.Plan(ctx, req.Topics, idx, w.policy)
		if err != nil {
			return state, err
		}
		req.Routes = routes
		return StateGenerating, nil

	case StateGenerating:
		questions, err := w.synth.Synthesize(ctx, *req, idx)
		if err != nil {
			return state, err
		}
		if len(questions) == 0 {
			return state, ErrNoQuestions
		}
		e := exam.Assemble(questions, req.Difficulty, req.Topics)
		req.Result = &e
		return StateDone, nil

	case StateDone:
		return StateDone, nil
	}
	return state, fmt.Errorf("unknown workflow state %d", int(state))
}

// ExamStore persists assembled exams.
type ExamStore interface {
	InsertExam(ctx context.Context, e model.Exam) (string, error)
}

// Service runs the workflow and persists the result.
type Service struct {
	workflow *Workflow
	store    ExamStore
}

// NewService creates a Service.
func NewService(w *Workflow, store ExamStore) *Service {
	return &Service{workflow: w, store: store}
}

// Generate runs req and stores the exam under its canonical id.
func (s *Service) Generate(ctx context.Context, req model.GenerationRequest) (model.Exam, error) {
	e, err := s.workflow.Run(ctx, req)
	if err != nil {
		return model.Exam{}, err
	}
	id, err := s.store.InsertExam(ctx, e)
	if err != nil {
		return model.Exam{}, fmt.Errorf("store exam: %w", err)
	}
	e.ExamID = id
	return e, nil
}
