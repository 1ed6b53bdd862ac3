package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examgen/internal/model"
)

// ExportFeedback builds export-ready learner results for one exam.
// An exam that has not been evaluated yet exports with no results.
func (s *Store) ExportFeedback(ctx context.Context, examID string) (model.FeedbackExport, error) {
	e, err := s.GetExam(ctx, examID)
	if err != nil {
		return model.FeedbackExport{}, err
	}

	sets, err := s.FeedbackForExam(ctx, examID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.FeedbackExport{}, fmt.Errorf("list feedback: %w", err)
	}

	results := make([]model.LearnerResult, 0, len(sets))
	for _, set := range sets {
		results = append(results, model.NewLearnerResult(set))
	}

	return model.FeedbackExport{
		ExamID:     e.ExamID,
		ExportedAt: time.Now().UTC(),
		Difficulty: e.DifficultyLevel,
		Topics:     e.PrimarySkills,
		TotalMarks: e.TotalMarks,
		Results:    results,
	}, nil
}
