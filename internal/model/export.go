package model

import "time"

// FeedbackExport is the top-level JSON structure for feedback export.
type FeedbackExport struct {
	ExamID     string          `json:"exam_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Difficulty Difficulty      `json:"difficulty"`
	Topics     []string        `json:"topics"`
	TotalMarks int             `json:"total_marks"`
	Results    []LearnerResult `json:"results"`
}

// LearnerResult holds one learner's scored answers for export.
type LearnerResult struct {
	UserID      string           `json:"user_id"`
	Score       int              `json:"score"`
	Answered    int              `json:"answered"`
	Feedback    []AnswerFeedback `json:"feedback"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

// NewLearnerResult totals a feedback set.
func NewLearnerResult(set FeedbackSet) LearnerResult {
	total := 0
	for _, f := range set.Feedback {
		total += f.Score
	}
	return LearnerResult{
		UserID:      set.UserID,
		Score:       total,
		Answered:    len(set.Feedback),
		Feedback:    set.Feedback,
		EvaluatedAt: set.UpdatedAt,
	}
}
