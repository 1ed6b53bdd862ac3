package model

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested exam, draft, feedback set or document is absent.
	ErrNotFound = errors.New("not found")
	// ErrMissingPrerequisite is returned when an evaluation lacks a primary skill or learner drafts.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// QuestionType is the category of a generated question.
type QuestionType string

const (
	TypeMCQ  QuestionType = "MCQ"
	TypeText QuestionType = "Text"
	TypeCode QuestionType = "Code"
)

// QuestionTypes lists the categories in generation order.
var QuestionTypes = []QuestionType{TypeMCQ, TypeText, TypeCode}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty matches s case-insensitively against the known levels.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, true
	case "medium":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	}
	return "", false
}

// Source is the routing verdict: which backend grounds generation and evaluation.
type Source string

const (
	SourcePDF   Source = "pdf"
	SourceModel Source = "model"
)

// Question is a single generated exam question.
type Question struct {
	ID                    string       `json:"id"`
	SequenceNo            int          `json:"qno"`
	Label                 string       `json:"qlabel"`
	Text                  string       `json:"qtext"`
	Type                  QuestionType `json:"qtype"`
	Options               []string     `json:"qoptions"`
	Languages             []string     `json:"qlanguage"`
	Difficulty            Difficulty   `json:"difficulty"`
	AllowsMultipleCorrect bool         `json:"qmulticheck"`
}

// MarksPerQuestion is the fixed weight of every question.
const MarksPerQuestion = 10

// Section groups questions of one exam.
type Section struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TotalMarks      int        `json:"marks"`
	DifficultyLevel Difficulty `json:"difficultyLevel"`
	Questions       []Question `json:"questions"`
}

// Exam is the assembled, persisted exam record.
type Exam struct {
	ExamID          string     `json:"exam_id"`
	TotalSections   int        `json:"totalSections"`
	DifficultyLevel Difficulty `json:"difficultyLevel"`
	PrimarySkills   []string   `json:"primaryskills"`
	SecondarySkills []string   `json:"secondaryskills"`
	TotalMarks      int        `json:"totalMarks"`
	Sections        []Section  `json:"sections"`
}

// PrimaryTopic returns the first primary skill, or "" when none is recorded.
func (e Exam) PrimaryTopic() string {
	if len(e.PrimarySkills) == 0 {
		return ""
	}
	return e.PrimarySkills[0]
}

// Questions returns the questions of the first section.
func (e Exam) Questions() []Question {
	if len(e.Sections) == 0 {
		return nil
	}
	return e.Sections[0].Questions
}

// TopicRoute is the routing verdict for one topic.
type TopicRoute struct {
	Topic  string `json:"topic"`
	Source Source `json:"source"`
}

// GenerationRequest is the request-scoped state of one generation workflow run.
type GenerationRequest struct {
	Topics     []string     `json:"topic"`
	MCQCount   int          `json:"num_mcqs"`
	TextCount  int          `json:"num_text"`
	CodeCount  int          `json:"num_code"`
	Difficulty Difficulty   `json:"difficulty"`
	Routes     []TopicRoute `json:"-"` // unset until routing
	Result     *Exam        `json:"-"` // unset until generation completes
}

// Count returns the requested number of questions of type t.
func (r GenerationRequest) Count(t QuestionType) int {
	switch t {
	case TypeMCQ:
		return r.MCQCount
	case TypeText:
		return r.TextCount
	case TypeCode:
		return r.CodeCount
	}
	return 0
}

// Validate checks the request before any backend is called.
func (r GenerationRequest) Validate() error {
	if len(r.Topics) == 0 {
		return errors.Join(ErrInvalidRequest, errors.New("at least one topic is required"))
	}
	for _, t := range r.Topics {
		if strings.TrimSpace(t) == "" {
			return errors.Join(ErrInvalidRequest, errors.New("topics must be non-empty"))
		}
	}
	if r.MCQCount < 0 || r.TextCount < 0 || r.CodeCount < 0 {
		return errors.Join(ErrInvalidRequest, errors.New("question counts must not be negative"))
	}
	if r.MCQCount+r.TextCount+r.CodeCount == 0 {
		return errors.Join(ErrInvalidRequest, errors.New("at least one question must be requested"))
	}
	if _, ok := ParseDifficulty(string(r.Difficulty)); !ok {
		return errors.Join(ErrInvalidRequest, errors.New("difficulty must be Easy, Medium or Hard"))
	}
	return nil
}

// AnswerFeedback is the scored result for one learner answer.
type AnswerFeedback struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question"`
	AnswerText   string `json:"answer"`
	Score        int    `json:"score"`
	FeedbackText string `json:"feedback"`
}

// FeedbackSet is the feedback for one learner on one exam.
type FeedbackSet struct {
	ExamID    string           `json:"examId"`
	UserID    string           `json:"userId"`
	Feedback  []AnswerFeedback `json:"feedback"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// DraftAnswer is one saved learner answer, positionally aligned with the exam questions.
type DraftAnswer struct {
	QuestionID string `json:"questionId,omitempty"`
	Answer     string `json:"answer"`
}

// Draft holds a learner's saved answers for an exam.
type Draft struct {
	ExamID    string        `json:"examId"`
	UserID    string        `json:"userId"`
	Answers   []DraftAnswer `json:"answerData"`
	UpdatedAt time.Time     `json:"timestamp"`
}

// AnsweredQuestion pairs a question with the learner's answer text.
type AnsweredQuestion struct {
	Question Question
	Answer   string
}

// DocumentInfo describes the currently indexed reference document.
type DocumentInfo struct {
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Config holds runtime service parameters set via CLI flags.
type Config struct {
	RoutingPolicy  string // per-topic or first-topic
	MaxUploadBytes int64
	Lang           string
}

// Chunk is one embedded slice of the reference document.
type Chunk struct {
	Seq    int       `json:"seq"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}
