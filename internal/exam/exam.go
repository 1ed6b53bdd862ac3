// Package exam assembles generated questions into a single-section exam.
package exam

import (
	"github.com/google/uuid"

	"github.com/pavelanni/examgen/internal/model"
)

// SectionName is the name of the single generated section.
const SectionName = "Generated Questions"

// Assemble wraps questions in one section worth MarksPerQuestion each.
// The exam and section ids are fresh placeholders; the store assigns the
// canonical exam id on insert.
func Assemble(questions []model.Question, difficulty model.Difficulty, topics []string) model.Exam {
	qs := make([]model.Question, len(questions))
	copy(qs, questions)

	section := model.Section{
		ID:              uuid.NewString(),
		Name:            SectionName,
		TotalMarks:      model.MarksPerQuestion * len(qs),
		DifficultyLevel: difficulty,
		Questions:       qs,
	}

	return model.Exam{
		ExamID:          uuid.NewString(),
		TotalSections:   1,
		DifficultyLevel: difficulty,
		PrimarySkills:   append([]string{}, topics...),
		SecondarySkills: []string{},
		TotalMarks:      section.TotalMarks,
		Sections:        []model.Section{section},
	}
}
