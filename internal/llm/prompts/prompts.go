package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

var generationFiles = map[model.QuestionType]string{
	model.TypeMCQ:  "generate_mcq.txt",
	model.TypeText: "generate_text.txt",
	model.TypeCode: "generate_code.txt",
}

// GenerationData holds template data for question generation instructions.
type GenerationData struct {
	Topic      string
	Count      int
	Difficulty model.Difficulty
	Languages  []string
}

// ScoreData holds template data for answer scoring instructions.
type ScoreData struct {
	QuestionType model.QuestionType
	QuestionText string
	Options      []string
	Answer       string
}

// ContextData holds template data for retrieval-augmented queries.
type ContextData struct {
	Passages []string
	Query    string
}

// Set is a parsed collection of instruction templates.
type Set struct {
	generation map[model.QuestionType]*template.Template
	score      *template.Template
	context    *template.Template
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
)

// Default returns the built-in templates. They are embedded, so a parse failure is a build defect.
func Default() *Set {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			panic(err)
		}
		s, err := Load(sub)
		if err != nil {
			panic(err)
		}
		defaultSet = s
	})
	return defaultSet
}

// Load parses every template from the root of fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{generation: make(map[model.QuestionType]*template.Template)}

	for qt, name := range generationFiles {
		tmpl, err := parse(fsys, name)
		if err != nil {
			return nil, err
		}
		s.generation[qt] = tmpl
	}

	var err error
	if s.score, err = parse(fsys, "score.txt"); err != nil {
		return nil, err
	}
	if s.context, err = parse(fsys, "context.txt"); err != nil {
		return nil, err
	}
	return s, nil
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// Generation builds the instruction asking for a batch of questions of type qt.
func (s *Set) Generation(qt model.QuestionType, data GenerationData) (string, error) {
	tmpl, ok := s.generation[qt]
	if !ok {
		return "", errors.New("no generation template for question type " + string(qt))
	}
	return execute(tmpl, data)
}

// Score builds the instruction asking the model to score one answer.
func (s *Set) Score(q model.Question, answer string) (string, error) {
	return execute(s.score, ScoreData{
		QuestionType: q.Type,
		QuestionText: q.Text,
		Options:      q.Options,
		Answer:       sanitizeAnswer(answer),
	})
}

// Context wraps query with retrieved passages.
func (s *Set) Context(passages []string, query string) (string, error) {
	return execute(s.context, ContextData{Passages: passages, Query: query})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
