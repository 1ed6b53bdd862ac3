// Package records turns free-form model output into validated question and
// feedback records. Malformed output never raises: it degrades to an empty
// batch or to documented defaults.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/examgen/internal/model"
)

// DefaultFeedback is used when a scoring reply carries no "feedback:" marker.
const DefaultFeedback = "No feedback provided"

// MaxScore is the upper bound of a per-answer score.
const MaxScore = 10

var (
	// ErrNoJSON is reported when the text contains no JSON array.
	ErrNoJSON = errors.New("no JSON array in model output")
)

// questionFieldSchemas describes every known field of a question object.
// Fields are optional; absent, null or wrongly typed fields get defaults.
var questionFieldSchemas = map[string]any{
	"qlabel":      map[string]any{"type": []any{"string", "null"}},
	"qtext":       map[string]any{"type": []any{"string", "null"}},
	"qoptions":    map[string]any{"type": []any{"array", "null"}, "items": map[string]any{"type": "string"}},
	"difficulty":  map[string]any{"type": []any{"string", "null"}},
	"qmulticheck": map[string]any{"type": []any{"boolean", "null"}},
	"topic":       map[string]any{"type": []any{"string", "null"}},
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func fieldSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, len(questionFieldSchemas))
		for name, def := range questionFieldSchemas {
			// The compiler expects a parsed JSON value, so round-trip the Go literal.
			defBytes, err := json.Marshal(def)
			if err != nil {
				compileErr = fmt.Errorf("marshal %s schema: %w", name, err)
				return
			}
			defParsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(defBytes))
			if err != nil {
				compileErr = fmt.Errorf("parse %s schema: %w", name, err)
				return
			}
			url := "schema://question/" + name + ".json"
			if err := c.AddResource(url, defParsed); err != nil {
				compileErr = fmt.Errorf("add %s resource: %w", name, err)
				return
			}
			if out[name], err = c.Compile(url); err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", name, err)
				return
			}
		}
		compiled = out
	})
	return compiled, compileErr
}

// Record is one decoded question object. Nil pointers mark absent fields.
type Record struct {
	Label       *string  `json:"qlabel"`
	Text        *string  `json:"qtext"`
	Options     []string `json:"qoptions"`
	Difficulty  *string  `json:"difficulty"`
	MultiSelect *bool    `json:"qmulticheck"`
	Topic       *string  `json:"topic"`
}

// Result is the tagged outcome of Decode: Err is nil exactly when Records is usable.
type Result struct {
	Records []Record
	Err     error
}

// OK reports whether decoding succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Decode extracts a JSON array and decodes every element into a Record.
// Only a missing or non-array payload fails; an element that is not an
// object, or a field that fails its schema, decodes as absent.
func Decode(raw string) Result {
	text, ok := extractArray(raw)
	if !ok {
		return Result{Err: ErrNoJSON}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(text), &elems); err != nil {
		return Result{Err: fmt.Errorf("invalid JSON array: %w", err)}
	}

	schemas, err := fieldSchemas()
	if err != nil {
		return Result{Err: fmt.Errorf("compile schema: %w", err)}
	}

	recs := make([]Record, 0, len(elems))
	for i, elem := range elems {
		recs = append(recs, decodeRecord(i, elem, schemas))
	}
	return Result{Records: recs}
}

func decodeRecord(i int, elem json.RawMessage, schemas map[string]*jsonschema.Schema) Record {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil {
		slog.Debug("record is not an object", "index", i)
		return Record{}
	}

	valid := make(map[string]json.RawMessage, len(fields))
	for name, value := range fields {
		schema, known := schemas[name]
		if !known {
			continue
		}
		v, err := jsonschema.UnmarshalJSON(bytes.NewReader(value))
		if err == nil {
			err = schema.Validate(v)
		}
		if err != nil {
			slog.Debug("dropping invalid field", "index", i, "field", name, "error", err)
			continue
		}
		valid[name] = value
	}

	var rec Record
	buf, err := json.Marshal(valid)
	if err == nil {
		err = json.Unmarshal(buf, &rec)
	}
	if err != nil {
		slog.Debug("record decode failed", "index", i, "error", err)
		return Record{}
	}
	return rec
}

// Options carries what the caller knows about the batch being parsed.
type Options struct {
	Kind       model.QuestionType
	Topic      string
	Difficulty model.Difficulty
	// Start is the id/sequence number of the first record; callers keep ranges disjoint.
	Start     int
	Languages []string
}

// ParseQuestions maps raw model text to questions numbered from opts.Start.
// Output without a JSON array yields an empty slice.
func ParseQuestions(raw string, opts Options) []model.Question {
	res := Decode(raw)
	if !res.OK() {
		slog.Debug("discarding unparseable model output", "kind", opts.Kind, "topic", opts.Topic, "error", res.Err)
		return []model.Question{}
	}

	questions := make([]model.Question, 0, len(res.Records))
	for i, rec := range res.Records {
		seq := opts.Start + i
		questions = append(questions, toQuestion(rec, seq, opts))
	}
	return questions
}

func toQuestion(rec Record, seq int, opts Options) model.Question {
	difficulty := model.DifficultyMedium
	if rec.Difficulty != nil {
		if d, ok := model.ParseDifficulty(*rec.Difficulty); ok {
			difficulty = d
		}
	}

	label := deref(rec.Label)
	if rec.Label == nil {
		topic := opts.Topic
		if rec.Topic != nil {
			topic = *rec.Topic
		}
		labelDifficulty := string(opts.Difficulty)
		if rec.Difficulty != nil {
			labelDifficulty = *rec.Difficulty
		}
		label = fmt.Sprintf("%s - %s - %s", opts.Kind, topic, labelDifficulty)
	}

	options := []string{}
	if opts.Kind == model.TypeMCQ && rec.Options != nil {
		options = rec.Options
	}

	languages := []string{}
	if len(opts.Languages) > 0 {
		languages = append(languages, opts.Languages...)
	}

	multi := false
	if rec.MultiSelect != nil {
		multi = *rec.MultiSelect
	}

	return model.Question{
		ID:                    strconv.Itoa(seq),
		SequenceNo:            seq,
		Label:                 label,
		Text:                  deref(rec.Text),
		Type:                  opts.Kind,
		Options:               options,
		Languages:             languages,
		Difficulty:            difficulty,
		AllowsMultipleCorrect: multi,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseScore extracts the score and feedback from a scoring reply. The integer
// after "score:" (up to whitespace) becomes the score, clamped to [0, MaxScore],
// and defaults to 0. Everything after "feedback:" becomes the feedback and
// defaults to DefaultFeedback. Both markers are matched case-insensitively.
func ParseScore(raw string) (int, string) {
	score := 0
	if i := indexFold(raw, "score:"); i >= 0 {
		fields := strings.Fields(raw[i+len("score:"):])
		if len(fields) > 0 {
			if n, err := strconv.Atoi(fields[0]); err == nil {
				score = min(max(n, 0), MaxScore)
			}
		}
	}

	feedback := DefaultFeedback
	if i := indexFold(raw, "feedback:"); i >= 0 {
		feedback = strings.TrimSpace(raw[i+len("feedback:"):])
	}
	return score, feedback
}

// indexFold is strings.Index with ASCII case folding on an ASCII needle.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

// extractArray returns the first balanced, valid JSON array in s. Bracketed
// prose and markdown fences around the payload are skipped.
func extractArray(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for pos := 0; pos < len(s); {
		i := strings.IndexByte(s[pos:], '[')
		if i < 0 {
			break
		}
		start := pos + i
		if end, ok := matchBracket(s, start); ok && json.Valid([]byte(s[start:end])) {
			return s[start:end], true
		}
		pos = start + 1
	}
	return "", false
}

// matchBracket returns the index just past the ']' closing the '[' at start.
func matchBracket(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
