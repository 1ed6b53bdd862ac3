package records

import (
	"strconv"
	"testing"

	"github.com/pavelanni/examgen/internal/model"
)

func TestParseQuestionsInvalidInput(t *testing.T) {
	inputs := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose", "I cannot generate questions about that."},
		{"truncated array", `[{"qtext": "What is`},
		{"object not array", `{"qtext": "What is recursion?"}`},
		{"bracketed prose only", "Options are [A-D] as usual."},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuestions(tt.raw, Options{Kind: model.TypeMCQ, Start: 1})
			if got == nil {
				t.Fatal("ParseQuestions should return an empty slice, not nil")
			}
			if len(got) != 0 {
				t.Errorf("expected no questions, got %d", len(got))
			}
		})
	}
}

func TestParseQuestionsNumbering(t *testing.T) {
	raw := `[
		{"qtext": "Q1", "qoptions": ["a", "b"], "difficulty": "Hard", "qmulticheck": true, "qlabel": "L1"},
		{"qtext": "Q2"},
		{"qtext": "Q3"}
	]`

	for _, start := range []int{1, 4, 100} {
		t.Run("start "+strconv.Itoa(start), func(t *testing.T) {
			got := ParseQuestions(raw, Options{Kind: model.TypeMCQ, Topic: "trees", Difficulty: model.DifficultyEasy, Start: start})
			if len(got) != 3 {
				t.Fatalf("expected 3 questions, got %d", len(got))
			}
			seen := map[string]bool{}
			for i, q := range got {
				if q.SequenceNo != start+i {
					t.Errorf("q[%d].SequenceNo = %d, want %d", i, q.SequenceNo, start+i)
				}
				if q.ID != strconv.Itoa(start+i) {
					t.Errorf("q[%d].ID = %q, want %d", i, q.ID, start+i)
				}
				if seen[q.ID] {
					t.Errorf("duplicate id %q", q.ID)
				}
				seen[q.ID] = true
			}
		})
	}
}

func TestParseQuestionsDefaults(t *testing.T) {
	got := ParseQuestions(`[{}]`, Options{Kind: model.TypeText, Topic: "recursion", Difficulty: model.DifficultyHard, Start: 1})
	if len(got) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got))
	}
	q := got[0]

	if q.Label != "Text - recursion - Hard" {
		t.Errorf("Label = %q, want synthesized label", q.Label)
	}
	if q.Text != "" {
		t.Errorf("Text = %q, want empty", q.Text)
	}
	if q.Options == nil || len(q.Options) != 0 {
		t.Errorf("Options = %v, want empty non-nil slice", q.Options)
	}
	if q.Difficulty != model.DifficultyMedium {
		t.Errorf("Difficulty = %q, want Medium", q.Difficulty)
	}
	if q.AllowsMultipleCorrect {
		t.Error("AllowsMultipleCorrect should default to false")
	}
	if q.Type != model.TypeText {
		t.Errorf("Type = %q, want Text", q.Type)
	}
	if q.Languages == nil || len(q.Languages) != 0 {
		t.Errorf("Languages = %v, want empty non-nil slice", q.Languages)
	}
}

func TestParseQuestionsFields(t *testing.T) {
	raw := `[{"qlabel": "Code - sorting - easy", "qtext": "Write quicksort", "difficulty": "easy", "qoptions": ["x"], "qmulticheck": null}]`
	got := ParseQuestions(raw, Options{Kind: model.TypeCode, Topic: "sorting", Start: 7, Languages: []string{"python"}})
	if len(got) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got))
	}
	q := got[0]

	if q.Label != "Code - sorting - easy" {
		t.Errorf("Label = %q", q.Label)
	}
	if q.Text != "Write quicksort" {
		t.Errorf("Text = %q", q.Text)
	}
	if q.Difficulty != model.DifficultyEasy {
		t.Errorf("Difficulty = %q, want Easy", q.Difficulty)
	}
	if len(q.Options) != 0 {
		t.Errorf("non-MCQ questions should carry no options, got %v", q.Options)
	}
	if len(q.Languages) != 1 || q.Languages[0] != "python" {
		t.Errorf("Languages = %v, want [python]", q.Languages)
	}
}

func TestParseQuestionsWrongFieldTypes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, q model.Question)
	}{
		{"qlabel", `[{"qtext": "Q", "qlabel": 3}]`, func(t *testing.T, q model.Question) {
			if q.Label != "MCQ - trees - Easy" {
				t.Errorf("Label = %q, want synthesized label", q.Label)
			}
		}},
		{"qtext", `[{"qtext": ["Q"]}]`, func(t *testing.T, q model.Question) {
			if q.Text != "" {
				t.Errorf("Text = %q, want empty", q.Text)
			}
		}},
		{"qoptions", `[{"qtext": "Q", "qoptions": "A, B"}]`, func(t *testing.T, q model.Question) {
			if q.Options == nil || len(q.Options) != 0 {
				t.Errorf("Options = %v, want empty", q.Options)
			}
		}},
		{"qoptions items", `[{"qtext": "Q", "qoptions": [1, 2]}]`, func(t *testing.T, q model.Question) {
			if len(q.Options) != 0 {
				t.Errorf("Options = %v, want empty", q.Options)
			}
		}},
		{"difficulty", `[{"qtext": "Q", "difficulty": 2}]`, func(t *testing.T, q model.Question) {
			if q.Difficulty != model.DifficultyMedium {
				t.Errorf("Difficulty = %q, want Medium", q.Difficulty)
			}
		}},
		{"qmulticheck", `[{"qtext": "Q", "qmulticheck": "false"}]`, func(t *testing.T, q model.Question) {
			if q.AllowsMultipleCorrect {
				t.Error("AllowsMultipleCorrect should default to false")
			}
		}},
		{"topic", `[{"qtext": "Q", "topic": {"name": "heaps"}}]`, func(t *testing.T, q model.Question) {
			if q.Label != "MCQ - trees - Easy" {
				t.Errorf("Label = %q, want label from request topic", q.Label)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQuestions(tt.raw, Options{Kind: model.TypeMCQ, Topic: "trees", Difficulty: model.DifficultyEasy, Start: 1})
			if len(got) != 1 {
				t.Fatalf("expected 1 question, got %d", len(got))
			}
			if tt.name != "qtext" && got[0].Text != "Q" {
				t.Errorf("valid fields must survive, Text = %q", got[0].Text)
			}
			tt.check(t, got[0])
		})
	}
}

func TestParseQuestionsKeepsEveryElement(t *testing.T) {
	raw := `[{"qtext": "a", "qmulticheck": "no"}, "not an object", null, {"qtext": "d", "difficulty": "Hard"}]`
	got := ParseQuestions(raw, Options{Kind: model.TypeText, Topic: "t", Start: 5})
	if len(got) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(got))
	}
	if got[0].Text != "a" || got[1].Text != "" || got[3].Difficulty != model.DifficultyHard {
		t.Errorf("unexpected questions: %+v", got)
	}
	if got[3].SequenceNo != 8 {
		t.Errorf("last SequenceNo = %d, want 8", got[3].SequenceNo)
	}
}

func TestParseQuestionsLabelFromRecordTopic(t *testing.T) {
	got := ParseQuestions(`[{"topic": "heaps", "difficulty": "Hard"}]`, Options{Kind: model.TypeMCQ, Topic: "trees", Difficulty: model.DifficultyEasy, Start: 1})
	if len(got) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got))
	}
	if got[0].Label != "MCQ - heaps - Hard" {
		t.Errorf("Label = %q, want MCQ - heaps - Hard", got[0].Label)
	}
}

func TestParseQuestionsUnknownDifficulty(t *testing.T) {
	got := ParseQuestions(`[{"qtext": "Q", "difficulty": "Legendary"}]`, Options{Kind: model.TypeMCQ, Start: 1})
	if len(got) != 1 || got[0].Difficulty != model.DifficultyMedium {
		t.Errorf("unknown difficulty should fall back to Medium, got %+v", got)
	}
}

func TestDecodeWrappedOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"bare", `[{"qtext": "a"}]`, 1},
		{"fenced", "```json\n[{\"qtext\": \"a\"}, {\"qtext\": \"b\"}]\n```", 2},
		{"prose around", `Here are your questions: [{"qtext": "a [b]"}] Enjoy!`, 1},
		{"empty array", `[]`, 0},
		{"bracketed prose first", "Here are 2 questions [as requested]:\n[{\"qtext\":\"a\"},{\"qtext\":\"b\"}]", 2},
		{"fence after prose", "Note: options are [A-D].\n```json\n[{\"qtext\":\"a\"}]\n```", 1},
		{"unclosed bracket before payload", `See [1 for details. [{"qtext": "a"}]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode(tt.raw)
			if !res.OK() {
				t.Fatalf("Decode failed: %v", res.Err)
			}
			if len(res.Records) != tt.want {
				t.Errorf("got %d records, want %d", len(res.Records), tt.want)
			}
		})
	}
}

func TestDecodeNoJSON(t *testing.T) {
	res := Decode("nothing here")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Err != ErrNoJSON {
		t.Errorf("Err = %v, want ErrNoJSON", res.Err)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantScore    int
		wantFeedback string
	}{
		{"both markers", "score: 8\nfeedback: good", 8, "good"},
		{"capitalized", "Score: 7\nFeedback: Mostly right.", 7, "Mostly right."},
		{"missing feedback", "score: 6", 6, DefaultFeedback},
		{"missing score", "feedback: try again", 0, "try again"},
		{"non-integer score", "score: eight\nfeedback: ok", 0, "ok"},
		{"bracketed score", "score: [9]\nfeedback: ok", 0, "ok"},
		{"over range", "score: 42\nfeedback: generous", MaxScore, "generous"},
		{"negative", "score: -3\nfeedback: harsh", 0, "harsh"},
		{"neither", "The answer is fine.", 0, DefaultFeedback},
		{"multiline feedback", "score: 10\nfeedback: Correct.\nWell explained.", 10, "Correct.\nWell explained."},
		{"empty", "", 0, DefaultFeedback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, feedback := ParseScore(tt.raw)
			if score != tt.wantScore {
				t.Errorf("score = %d, want %d", score, tt.wantScore)
			}
			if feedback != tt.wantFeedback {
				t.Errorf("feedback = %q, want %q", feedback, tt.wantFeedback)
			}
		})
	}
}
