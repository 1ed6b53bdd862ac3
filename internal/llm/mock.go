package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MockResponse is a canned reply for the MockCompleter.
type MockResponse struct {
	Text string
	Err  error
}

// MockCompleter is a deterministic Completer for tests and offline runs.
// It returns canned responses in FIFO order and records every instruction.
// Once the queue is empty it answers with Fallback, if set.
type MockCompleter struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []string
	Fallback  func(instruction string) string
}

// NewMockCompleter creates a MockCompleter with the given canned responses.
func NewMockCompleter(responses ...MockResponse) *MockCompleter {
	return &MockCompleter{responses: responses}
}

// Complete returns the next canned response. With the queue empty it uses
// Fallback, or fails with an UpstreamError when there is none.
func (m *MockCompleter) Complete(_ context.Context, instruction string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, instruction)

	if len(m.responses) == 0 {
		if m.Fallback != nil {
			return m.Fallback(instruction), nil
		}
		return "", &UpstreamError{Op: "mock completion", Err: fmt.Errorf("no canned response left")}
	}

	resp := m.responses[0]
	m.responses = m.responses[1:]
	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Text, nil
}

// AddResponse appends a canned response to the queue.
func (m *MockCompleter) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Complete calls made.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// NewOfflineCompleter returns a MockCompleter that answers every instruction
// from OfflineReply, for running the service without a model endpoint.
func NewOfflineCompleter() *MockCompleter {
	return &MockCompleter{Fallback: OfflineReply}
}

// OfflineReply answers scoring instructions with fixed score and feedback
// lines, and generation instructions with as many placeholder questions as
// the "Generate N" prefix asks for.
func OfflineReply(instruction string) string {
	if strings.Contains(instruction, "score:") {
		return "score: 5\nfeedback: Scored offline; no model was consulted."
	}

	n := 1
	if i := strings.Index(instruction, "Generate "); i >= 0 {
		fields := strings.Fields(instruction[i+len("Generate "):])
		if len(fields) > 0 {
			if v, err := strconv.Atoi(fields[0]); err == nil && v > 0 {
				n = v
			}
		}
	}

	type record struct {
		Text    string   `json:"qtext"`
		Options []string `json:"qoptions"`
	}
	recs := make([]record, n)
	for i := range recs {
		recs[i] = record{
			Text:    fmt.Sprintf("Offline question %d", i+1),
			Options: []string{"A", "B", "C", "D"},
		}
	}
	out, _ := json.Marshal(recs)
	return string(out)
}
