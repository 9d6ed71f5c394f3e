package boundary

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type fakeLLM struct {
	reply map[string]any
	err   error
	calls int
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("not used")
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func msg(id, sender, content string, at time.Time) types.RawMessage {
	return types.RawMessage{
		MessageID: id,
		GroupID:   "g1",
		SenderID:  sender,
		Content:   content,
		CreatedAt: at,
	}
}

func TestDecideEmptyNewContinues(t *testing.T) {
	llm := &fakeLLM{}
	d, err := NewDetector(llm, testLogger(t))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	cell, status, err := d.Decide(context.Background(), Request{GroupID: "g1"})
	if err != nil || cell != nil || status != StatusContinue {
		t.Fatalf("got (%v, %s, %v), want (nil, continue, nil)", cell, status, err)
	}
	if llm.calls != 0 {
		t.Fatalf("LLM called %d times for empty input", llm.calls)
	}
}

func TestDecideShortWindowSkipsLLM(t *testing.T) {
	llm := &fakeLLM{}
	d, err := NewDetector(llm, testLogger(t))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, status, err := d.Decide(context.Background(), Request{
		GroupID: "g1",
		History: []types.RawMessage{msg("m1", "alice", "hi", base)},
		New:     []types.RawMessage{msg("m2", "bob", "hey", base.Add(time.Minute))},
	})
	if err != nil || status != StatusContinue {
		t.Fatalf("got (%s, %v), want (continue, nil)", status, err)
	}
	if llm.calls != 0 {
		t.Fatalf("LLM called %d times below pre-filter threshold", llm.calls)
	}
}

func TestDecideHardGapReachesLLM(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	llm := &fakeLLM{reply: map[string]any{
		"decision":  "boundary",
		"end_index": float64(1),
		"subject":   "morning plans",
		"summary":   "They planned the morning.",
	}}
	d, err := NewDetector(llm, testLogger(t))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	cell, status, err := d.Decide(context.Background(), Request{
		GroupID: "g1",
		History: []types.RawMessage{msg("m1", "alice", "breakfast?", base)},
		New:     []types.RawMessage{msg("m2", "bob", "totally different thing", base.Add(5*time.Hour))},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("expected hard gap to bypass pre-filter, LLM calls = %d", llm.calls)
	}
	if status != StatusBoundary || cell == nil {
		t.Fatalf("got (%v, %s), want boundary memcell", cell, status)
	}
	if cell.Subject != "morning plans" {
		t.Fatalf("subject = %q", cell.Subject)
	}
	if !cell.Timestamp.Equal(base.Add(5 * time.Hour)) {
		t.Fatalf("timestamp = %v, want last message instant", cell.Timestamp)
	}
}

func TestDecideEndIndexBeforeNewTailWaits(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	llm := &fakeLLM{reply: map[string]any{
		"decision":  "boundary",
		"end_index": float64(0),
		"subject":   "",
		"summary":   "",
	}}
	d, err := NewDetector(llm, testLogger(t))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	cell, status, err := d.Decide(context.Background(), Request{
		GroupID: "g1",
		History: []types.RawMessage{
			msg("m1", "alice", "one", base),
			msg("m2", "bob", "two", base.Add(time.Minute)),
		},
		New: []types.RawMessage{msg("m3", "alice", "three", base.Add(11*time.Minute))},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if status != StatusWait || cell != nil {
		t.Fatalf("got (%v, %s), want (nil, wait)", cell, status)
	}
}

func TestDecideParseFailureWaits(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	llm := &fakeLLM{reply: map[string]any{"decision": "maybe"}}
	d, err := NewDetector(llm, testLogger(t))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	_, status, err := d.Decide(context.Background(), Request{
		GroupID: "g1",
		History: []types.RawMessage{
			msg("m1", "alice", "one", base),
			msg("m2", "bob", "two", base.Add(time.Minute)),
			msg("m3", "alice", "three", base.Add(2*time.Minute)),
		},
		New: []types.RawMessage{msg("m4", "bob", "four", base.Add(20*time.Minute))},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if status != StatusWait {
		t.Fatalf("status = %s, want wait", status)
	}
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		obj     map[string]any
		want    Status
		wantErr bool
	}{
		{"continue", map[string]any{"decision": "continue"}, StatusContinue, false},
		{"wait", map[string]any{"decision": "wait"}, StatusWait, false},
		{"boundary", map[string]any{"decision": "boundary", "end_index": float64(3), "subject": "s", "summary": "x"}, StatusBoundary, false},
		{"missing decision", map[string]any{}, "", true},
		{"unknown decision", map[string]any{"decision": "done"}, "", true},
		{"boundary without index", map[string]any{"decision": "boundary"}, "", true},
		{"negative index", map[string]any{"decision": "boundary", "end_index": float64(-1)}, "", true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseDecision(tc.obj)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDecision: %v", err)
			}
			if got.Kind != tc.want {
				t.Fatalf("kind = %s, want %s", got.Kind, tc.want)
			}
		})
	}
}

func TestHasTopicSwitchMarker(t *testing.T) {
	t.Parallel()

	if !hasTopicSwitchMarker("OK. On another note, about tomorrow") {
		t.Fatal("marker not detected")
	}
	if hasTopicSwitchMarker("still talking about lunch") {
		t.Fatal("false positive")
	}
}
