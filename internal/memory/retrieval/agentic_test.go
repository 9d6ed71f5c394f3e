package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yungbote/memstream-backend/internal/memory/prompts"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type fakeLLM struct {
	replies map[string]map[string]any
	fail    bool
	calls   []string
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, schemaName)
	if f.fail {
		return nil, fmt.Errorf("llm unavailable")
	}
	reply, ok := f.replies[schemaName]
	if !ok {
		return nil, fmt.Errorf("no scripted reply for %q", schemaName)
	}
	return reply, nil
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func testEngine(t *testing.T, llm *fakeLLM) *engine {
	t.Helper()
	prompts.RegisterAll()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &engine{llm: llm, log: log.With("service", "RetrievalEngine"), rrfK: 60, maxRefined: 3}
}

func episodeMemory(t *testing.T, idSuffix string, text string) Memory {
	t.Helper()
	eventID := id(t, "00000000-0000-0000-0000-00000000000"+idSuffix)
	return Memory{
		EventID:    eventID,
		DataSource: SourceEpisode,
		Timestamp:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Payload:    &types.EpisodicMemory{EventID: eventID, Episode: text},
	}
}

func TestRerankReordersByLLM(t *testing.T) {
	llm := &fakeLLM{replies: map[string]map[string]any{
		"retrieval_rerank": {
			"ranked_event_ids": []any{
				"00000000-0000-0000-0000-000000000003",
				"00000000-0000-0000-0000-000000000001",
			},
		},
	}}
	e := testEngine(t, llm)

	in := []Memory{
		episodeMemory(t, "1", "first"),
		episodeMemory(t, "2", "second"),
		episodeMemory(t, "3", "third"),
	}
	out := e.rerank(context.Background(), llm, "query", in)

	if len(out) != 3 {
		t.Fatalf("rerank returned %d items", len(out))
	}
	if out[0].EventID != in[2].EventID || out[1].EventID != in[0].EventID {
		t.Fatalf("rerank order = %s, %s", out[0].EventID, out[1].EventID)
	}
	// Candidates the LLM omitted keep their place behind the ranked ones.
	if out[2].EventID != in[1].EventID {
		t.Fatalf("unranked candidate moved to %s", out[2].EventID)
	}
}

func TestRerankDegradesOnFailure(t *testing.T) {
	llm := &fakeLLM{fail: true}
	e := testEngine(t, llm)

	in := []Memory{episodeMemory(t, "1", "first"), episodeMemory(t, "2", "second")}
	out := e.rerank(context.Background(), llm, "query", in)

	if len(out) != 2 || out[0].EventID != in[0].EventID {
		t.Fatal("rerank failure must keep the fused order")
	}
}

func TestJudgeParsesRefinedQueries(t *testing.T) {
	llm := &fakeLLM{replies: map[string]map[string]any{
		"sufficiency_judge": {
			"is_sufficient":   false,
			"reasoning":       "missing recent context",
			"refined_queries": []any{"espresso habits", "coffee orders"},
		},
	}}
	e := testEngine(t, llm)

	sufficient, reasoning, refined := e.judge(context.Background(), llm, "coffee preference", nil)
	if sufficient {
		t.Fatal("judge reported sufficient")
	}
	if reasoning != "missing recent context" {
		t.Fatalf("reasoning = %q", reasoning)
	}
	if len(refined) != 2 || refined[0] != "espresso habits" {
		t.Fatalf("refined = %v", refined)
	}
}

func TestJudgeFailureMeansSufficient(t *testing.T) {
	llm := &fakeLLM{fail: true}
	e := testEngine(t, llm)

	sufficient, _, refined := e.judge(context.Background(), llm, "q", nil)
	if !sufficient || refined != nil {
		t.Fatal("judge failure must fall back to a single round")
	}
}
