package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/memstream-backend/internal/memory/prompts"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/openai"
)

// LLMConfig overrides the process LLM for one agentic request. Empty fields
// keep the process defaults.
type LLMConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

type AgenticRequest struct {
	Request
	LLMConfig  LLMConfig `json:"llm_config,omitempty"`
	MaxRefined int       `json:"max_refined,omitempty"`
}

type candidate struct {
	EventID   string `json:"event_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// RetrieveAgentic runs a round of RRF retrieval, reranks it with the LLM,
// asks the LLM whether the results answer the query, and if not fans out the
// LLM's refined queries in parallel, merging everything into one reranked
// result. Rerank and judge failures degrade to the single-round result.
func (e *engine) RetrieveAgentic(ctx context.Context, req AgenticRequest) (*Result, error) {
	started := time.Now()
	res, err := e.retrieveAgentic(ctx, req)
	observability.Current().ObserveRetrieval(time.Since(started), err != nil)
	if err != nil {
		return nil, err
	}
	res.Metadata["total_latency_ms"] = time.Since(started).Milliseconds()
	return res, nil
}

func (e *engine) retrieveAgentic(ctx context.Context, req AgenticRequest) (*Result, error) {
	llm := openai.WithOverrides(e.llm, req.LLMConfig.APIKey, req.LLMConfig.BaseURL, req.LLMConfig.Model)

	maxRefined := req.MaxRefined
	if maxRefined <= 0 {
		maxRefined = e.maxRefined
	}

	round1Req := withDefaults(req.Request)
	round1Req.Mode = ModeRRF

	round1, err := e.retrieve(ctx, llm, round1Req)
	if err != nil {
		return nil, err
	}

	memories := e.rerank(ctx, llm, req.Query, round1.Memories)
	sufficient, reasoning, refined := e.judge(ctx, llm, req.Query, memories)
	if len(refined) > maxRefined {
		refined = refined[:maxRefined]
	}

	metadata := map[string]any{
		"retrieval_mode":  "agentic",
		"is_multi_round":  false,
		"is_sufficient":   sufficient,
		"reasoning":       reasoning,
		"refined_queries": refined,
		"round1_count":    len(memories),
		"round2_count":    0,
	}

	if !sufficient && len(refined) > 0 {
		round2 := e.refinedRound(ctx, llm, round1Req, refined)
		metadata["is_multi_round"] = true
		metadata["round2_count"] = len(round2)

		memories = dedupeMemories(append(memories, round2...))
		memories = e.rerank(ctx, llm, req.Query, memories)
	}

	if len(memories) > round1Req.TopK {
		memories = memories[:round1Req.TopK]
	}
	metadata["final_count"] = len(memories)

	return &Result{Memories: memories, Count: len(memories), Metadata: metadata}, nil
}

// refinedRound fans the refined queries out in parallel; a failing query is
// dropped, not fatal.
func (e *engine) refinedRound(ctx context.Context, llm openai.Client, base Request, queries []string) []Memory {
	results := make([][]Memory, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			sub := base
			sub.Query = q
			res, err := e.retrieve(gctx, llm, sub)
			if err != nil {
				e.log.Warn("refined query failed", "query", q, "error", err)
				return nil
			}
			results[i] = res.Memories
			return nil
		})
	}
	_ = g.Wait()

	var merged []Memory
	for _, batch := range results {
		merged = append(merged, batch...)
	}
	return merged
}

// rerank asks the LLM to reorder candidates by relevance. Candidates the LLM
// omits keep their fused order behind the ranked ones; on any failure the
// input order stands.
func (e *engine) rerank(ctx context.Context, llm openai.Client, query string, memories []Memory) []Memory {
	if len(memories) < 2 {
		return memories
	}

	prompt, err := prompts.Build(prompts.PromptRetrievalRerank, prompts.Input{
		Query:          query,
		CandidatesJSON: candidatesJSON(memories),
	})
	if err != nil {
		e.log.Warn("rerank prompt build failed", "error", err)
		return memories
	}

	raw, err := llm.GenerateJSON(ctx, prompt.System, prompt.User, prompt.SchemaName, prompt.Schema)
	observability.Current().ObserveLLMCall(err != nil)
	if err != nil {
		e.log.Warn("rerank degraded to fused order", "error", err)
		return memories
	}

	ranked, ok := raw["ranked_event_ids"].([]any)
	if !ok {
		return memories
	}

	position := map[uuid.UUID]int{}
	for i, v := range ranked {
		s, ok := v.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if _, seen := position[id]; !seen {
			position[id] = i
		}
	}
	if len(position) == 0 {
		return memories
	}

	out := make([]Memory, 0, len(memories))
	var unranked []Memory
	for _, m := range memories {
		if _, ok := position[m.EventID]; ok {
			out = append(out, m)
		} else {
			unranked = append(unranked, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return position[out[i].EventID] < position[out[j].EventID]
	})
	return append(out, unranked...)
}

// judge asks the LLM whether the retrieved set answers the query. On failure
// the set is treated as sufficient so the caller returns the single round.
func (e *engine) judge(ctx context.Context, llm openai.Client, query string, memories []Memory) (bool, string, []string) {
	prompt, err := prompts.Build(prompts.PromptSufficiencyJudge, prompts.Input{
		Query:       query,
		ResultsJSON: candidatesJSON(memories),
	})
	if err != nil {
		e.log.Warn("sufficiency prompt build failed", "error", err)
		return true, "", nil
	}

	raw, err := llm.GenerateJSON(ctx, prompt.System, prompt.User, prompt.SchemaName, prompt.Schema)
	observability.Current().ObserveLLMCall(err != nil)
	if err != nil {
		e.log.Warn("sufficiency judge degraded", "error", err)
		return true, "", nil
	}

	sufficient, _ := raw["is_sufficient"].(bool)
	reasoning, _ := raw["reasoning"].(string)

	var refined []string
	if arr, ok := raw["refined_queries"].([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok && s != "" {
				refined = append(refined, s)
			}
		}
	}
	return sufficient, reasoning, refined
}

func candidatesJSON(memories []Memory) string {
	items := make([]candidate, 0, len(memories))
	for _, m := range memories {
		items = append(items, candidate{
			EventID:   m.EventID.String(),
			Text:      memoryText(m),
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}
