package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/memstream-backend/internal/memory/stores"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/openai"
	"github.com/yungbote/memstream-backend/internal/platform/pinecone"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

type Mode string

const (
	ModeBM25      Mode = "bm25"
	ModeEmbedding Mode = "embedding"
	ModeRRF       Mode = "rrf"
)

type DataSource string

const (
	SourceEpisode   DataSource = "episode"
	SourceSemantic  DataSource = "semantic"
	SourceEventLog  DataSource = "event_log"
	SourceForesight DataSource = "foresight"
	SourceProfile   DataSource = "profile"
)

type Request struct {
	Query         string     `json:"query"`
	UserID        string     `json:"user_id,omitempty"`
	GroupID       string     `json:"group_id,omitempty"`
	TimeRangeDays int        `json:"time_range_days,omitempty"`
	TopK          int        `json:"top_k,omitempty"`
	Mode          Mode       `json:"retrieval_mode,omitempty"`
	DataSource    DataSource `json:"data_source,omitempty"`
	CurrentTime   *time.Time `json:"current_time,omitempty"`
	Radius        *float64   `json:"radius,omitempty"`
}

// Memory is one retrieved row with its arm (or fused) score. Payload is the
// underlying document-store row for the data source.
type Memory struct {
	EventID    uuid.UUID  `json:"event_id"`
	DataSource DataSource `json:"data_source"`
	Score      float64    `json:"score"`
	Timestamp  time.Time  `json:"timestamp"`
	Payload    any        `json:"payload"`
}

type Result struct {
	Memories []Memory       `json:"memories"`
	Count    int            `json:"count"`
	Metadata map[string]any `json:"metadata"`
}

type Engine interface {
	RetrieveLightweight(ctx context.Context, req Request) (*Result, error)
	RetrieveAgentic(ctx context.Context, req AgenticRequest) (*Result, error)
}

type engine struct {
	llm     openai.Client
	vectors pinecone.VectorStore
	repos   repos.Repos
	log     *logger.Logger

	rrfK       int
	maxRefined int
}

func NewEngine(llm openai.Client, vectors pinecone.VectorStore, r repos.Repos, baseLog *logger.Logger) (Engine, error) {
	if llm == nil || vectors == nil {
		return nil, fmt.Errorf("llm client and vector store required")
	}
	return &engine{
		llm:        llm,
		vectors:    vectors,
		repos:      r,
		log:        baseLog.With("service", "RetrievalEngine"),
		rrfK:       envutil.Int("RRF_K", 60),
		maxRefined: envutil.Int("RETRIEVAL_MAX_REFINED", 3),
	}, nil
}

func (e *engine) RetrieveLightweight(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res, err := e.retrieve(ctx, e.llm, req)
	observability.Current().ObserveRetrieval(time.Since(started), err != nil)
	if err != nil {
		return nil, err
	}
	res.Metadata["total_latency_ms"] = time.Since(started).Milliseconds()
	return res, nil
}

// retrieve runs one lightweight pass. Shared by the public entrypoint and the
// agentic rounds, which account latency and metrics themselves.
func (e *engine) retrieve(ctx context.Context, llm openai.Client, req Request) (*Result, error) {
	req = withDefaults(req)
	if err := validate(req); err != nil {
		return nil, err
	}

	if req.DataSource == SourceProfile {
		return e.retrieveProfile(ctx, req)
	}

	filter := e.buildFilter(req)
	fetch := req.TopK
	if req.Mode == ModeRRF {
		fetch = req.TopK * 2
	}

	var (
		bm25Hits []hit
		embHits  []hit
		bm25Err  error
		embErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	if req.Mode == ModeBM25 || req.Mode == ModeRRF {
		g.Go(func() error {
			bm25Hits, bm25Err = e.bm25Arm(gctx, req, filter, fetch)
			if req.Mode == ModeBM25 {
				return bm25Err
			}
			return nil
		})
	}
	if req.Mode == ModeEmbedding || req.Mode == ModeRRF {
		g.Go(func() error {
			embHits, embErr = e.embeddingArm(gctx, llm, req, fetch)
			if req.Mode == ModeEmbedding {
				return embErr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"retrieval_mode": string(req.Mode),
		"emb_count":      len(embHits),
		"bm25_count":     len(bm25Hits),
	}

	var fused []hit
	switch req.Mode {
	case ModeBM25:
		fused = bm25Hits
	case ModeEmbedding:
		fused = embHits
	case ModeRRF:
		// One arm failing degrades to the other; both failing is an error.
		if bm25Err != nil && embErr != nil {
			return nil, fmt.Errorf("both retrieval arms failed: bm25: %v; embedding: %v", bm25Err, embErr)
		}
		if bm25Err != nil {
			e.log.Warn("bm25 arm degraded", "error", bm25Err)
			metadata["warning"] = fmt.Sprintf("bm25 arm unavailable: %v", bm25Err)
		}
		if embErr != nil {
			e.log.Warn("embedding arm degraded", "error", embErr)
			metadata["warning"] = fmt.Sprintf("embedding arm unavailable: %v", embErr)
		}
		fused = fuseRRF(e.rrfK, bm25Hits, embHits)
	}

	memories, err := e.loadMemories(ctx, req, fused)
	if err != nil {
		return nil, err
	}
	sortMemories(memories)
	if len(memories) > req.TopK {
		memories = memories[:req.TopK]
	}
	metadata["final_count"] = len(memories)

	return &Result{Memories: memories, Count: len(memories), Metadata: metadata}, nil
}

func withDefaults(req Request) Request {
	if req.Mode == "" {
		req.Mode = ModeRRF
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	return req
}

func validate(req Request) error {
	switch req.Mode {
	case ModeBM25, ModeEmbedding, ModeRRF:
	default:
		return fmt.Errorf("invalid retrieval_mode %q", req.Mode)
	}
	switch req.DataSource {
	case SourceEpisode, SourceSemantic, SourceEventLog, SourceForesight:
		if strings.TrimSpace(req.Query) == "" {
			return fmt.Errorf("query required for data_source %q", req.DataSource)
		}
	case SourceProfile:
		if req.UserID == "" || req.GroupID == "" {
			return fmt.Errorf("profile retrieval requires user_id and group_id")
		}
	default:
		return fmt.Errorf("invalid data_source %q", req.DataSource)
	}
	return nil
}

// retrieveProfile bypasses both arms: the latest profile version is a direct
// document-store read.
func (e *engine) retrieveProfile(ctx context.Context, req Request) (*Result, error) {
	profile, err := e.repos.Profile.GetLatest(ctx, nil, req.UserID, req.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	metadata := map[string]any{
		"retrieval_mode": string(req.Mode),
		"emb_count":      0,
		"bm25_count":     0,
	}
	if profile == nil {
		metadata["final_count"] = 0
		return &Result{Memories: []Memory{}, Count: 0, Metadata: metadata}, nil
	}
	metadata["final_count"] = 1
	return &Result{
		Memories: []Memory{{
			EventID:    profile.EventID,
			DataSource: SourceProfile,
			Score:      1,
			Timestamp:  profile.UpdatedAt,
			Payload:    profile,
		}},
		Count:    1,
		Metadata: metadata,
	}, nil
}

func (e *engine) buildFilter(req Request) repos.MemoryFilter {
	f := repos.MemoryFilter{UserID: req.UserID, GroupID: req.GroupID}
	if req.TimeRangeDays > 0 {
		from := time.Now().AddDate(0, 0, -req.TimeRangeDays)
		f.From = &from
	}
	if req.DataSource == SourceForesight && req.CurrentTime != nil {
		f.ValidAt = req.CurrentTime
	}
	return f
}

func (e *engine) bm25Arm(ctx context.Context, req Request, f repos.MemoryFilter, size int) ([]hit, error) {
	rows, err := e.repos.TextIndex.Search(ctx, nil, textSourceFor(req.DataSource), req.Query, f, size)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}
	hits := make([]hit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, hit{EventID: row.EventID, Score: row.Score})
	}
	return hits, nil
}

func (e *engine) embeddingArm(ctx context.Context, llm openai.Client, req Request, size int) ([]hit, error) {
	embeddings, err := llm.Embed(ctx, []string{req.Query})
	observability.Current().ObserveEmbedCall(err != nil)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding")
	}

	filter := map[string]any{}
	if req.GroupID != "" {
		filter["group_id"] = req.GroupID
	}
	if req.UserID != "" {
		filter["user_id"] = req.UserID
	}
	if req.TimeRangeDays > 0 {
		filter["timestamp"] = map[string]any{
			"$gte": time.Now().AddDate(0, 0, -req.TimeRangeDays).Unix(),
			"$lte": time.Now().Unix(),
		}
	}
	if len(filter) == 0 {
		filter = nil
	}

	matches, err := e.vectors.QueryMatches(ctx, namespaceFor(req.DataSource), embeddings[0], size, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if req.DataSource == SourceEventLog {
		// Fact vectors carry a "#<i>" suffix; collapse them back onto the
		// owning event_log row, keeping the best fact score. The event_log
		// namespace is L2-backed, so radius does not apply here.
		matches = collapseFactMatches(matches)
	} else if req.Radius != nil {
		kept := matches[:0]
		for _, m := range matches {
			if m.Score >= *req.Radius {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	hits := make([]hit, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		hits = append(hits, hit{EventID: id, Score: m.Score})
	}
	return hits, nil
}

// collapseFactMatches maps fact-level vector IDs ("<event_id>#<i>") back to
// row-level hits, keeping each row's best-scoring fact and its first rank.
func collapseFactMatches(matches []pinecone.VectorMatch) []pinecone.VectorMatch {
	best := map[string]int{}
	out := make([]pinecone.VectorMatch, 0, len(matches))
	for _, m := range matches {
		id := m.ID
		if i := strings.IndexByte(id, '#'); i >= 0 {
			id = id[:i]
		}
		if pos, seen := best[id]; seen {
			if m.Score > out[pos].Score {
				out[pos].Score = m.Score
			}
			continue
		}
		best[id] = len(out)
		out = append(out, pinecone.VectorMatch{ID: id, Score: m.Score})
	}
	return out
}

func (e *engine) loadMemories(ctx context.Context, req Request, hits []hit) ([]Memory, error) {
	if len(hits) == 0 {
		return []Memory{}, nil
	}
	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.EventID)
	}

	payloads := map[uuid.UUID]Memory{}
	switch req.DataSource {
	case SourceEpisode:
		rows, err := e.repos.Episodic.GetByIDs(ctx, nil, ids)
		if err != nil {
			return nil, fmt.Errorf("load episodes: %w", err)
		}
		for _, row := range rows {
			payloads[row.EventID] = Memory{EventID: row.EventID, Timestamp: row.Timestamp, Payload: row}
		}
	case SourceSemantic:
		rows, err := e.repos.Semantic.GetByIDs(ctx, nil, ids)
		if err != nil {
			return nil, fmt.Errorf("load semantic memories: %w", err)
		}
		for _, row := range rows {
			payloads[row.EventID] = Memory{EventID: row.EventID, Timestamp: row.Timestamp, Payload: row}
		}
	case SourceEventLog:
		rows, err := e.repos.EventLog.GetByIDs(ctx, nil, ids)
		if err != nil {
			return nil, fmt.Errorf("load event logs: %w", err)
		}
		for _, row := range rows {
			payloads[row.EventID] = Memory{EventID: row.EventID, Timestamp: row.Time, Payload: row}
		}
	case SourceForesight:
		var (
			rows []*types.Foresight
			err  error
		)
		if req.CurrentTime != nil {
			rows, err = e.repos.Foresight.GetValidByIDs(ctx, nil, ids, repos.MemoryFilter{ValidAt: req.CurrentTime})
		} else {
			rows, err = e.repos.Foresight.GetByIDs(ctx, nil, ids)
		}
		if err != nil {
			return nil, fmt.Errorf("load foresights: %w", err)
		}
		for _, row := range rows {
			payloads[row.EventID] = Memory{EventID: row.EventID, Timestamp: row.Timestamp, Payload: row}
		}
	}

	out := make([]Memory, 0, len(hits))
	for _, h := range hits {
		m, ok := payloads[h.EventID]
		if !ok {
			continue
		}
		m.DataSource = req.DataSource
		m.Score = h.Score
		out = append(out, m)
	}
	return out, nil
}

func textSourceFor(source DataSource) repos.TextSource {
	switch source {
	case SourceSemantic:
		return repos.TextSourceSemantic
	case SourceEventLog:
		return repos.TextSourceEventLog
	case SourceForesight:
		return repos.TextSourceForesight
	default:
		return repos.TextSourceEpisode
	}
}

func namespaceFor(source DataSource) string {
	switch source {
	case SourceSemantic:
		return stores.NamespaceSemantic
	case SourceEventLog:
		return stores.NamespaceEventLog
	case SourceForesight:
		return stores.NamespaceForesight
	default:
		return stores.NamespaceEpisode
	}
}

// memoryText is the candidate text handed to the reranker.
func memoryText(m Memory) string {
	switch p := m.Payload.(type) {
	case *types.EpisodicMemory:
		if p.Episode != "" {
			return p.Episode
		}
		return p.Summary
	case *types.SemanticMemory:
		return p.Content
	case *types.EventLog:
		var facts []string
		_ = json.Unmarshal(p.AtomicFacts, &facts)
		return strings.Join(facts, "\n")
	case *types.Foresight:
		return p.Content
	case *types.ProfileMemory:
		return p.Summary
	default:
		return ""
	}
}
