package extract

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/openai"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("uuid %q: %v", s, err)
	}
	return id
}

// scriptedLLM answers GenerateJSON by schema name and counts calls per schema.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]map[string]any
	calls   map[string]int
}

func (f *scriptedLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *scriptedLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[schemaName]++
	return f.replies[schemaName], nil
}

func (f *scriptedLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func (f *scriptedLLM) callCount(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

// captureFacade records everything saved and assigns event ids like the
// document store would.
type captureFacade struct {
	mu             sync.Mutex
	episodics      []*types.EpisodicMemory
	semantics      []*types.SemanticMemory
	eventLogs      []*types.EventLog
	foresight      []*types.Foresight
	profiles       []*types.ProfileMemory
	semanticCtxErr error
}

func (f *captureFacade) SaveEpisodics(ctx context.Context, items []*types.EpisodicMemory) ([]*types.EpisodicMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		item.EventID = uuid.New()
	}
	f.episodics = append(f.episodics, items...)
	return items, nil
}

func (f *captureFacade) SaveSemantics(ctx context.Context, items []*types.SemanticMemory) ([]*types.SemanticMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.semanticCtxErr = ctx.Err()
	for _, item := range items {
		item.EventID = uuid.New()
	}
	f.semantics = append(f.semantics, items...)
	return items, nil
}

func (f *captureFacade) SaveEventLogs(ctx context.Context, items []*types.EventLog) ([]*types.EventLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		item.EventID = uuid.New()
	}
	f.eventLogs = append(f.eventLogs, items...)
	return items, nil
}

func (f *captureFacade) SaveForesights(ctx context.Context, items []*types.Foresight) ([]*types.Foresight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foresight = append(f.foresight, items...)
	return items, nil
}

func (f *captureFacade) SaveProfile(ctx context.Context, profile *types.ProfileMemory) (*types.ProfileMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, profile)
	return profile, nil
}

type fakeMemCellRepo struct {
	mu             sync.Mutex
	updatedSubject string
	updatedEpisode string
}

func (f *fakeMemCellRepo) Create(ctx context.Context, tx *gorm.DB, cell *types.MemCell) (*types.MemCell, error) {
	return cell, nil
}
func (f *fakeMemCellRepo) GetByID(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*types.MemCell, error) {
	return nil, nil
}
func (f *fakeMemCellRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string, limit int) ([]*types.MemCell, error) {
	return nil, nil
}
func (f *fakeMemCellRepo) UpdateExtraction(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, subject, episode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedSubject = subject
	f.updatedEpisode = episode
	return nil
}

type fakeStatusRepo struct {
	mu            sync.Mutex
	lastMemCellAt time.Time
}

func (f *fakeStatusRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ConversationStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) TouchMessage(ctx context.Context, tx *gorm.DB, groupID string, at time.Time, awaiting bool) error {
	return nil
}
func (f *fakeStatusRepo) TouchMemCell(ctx context.Context, tx *gorm.DB, groupID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMemCellAt = at
	return nil
}

type fakeProfileRepo struct{}

func (fakeProfileRepo) CreateVersion(ctx context.Context, tx *gorm.DB, p *types.ProfileMemory) (*types.ProfileMemory, error) {
	return p, nil
}
func (fakeProfileRepo) GetLatest(ctx context.Context, tx *gorm.DB, userID, groupID string) (*types.ProfileMemory, error) {
	return nil, nil
}
func (fakeProfileRepo) GetHistory(ctx context.Context, tx *gorm.DB, userID, groupID string, limit int) ([]*types.ProfileMemory, error) {
	return nil, nil
}

func scriptedReplies() map[string]map[string]any {
	return map[string]map[string]any{
		"episode_extract": {
			"subject": "coffee chat",
			"episode": "Alice asked the assistant for espresso recipes.",
			"summary": "Espresso recipes discussed.",
		},
		"semantic_extract": {
			"items": []any{map[string]any{
				"content":       "Likes espresso",
				"evidence":      "asked for espresso recipes",
				"start_time":    "",
				"end_time":      "",
				"duration_days": float64(0),
			}},
		},
		"event_log_extract": {
			"atomic_facts": []any{"Alice asked for espresso recipes"},
		},
		"foresight_extract": {
			"items": []any{},
		},
		"profile_update": {
			"scenario":  "personal assistant",
			"summary":   "Alice enjoys coffee.",
			"interests": []any{"coffee"},
			"skills":    []any{},
			"traits":    []any{},
		},
	}
}

func testWorker(t *testing.T, llm openai.Client, msf *captureFacade) (*Worker, *fakeMemCellRepo) {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	memcells := &fakeMemCellRepo{}
	w, err := NewWorker(llm, msf, repos.Repos{
		MemCell:            memcells,
		ConversationStatus: &fakeStatusRepo{},
		Profile:            fakeProfileRepo{},
	}, nil, log)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w, memcells
}

func assistantCell(t *testing.T) *types.MemCell {
	t.Helper()
	ts := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	return &types.MemCell{
		EventID:      mustUUID(t, "33333333-3333-3333-3333-333333333333"),
		GroupID:      "g1",
		GroupName:    "alice-assistant",
		Participants: types.MarshalJSONColumn([]string{"user_a", "bot_x"}),
		Timestamp:    ts,
		Type:         types.MemCellConversation,
		OriginalData: types.MarshalJSONColumn([]types.RawMessage{
			{MessageID: "m1", GroupID: "g1", SenderID: "user_a", Content: "any espresso recipes?", CreatedAt: ts.Add(-time.Minute)},
			{MessageID: "m2", GroupID: "g1", SenderID: "bot_x", Content: "here are three", CreatedAt: ts},
		}),
	}
}

func TestProcessAssistantSceneFanOut(t *testing.T) {
	llm := &scriptedLLM{replies: scriptedReplies()}
	msf := &captureFacade{}
	w, memcells := testWorker(t, llm, msf)

	cell := assistantCell(t)
	err := w.process(context.Background(), Task{
		Cell:      cell,
		Scene:     types.SceneAssistant,
		RequestID: cell.EventID,
		UserDetails: map[string]types.UserDetail{
			"user_a": {FullName: "Alice"},
			"bot_x":  {Role: "bot"},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// One group episode extraction; no per-user LLM call for the bot or the human.
	if got := llm.callCount("episode_extract"); got != 1 {
		t.Fatalf("episode_extract calls = %d, want 1", got)
	}

	// Persisted: group episode plus one clone for user_a with identical text.
	if len(msf.episodics) != 2 {
		t.Fatalf("episodic rows = %d, want 2", len(msf.episodics))
	}
	var group, personal *types.EpisodicMemory
	for _, ep := range msf.episodics {
		if ep.UserID == "" {
			group = ep
		} else {
			personal = ep
		}
	}
	if group == nil || personal == nil {
		t.Fatal("expected one group and one personal episodic row")
	}
	if personal.UserID != "user_a" || personal.Episode != group.Episode || personal.Subject != group.Subject {
		t.Fatalf("clone mismatch: %+v", personal)
	}

	// Semantic and event log cloned for the human user.
	if len(msf.semantics) != 1 || msf.semantics[0].UserID != "user_a" {
		t.Fatalf("semantics = %+v", msf.semantics)
	}
	if len(msf.eventLogs) != 1 || msf.eventLogs[0].UserID != "user_a" {
		t.Fatalf("event logs = %+v", msf.eventLogs)
	}

	// Subject/episode back-propagated into the MemCell.
	if memcells.updatedSubject != "coffee chat" || !strings.Contains(memcells.updatedEpisode, "espresso") {
		t.Fatalf("back-propagation = (%q, %q)", memcells.updatedSubject, memcells.updatedEpisode)
	}
}

func TestProcessGroupChatPersonalEpisodes(t *testing.T) {
	llm := &scriptedLLM{replies: scriptedReplies()}
	msf := &captureFacade{}
	w, _ := testWorker(t, llm, msf)

	ts := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	cell := &types.MemCell{
		EventID:      mustUUID(t, "44444444-4444-4444-4444-444444444444"),
		GroupID:      "g2",
		Participants: types.MarshalJSONColumn([]string{"user_a", "user_b"}),
		Timestamp:    ts,
		OriginalData: types.MarshalJSONColumn([]types.RawMessage{
			{MessageID: "m1", GroupID: "g2", SenderID: "user_a", Content: "hi", CreatedAt: ts},
		}),
	}

	if err := w.process(context.Background(), Task{Cell: cell, Scene: types.SceneGroupChat, RequestID: cell.EventID}); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Group episode + one personal episode per participant.
	if got := llm.callCount("episode_extract"); got != 3 {
		t.Fatalf("episode_extract calls = %d, want 3", got)
	}
	if len(msf.episodics) != 3 {
		t.Fatalf("episodic rows = %d, want 3", len(msf.episodics))
	}
	// Semantic/event-log fan out per personal episode, not per group episode.
	if got := llm.callCount("semantic_extract"); got != 2 {
		t.Fatalf("semantic_extract calls = %d, want 2", got)
	}
}

func TestSubmitFailsFastWhenFull(t *testing.T) {
	t.Setenv("EW_MAX_PENDING", "1")

	llm := &scriptedLLM{replies: scriptedReplies()}
	w, _ := testWorker(t, llm, &captureFacade{})

	cell := assistantCell(t)
	if _, err := w.Submit(Task{Cell: cell}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := w.Submit(Task{Cell: cell}); err == nil {
		t.Fatal("expected queue-full error")
	}

	if status, ok := w.StatusOf(cell.EventID); !ok || status != StatusPending {
		t.Fatalf("status = (%s, %v), want pending", status, ok)
	}
}

// expiringLLM answers like scriptedLLM but kills the task context right
// before the first semantic extraction, as if the deadline fired while the
// fan-out was in flight.
type expiringLLM struct {
	scriptedLLM
	expire context.CancelFunc
}

func (f *expiringLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "semantic_extract" {
		f.expire()
	}
	return f.scriptedLLM.GenerateJSON(ctx, system, user, schemaName, schema)
}

func TestProcessPersistsFanOutAfterDeadline(t *testing.T) {
	taskCtx, expire := context.WithCancel(context.Background())
	defer expire()

	llm := &expiringLLM{scriptedLLM: scriptedLLM{replies: scriptedReplies()}, expire: expire}
	msf := &captureFacade{}
	w, _ := testWorker(t, llm, msf)

	cell := assistantCell(t)
	err := w.process(taskCtx, Task{
		Cell:      cell,
		Scene:     types.SceneAssistant,
		RequestID: cell.EventID,
		UserDetails: map[string]types.UserDetail{
			"user_a": {FullName: "Alice"},
			"bot_x":  {Role: "bot"},
		},
	})
	if err == nil {
		t.Fatal("expected the dead task context to surface as an error")
	}

	// The semantic and event-log branches finished before the context died;
	// their output must still land instead of being dropped with the deadline.
	if len(msf.semantics) == 0 || len(msf.eventLogs) == 0 {
		t.Fatalf("fan-out output dropped: semantics=%d event_logs=%d", len(msf.semantics), len(msf.eventLogs))
	}
	if msf.semanticCtxErr != nil {
		t.Fatalf("semantics saved on a dead context: %v", msf.semanticCtxErr)
	}

	// Profile updates need fresh LLM calls; none once the deadline is gone.
	if got := llm.callCount("profile_update"); got != 0 {
		t.Fatalf("profile_update calls = %d, want 0", got)
	}
}

func TestHumanParticipants(t *testing.T) {
	t.Parallel()

	details := map[string]types.UserDetail{
		"bot_x":  {Role: "Bot"},
		"user_a": {Role: "member"},
	}
	humans := humanParticipants([]string{"user_a", "bot_x", "user_c"}, details)
	if len(humans) != 2 || humans[0] != "user_a" || humans[1] != "user_c" {
		t.Fatalf("humans = %v", humans)
	}
}
