package boundary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/memstream-backend/internal/memory/prompts"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/httpx"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/openai"
	"github.com/yungbote/memstream-backend/internal/types"
)

type Status string

const (
	StatusBoundary Status = "boundary"
	StatusContinue Status = "continue"
	StatusWait     Status = "wait"
)

// Request carries the accumulated window plus the newly arrived tail.
type Request struct {
	History      []types.RawMessage
	New          []types.RawMessage
	GroupID      string
	GroupName    string
	Scene        types.Scene
	Participants []string
	Timezone     string
}

// Detector decides whether a message window contains a completed episode.
// On boundary it returns the MemCell built from the closed window; event_id
// is assigned later at persistence.
type Detector interface {
	Decide(ctx context.Context, req Request) (*types.MemCell, Status, error)
}

type detector struct {
	llm openai.Client
	log *logger.Logger

	minMessages int
	minElapsed  time.Duration
	hardGap     time.Duration
}

func NewDetector(llm openai.Client, baseLog *logger.Logger) (Detector, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client required")
	}
	prompts.RegisterAll()
	return &detector{
		llm:         llm,
		log:         baseLog.With("service", "BoundaryDetector"),
		minMessages: envutil.Int("BD_MIN_MESSAGES", 3),
		minElapsed:  envutil.Seconds("BD_MIN_ELAPSED_SEC", 600),
		hardGap:     envutil.Seconds("BD_HARD_GAP_SEC", 4*3600),
	}, nil
}

func (d *detector) Decide(ctx context.Context, req Request) (*types.MemCell, Status, error) {
	if len(req.New) == 0 {
		return nil, StatusContinue, nil
	}

	seq := orderedSequence(req.History, req.New)

	if !d.hardSignal(seq, req.Timezone) {
		elapsed := seq[len(seq)-1].CreatedAt.Sub(seq[0].CreatedAt)
		if len(seq) < d.minMessages && elapsed < d.minElapsed {
			return nil, StatusContinue, nil
		}
	}

	prompt, err := prompts.Build(prompts.PromptBoundaryDecision, prompts.Input{
		Transcript:   renderTranscript(seq),
		GroupName:    req.GroupName,
		Scene:        string(req.Scene),
		Timezone:     req.Timezone,
		Participants: strings.Join(req.Participants, ", "),
	})
	if err != nil {
		return nil, StatusWait, err
	}

	obj, err := d.llm.GenerateJSON(ctx, prompt.System, prompt.User, prompt.SchemaName, prompt.Schema)
	observability.Current().ObserveLLMCall(err != nil)
	if err != nil {
		if httpx.IsRetryableError(err) {
			d.log.Warn("transient boundary LLM failure, waiting", "group_id", req.GroupID, "error", err)
			return nil, StatusWait, nil
		}
		return nil, StatusWait, fmt.Errorf("boundary decision: %w", err)
	}

	dec, err := parseDecision(obj)
	if err != nil {
		d.log.Warn("unparseable boundary decision, waiting", "group_id", req.GroupID, "error", err)
		return nil, StatusWait, nil
	}

	switch dec.Kind {
	case StatusContinue:
		return nil, StatusContinue, nil
	case StatusWait:
		return nil, StatusWait, nil
	}

	end := dec.EndIndex
	if end >= len(seq) {
		end = len(seq) - 1
	}
	// The episode must close on or after the first new message; an end index
	// inside the old history means the evidence is still insufficient.
	if end < firstNewIndex(seq, req.New) {
		d.log.Info("boundary points before new tail, waiting", "group_id", req.GroupID, "end_index", dec.EndIndex)
		return nil, StatusWait, nil
	}

	window := seq[:end+1]
	observability.Current().ObserveBoundary()
	cell := &types.MemCell{
		GroupID:      req.GroupID,
		GroupName:    req.GroupName,
		Participants: types.MarshalJSONColumn(distinctSenders(window)),
		Timestamp:    window[len(window)-1].CreatedAt,
		Type:         types.MemCellConversation,
		OriginalData: types.MarshalJSONColumn(window),
		Summary:      dec.Summary,
		Subject:      dec.Subject,
	}
	return cell, StatusBoundary, nil
}

// hardSignal reports whether the window carries an unambiguous break: a long
// silence, a calendar-date rollover in the conversation's timezone, or an
// explicit topic switch in the newest message.
func (d *detector) hardSignal(seq []types.RawMessage, tz string) bool {
	for i := 1; i < len(seq); i++ {
		if seq[i].CreatedAt.Sub(seq[i-1].CreatedAt) >= d.hardGap {
			return true
		}
	}

	loc := time.UTC
	if tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}
	first := seq[0].CreatedAt.In(loc)
	last := seq[len(seq)-1].CreatedAt.In(loc)
	if first.Year() != last.Year() || first.YearDay() != last.YearDay() {
		return true
	}

	return hasTopicSwitchMarker(seq[len(seq)-1].Content)
}

var topicSwitchMarkers = []string{
	"new topic",
	"change of subject",
	"changing the subject",
	"switching topics",
	"on another note",
	"unrelated, but",
}

func hasTopicSwitchMarker(content string) bool {
	lowered := strings.ToLower(content)
	for _, marker := range topicSwitchMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
