package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/memory/boundary"
	"github.com/yungbote/memstream-backend/internal/memory/buffer"
	"github.com/yungbote/memstream-backend/internal/memory/extract"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

const (
	StatusSubmitted   = "submitted"
	StatusAccumulated = "accumulated"
)

// MemorizeResult is the ingestion acknowledgement: a request id when a
// boundary closed and extraction was submitted, otherwise "accumulated".
type MemorizeResult struct {
	RequestID  *uuid.UUID `json:"request_id,omitempty"`
	StatusInfo string     `json:"status_info"`
}

// TaskSubmitter is the worker-facing edge of the pipeline.
type TaskSubmitter interface {
	Submit(task extract.Task) (uuid.UUID, error)
}

// Pipeline orchestrates buffer -> boundary decision -> MemCell persistence
// -> extraction submission for one batch of new messages.
type Pipeline interface {
	Memorize(ctx context.Context, messages []types.RawMessage) (MemorizeResult, error)
}

type pipeline struct {
	cb     buffer.ConversationBuffer
	bd     boundary.Detector
	worker TaskSubmitter
	repos  repos.Repos
	locks  GroupLocker
	log    *logger.Logger

	lockRetries int
	lockBackoff time.Duration
	bufferLimit int
}

func NewPipeline(cb buffer.ConversationBuffer, bd boundary.Detector, worker TaskSubmitter, r repos.Repos, locks GroupLocker, baseLog *logger.Logger) (Pipeline, error) {
	if cb == nil || bd == nil || worker == nil || locks == nil {
		return nil, fmt.Errorf("buffer, detector, worker and lock required")
	}
	return &pipeline{
		cb:          cb,
		bd:          bd,
		worker:      worker,
		repos:       r,
		locks:       locks,
		log:         baseLog.With("service", "IngestionPipeline"),
		lockRetries: envutil.Int("INGEST_LOCK_RETRIES", 5),
		lockBackoff: time.Duration(envutil.Int("INGEST_LOCK_BACKOFF_MS", 100)) * time.Millisecond,
		bufferLimit: envutil.Int("CB_MAX_LENGTH", 1000),
	}, nil
}

func (p *pipeline) Memorize(ctx context.Context, messages []types.RawMessage) (MemorizeResult, error) {
	if len(messages) == 0 {
		return MemorizeResult{}, fmt.Errorf("no messages")
	}
	groupID := messages[0].GroupID
	if groupID == "" {
		return MemorizeResult{}, fmt.Errorf("group_id required")
	}
	for _, m := range messages {
		if m.GroupID != groupID {
			return MemorizeResult{}, fmt.Errorf("messages span groups %q and %q", groupID, m.GroupID)
		}
	}
	observability.Current().ObserveMemorize()

	token, err := p.acquireLock(ctx, groupID)
	if err != nil {
		return MemorizeResult{}, err
	}
	defer func() {
		if rErr := p.locks.Release(context.WithoutCancel(ctx), groupID, token); rErr != nil {
			p.log.Warn("ingest lock release failed", "group_id", groupID, "error", rErr)
		}
	}()

	meta, err := p.repos.ConversationMeta.GetByGroupID(ctx, nil, groupID)
	if err != nil {
		return MemorizeResult{}, fmt.Errorf("read conversation meta: %w", err)
	}
	scene, timezone, userDetails := metaContext(meta)

	history, err := p.cb.Get(ctx, groupID, p.bufferLimit)
	if err != nil {
		return MemorizeResult{}, fmt.Errorf("read conversation buffer: %w", err)
	}

	cell, status, err := p.bd.Decide(ctx, boundary.Request{
		History:      history,
		New:          messages,
		GroupID:      groupID,
		GroupName:    metaName(meta),
		Scene:        scene,
		Participants: senderUnion(history, messages),
		Timezone:     timezone,
	})
	if err != nil {
		return MemorizeResult{}, err
	}

	if status != boundary.StatusBoundary || cell == nil {
		if aErr := p.cb.Append(ctx, groupID, messages); aErr != nil {
			return MemorizeResult{}, fmt.Errorf("buffer append: %w", aErr)
		}
		observability.Current().ObserveBuffered(len(messages))
		p.touchMessages(ctx, groupID, messages, status == boundary.StatusWait)
		return MemorizeResult{StatusInfo: StatusAccumulated}, nil
	}

	// Boundary: the closed window leaves the buffer; whatever arrived after
	// the episode's end starts the next window.
	if cErr := p.cb.Clear(ctx, groupID); cErr != nil {
		return MemorizeResult{}, fmt.Errorf("buffer clear: %w", cErr)
	}
	remainder := messagesAfter(messages, cell.Timestamp)
	if len(remainder) > 0 {
		if aErr := p.cb.Append(ctx, groupID, remainder); aErr != nil {
			return MemorizeResult{}, fmt.Errorf("buffer restart: %w", aErr)
		}
	}

	saved, err := p.repos.MemCell.Create(ctx, nil, cell)
	if err != nil {
		return MemorizeResult{}, fmt.Errorf("persist memcell: %w", err)
	}

	requestID, err := p.worker.Submit(extract.Task{
		Cell:        saved,
		Scene:       scene,
		UserDetails: userDetails,
		Timezone:    timezone,
		RequestID:   saved.EventID,
	})
	if err != nil {
		return MemorizeResult{}, fmt.Errorf("submit extraction: %w", err)
	}

	p.touchMessages(ctx, groupID, messages, false)
	if sErr := p.repos.ConversationStatus.TouchMemCell(ctx, nil, groupID, saved.Timestamp); sErr != nil {
		p.log.Warn("conversation status memcell update failed", "group_id", groupID, "error", sErr)
	}

	return MemorizeResult{RequestID: &requestID, StatusInfo: StatusSubmitted}, nil
}

func (p *pipeline) acquireLock(ctx context.Context, groupID string) (string, error) {
	for attempt := 0; ; attempt++ {
		token, ok, err := p.locks.Acquire(ctx, groupID)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if attempt >= p.lockRetries {
			return "", fmt.Errorf("group %s is busy", groupID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.lockBackoff):
		}
	}
}

func (p *pipeline) touchMessages(ctx context.Context, groupID string, messages []types.RawMessage, awaiting bool) {
	last := time.Now()
	if tail := messages[len(messages)-1].CreatedAt; tail.After(last) {
		last = tail
	}
	if err := p.repos.ConversationStatus.TouchMessage(ctx, nil, groupID, last, awaiting); err != nil {
		p.log.Warn("conversation status message update failed", "group_id", groupID, "error", err)
	}
}

func metaContext(meta *types.ConversationMeta) (types.Scene, string, map[string]types.UserDetail) {
	scene := types.SceneOther
	timezone := "UTC"
	details := map[string]types.UserDetail{}
	if meta == nil {
		return scene, timezone, details
	}
	if meta.Scene != "" {
		scene = meta.Scene
	}
	if meta.DefaultTimezone != "" {
		timezone = meta.DefaultTimezone
	}
	if len(meta.UserDetails) > 0 {
		_ = json.Unmarshal(meta.UserDetails, &details)
	}
	return scene, timezone, details
}

func metaName(meta *types.ConversationMeta) string {
	if meta == nil {
		return ""
	}
	return meta.Name
}

func senderUnion(history, fresh []types.RawMessage) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, batch := range [][]types.RawMessage{history, fresh} {
		for _, m := range batch {
			if m.SenderID == "" {
				continue
			}
			if _, ok := seen[m.SenderID]; ok {
				continue
			}
			seen[m.SenderID] = struct{}{}
			out = append(out, m.SenderID)
		}
	}
	return out
}

// messagesAfter keeps the messages strictly newer than the closed episode.
func messagesAfter(messages []types.RawMessage, cutoff time.Time) []types.RawMessage {
	var out []types.RawMessage
	for _, m := range messages {
		if m.CreatedAt.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}
