package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/memstream-backend/internal/memory/prompts"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/types"
)

// process runs the full fan-out plan for one MemCell. Branch failures are
// logged and demoted; the task as a whole fails only when nothing could be
// extracted or a persist step failed.
func (w *Worker) process(ctx context.Context, task Task) error {
	cell := task.Cell
	transcript := renderCellTranscript(cell)
	if transcript == "" {
		return fmt.Errorf("memcell %s has no renderable messages", cell.EventID)
	}

	participants := types.UnmarshalStrings(cell.Participants)
	humans := humanParticipants(participants, task.UserDetails)
	isAssistant := task.Scene.IsAssistant()

	// Stage A: group episode always; personal episodes only outside
	// assistant scenes (there the group episode is cloned per user instead
	// of burning an LLM call per participant).
	targets := []string{""}
	if !isAssistant {
		targets = append(targets, humans...)
	}

	extracted := make([]*types.EpisodicMemory, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, userID := range targets {
		i, userID := i, userID
		g.Go(func() error {
			ep, err := w.extractEpisode(gctx, task, transcript, participants, userID)
			if err != nil {
				w.log.Warn("episode extraction branch failed",
					"request_id", task.RequestID, "user_id", userID, "error", err)
				return nil
			}
			extracted[i] = ep
			return nil
		})
	}
	_ = g.Wait()

	groupEpisode := extracted[0]
	episodes := make([]*types.EpisodicMemory, 0, len(extracted))
	for _, ep := range extracted {
		if ep != nil {
			episodes = append(episodes, ep)
		}
	}
	if len(episodes) == 0 {
		return fmt.Errorf("all episode extractions failed")
	}

	// Back-propagate subject/episode into the MemCell document.
	if groupEpisode != nil {
		if err := w.repos.MemCell.UpdateExtraction(ctx, nil, cell.EventID, groupEpisode.Subject, groupEpisode.Episode); err != nil {
			w.log.Warn("memcell back-propagation failed", "request_id", task.RequestID, "error", err)
		}
	}

	// Stage B: persist; assistant scenes clone the group episode per human
	// so per-user retrieval works without redundant extraction.
	if isAssistant && groupEpisode != nil {
		for _, userID := range humans {
			clone := *groupEpisode
			clone.UserID = userID
			episodes = append(episodes, &clone)
		}
	}
	saved, err := w.msf.SaveEpisodics(ctx, episodes)
	if err != nil {
		return err
	}

	parents := stageCParents(saved, isAssistant)
	if len(parents) == 0 {
		return fmt.Errorf("no persisted episode to fan out from")
	}

	// Stage C: semantic + event-log per parent episode, in parallel.
	type fanOut struct {
		semantics []*types.SemanticMemory
		eventLog  *types.EventLog
	}
	outs := make([]fanOut, len(parents))
	var foresights []*types.Foresight

	g, gctx = errgroup.WithContext(ctx)
	for i, parent := range parents {
		i, parent := i, parent
		target := parent.UserID
		if target == "" && len(humans) > 0 {
			target = humans[0]
		}
		g.Go(func() error {
			items, sErr := w.extractSemantics(gctx, task, parent, target)
			if sErr != nil {
				w.log.Warn("semantic extraction branch failed",
					"request_id", task.RequestID, "episode_id", parent.EventID, "error", sErr)
			} else {
				outs[i].semantics = items
			}
			return nil
		})
		g.Go(func() error {
			el, eErr := w.extractEventLog(gctx, task, parent, target)
			if eErr != nil {
				w.log.Warn("event log extraction branch failed",
					"request_id", task.RequestID, "episode_id", parent.EventID, "error", eErr)
			} else {
				outs[i].eventLog = el
			}
			return nil
		})
	}
	if w.foresightOn && groupEpisode != nil {
		groupParent := findGroupEpisode(saved)
		if groupParent != nil {
			g.Go(func() error {
				items, fErr := w.extractForesights(gctx, task, groupParent)
				if fErr != nil {
					w.log.Warn("foresight extraction branch failed",
						"request_id", task.RequestID, "error", fErr)
					return nil
				}
				foresights = items
				return nil
			})
		}
	}
	_ = g.Wait()

	// Stage D: persist, cloning semantic/event-log per human in assistant
	// scenes. Foresights are not cloned.
	var semantics []*types.SemanticMemory
	var eventLogs []*types.EventLog
	for _, out := range outs {
		if isAssistant {
			for _, userID := range humans {
				for _, item := range out.semantics {
					clone := *item
					clone.UserID = userID
					semantics = append(semantics, &clone)
				}
				if out.eventLog != nil {
					clone := *out.eventLog
					clone.UserID = userID
					eventLogs = append(eventLogs, &clone)
				}
			}
			continue
		}
		semantics = append(semantics, out.semantics...)
		if out.eventLog != nil {
			eventLogs = append(eventLogs, out.eventLog)
		}
	}

	// The fan-out may have eaten the whole task deadline. Finished branch
	// output still lands: saves run on a short detached context once the
	// deadline has fired, and the expired deadline surfaces afterwards.
	saveCtx, cancelSave := persistCtx(ctx)
	defer cancelSave()

	if _, err := w.msf.SaveSemantics(saveCtx, semantics); err != nil {
		return err
	}
	if _, err := w.msf.SaveEventLogs(saveCtx, eventLogs); err != nil {
		return err
	}
	if _, err := w.msf.SaveForesights(saveCtx, foresights); err != nil {
		return err
	}

	// Profiles burn fresh LLM calls; skip them once the deadline is gone.
	if w.profileEnabled && ctx.Err() == nil {
		w.updateProfiles(ctx, task, humans, groupEpisode)
	}

	// Stage E: fire-and-forget clustering, then conversation status.
	if w.clusters != nil && groupEpisode != nil {
		vector := types.UnmarshalFloats(groupEpisode.Embedding)
		if len(vector) > 0 {
			go func() {
				cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if _, cErr := w.clusters.Assign(cctx, cell.GroupID, cell, vector); cErr != nil {
					w.log.Warn("clustering failed", "request_id", task.RequestID, "error", cErr)
				}
			}()
		}
	}
	if err := w.repos.ConversationStatus.TouchMemCell(saveCtx, nil, cell.GroupID, cell.Timestamp); err != nil {
		w.log.Warn("conversation status update failed", "request_id", task.RequestID, "error", err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("fan-out hit the task deadline after persist: %w", ctx.Err())
	}
	return nil
}

// persistCtx returns ctx while the task deadline is still live. Once it has
// expired, persistence runs on a short detached context so completed branch
// output is not thrown away with the deadline.
func persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (w *Worker) extractEpisode(ctx context.Context, task Task, transcript string, participants []string, userID string) (*types.EpisodicMemory, error) {
	in := prompts.Input{
		Transcript:   transcript,
		GroupName:    task.Cell.GroupName,
		Scene:        string(task.Scene),
		Participants: strings.Join(participants, ", "),
	}
	if userID != "" {
		in.TargetUserID = userID
		in.TargetUserName = displayName(userID, task.UserDetails)
	}

	obj, err := w.generate(ctx, prompts.PromptEpisodeExtract, in)
	if err != nil {
		return nil, err
	}
	res, err := parseEpisode(obj)
	if err != nil {
		return nil, err
	}

	embedding := w.embedBatch(ctx, []string{res.Episode})[0]
	return &types.EpisodicMemory{
		ParentMemCellIDs: types.MarshalJSONColumn([]string{task.Cell.EventID.String()}),
		UserID:           userID,
		GroupID:          task.Cell.GroupID,
		Timestamp:        task.Cell.Timestamp,
		Subject:          res.Subject,
		Episode:          res.Episode,
		Summary:          res.Summary,
		Embedding:        types.MarshalJSONColumn(embedding),
	}, nil
}

func (w *Worker) extractSemantics(ctx context.Context, task Task, parent *types.EpisodicMemory, target string) ([]*types.SemanticMemory, error) {
	obj, err := w.generate(ctx, prompts.PromptSemanticExtract, prompts.Input{
		Episode:        parent.Episode,
		Subject:        parent.Subject,
		TargetUserID:   target,
		TargetUserName: displayName(target, task.UserDetails),
	})
	if err != nil {
		return nil, err
	}

	items := parseSemanticItems(obj)
	if len(items) == 0 {
		return nil, nil
	}

	contents := make([]string, len(items))
	for i, item := range items {
		contents[i] = item.Content
	}
	embeddings := w.embedBatch(ctx, contents)

	out := make([]*types.SemanticMemory, 0, len(items))
	for i, item := range items {
		out = append(out, &types.SemanticMemory{
			SourceEpisodeID: parent.EventID,
			UserID:          target,
			GroupID:         task.Cell.GroupID,
			Content:         item.Content,
			Evidence:        item.Evidence,
			StartTime:       item.StartTime,
			EndTime:         item.EndTime,
			DurationDays:    item.DurationDays,
			Timestamp:       task.Cell.Timestamp,
			Embedding:       types.MarshalJSONColumn(embeddings[i]),
		})
	}
	return out, nil
}

func (w *Worker) extractEventLog(ctx context.Context, task Task, parent *types.EpisodicMemory, target string) (*types.EventLog, error) {
	obj, err := w.generate(ctx, prompts.PromptEventLogExtract, prompts.Input{
		Episode:        parent.Episode,
		TargetUserID:   target,
		TargetUserName: displayName(target, task.UserDetails),
	})
	if err != nil {
		return nil, err
	}

	facts := parseEventLogFacts(obj)
	if len(facts) == 0 {
		return nil, nil
	}

	embeddings := w.embedBatch(ctx, facts)
	return &types.EventLog{
		ParentEpisodeID: parent.EventID,
		UserID:          target,
		GroupID:         task.Cell.GroupID,
		Time:            task.Cell.Timestamp,
		AtomicFacts:     types.MarshalJSONColumn(facts),
		FactEmbeddings:  types.MarshalJSONColumn(embeddings),
	}, nil
}

func (w *Worker) extractForesights(ctx context.Context, task Task, parent *types.EpisodicMemory) ([]*types.Foresight, error) {
	obj, err := w.generate(ctx, prompts.PromptForesightExtract, prompts.Input{Episode: parent.Episode})
	if err != nil {
		return nil, err
	}

	items := parseForesightItems(obj)
	if len(items) == 0 {
		return nil, nil
	}

	contents := make([]string, len(items))
	for i, item := range items {
		contents[i] = item.Content
	}
	embeddings := w.embedBatch(ctx, contents)

	out := make([]*types.Foresight, 0, len(items))
	for i, item := range items {
		out = append(out, &types.Foresight{
			ParentEpisodeID: parent.EventID,
			GroupID:         task.Cell.GroupID,
			Content:         item.Content,
			Evidence:        item.Evidence,
			StartTime:       item.StartTime,
			EndTime:         item.EndTime,
			Timestamp:       task.Cell.Timestamp,
			Embedding:       types.MarshalJSONColumn(embeddings[i]),
		})
	}
	return out, nil
}

// updateProfiles rolls the new episode into each human's profile version.
// Failures are demoted; profiles catch up on the next boundary.
func (w *Worker) updateProfiles(ctx context.Context, task Task, humans []string, groupEpisode *types.EpisodicMemory) {
	if groupEpisode == nil || len(humans) == 0 {
		return
	}
	episodeJSON, err := json.Marshal(map[string]string{
		"subject": groupEpisode.Subject,
		"episode": groupEpisode.Episode,
	})
	if err != nil {
		return
	}

	for _, userID := range humans {
		existing := "{}"
		if prev, pErr := w.repos.Profile.GetLatest(ctx, nil, userID, task.Cell.GroupID); pErr == nil && prev != nil {
			if raw, mErr := json.Marshal(prev); mErr == nil {
				existing = string(raw)
			}
		}

		obj, gErr := w.generate(ctx, prompts.PromptProfileUpdate, prompts.Input{
			TargetUserID:        userID,
			TargetUserName:      displayName(userID, task.UserDetails),
			ExistingProfileJSON: existing,
			RecentEpisodesJSON:  string(episodeJSON),
		})
		if gErr != nil {
			w.log.Warn("profile update branch failed", "request_id", task.RequestID, "user_id", userID, "error", gErr)
			continue
		}
		res, pErr := parseProfile(obj)
		if pErr != nil {
			w.log.Warn("profile parse failed", "request_id", task.RequestID, "user_id", userID, "error", pErr)
			continue
		}

		if _, sErr := w.msf.SaveProfile(ctx, &types.ProfileMemory{
			UserID:    userID,
			GroupID:   task.Cell.GroupID,
			Scenario:  res.Scenario,
			Summary:   res.Summary,
			Interests: types.MarshalJSONColumn(res.Interests),
			Skills:    types.MarshalJSONColumn(res.Skills),
			Traits:    types.MarshalJSONColumn(res.Traits),
		}); sErr != nil {
			w.log.Warn("profile save failed", "request_id", task.RequestID, "user_id", userID, "error", sErr)
		}
	}
}

func (w *Worker) generate(ctx context.Context, name prompts.PromptName, in prompts.Input) (map[string]any, error) {
	p, err := prompts.Build(name, in)
	if err != nil {
		return nil, err
	}
	obj, err := w.llm.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	observability.Current().ObserveLLMCall(err != nil)
	return obj, err
}

// embedBatch never fails: an embedding outage demotes every vector in the
// batch to a zero placeholder so the items still persist as text.
func (w *Worker) embedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	vecs, err := w.llm.Embed(ctx, texts)
	observability.Current().ObserveEmbedCall(err != nil)
	if err == nil && len(vecs) == len(texts) {
		return vecs
	}
	if err != nil {
		w.log.Warn("embedding failed, demoting to zero vectors", "count", len(texts), "error", err)
	}
	observability.Current().ObserveEmbedFallback()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, w.embedDim)
	}
	return out
}

func renderCellTranscript(cell *types.MemCell) string {
	messages := types.UnmarshalRawMessages(cell.OriginalData)
	var b strings.Builder
	for _, m := range messages {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		fmt.Fprintf(&b, "%s | %s | %s\n", sender, m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// humanParticipants filters out bot participants by conversation-meta role.
func humanParticipants(participants []string, details map[string]types.UserDetail) []string {
	var out []string
	for _, id := range participants {
		if isBot(id, details) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func isBot(userID string, details map[string]types.UserDetail) bool {
	detail, ok := details[userID]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(detail.Role)) {
	case "bot", "assistant", "agent":
		return true
	}
	return false
}

func displayName(userID string, details map[string]types.UserDetail) string {
	if detail, ok := details[userID]; ok && detail.FullName != "" {
		return detail.FullName
	}
	return userID
}

// stageCParents picks the episodes semantic/event-log extraction runs over:
// the single group episode in assistant scenes, personal episodes elsewhere
// (falling back to the group episode when none exist).
func stageCParents(saved []*types.EpisodicMemory, isAssistant bool) []*types.EpisodicMemory {
	if isAssistant {
		if group := findGroupEpisode(saved); group != nil {
			return []*types.EpisodicMemory{group}
		}
		return nil
	}
	var personal []*types.EpisodicMemory
	for _, ep := range saved {
		if ep.UserID != "" {
			personal = append(personal, ep)
		}
	}
	if len(personal) > 0 {
		return personal
	}
	if group := findGroupEpisode(saved); group != nil {
		return []*types.EpisodicMemory{group}
	}
	return nil
}

func findGroupEpisode(saved []*types.EpisodicMemory) *types.EpisodicMemory {
	for _, ep := range saved {
		if ep.UserID == "" {
			return ep
		}
	}
	return nil
}
