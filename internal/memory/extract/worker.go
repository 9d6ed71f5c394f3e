package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/memory/cluster"
	"github.com/yungbote/memstream-backend/internal/memory/prompts"
	"github.com/yungbote/memstream-backend/internal/memory/stores"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/platform/openai"
	"github.com/yungbote/memstream-backend/internal/repos"
	"github.com/yungbote/memstream-backend/internal/types"
)

// Task is one extraction unit: a persisted MemCell plus the conversation
// context the fan-out plan needs.
type Task struct {
	Cell        *types.MemCell
	Scene       types.Scene
	UserDetails map[string]types.UserDetail
	Timezone    string
	RequestID   uuid.UUID
}

// Worker is the process-wide extraction worker: a bounded pending queue
// drained by a single consumer goroutine. Submit is non-blocking and fails
// fast when the queue is full.
type Worker struct {
	llm      openai.Client
	msf      stores.Facade
	repos    repos.Repos
	clusters *cluster.Manager
	log      *logger.Logger

	tasks  chan Task
	status *statusMap

	taskDeadline   time.Duration
	embedDim       int
	profileEnabled bool
	foresightOn    bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(llm openai.Client, msf stores.Facade, r repos.Repos, clusters *cluster.Manager, baseLog *logger.Logger) (*Worker, error) {
	if llm == nil || msf == nil {
		return nil, fmt.Errorf("llm client and stores facade required")
	}
	prompts.RegisterAll()
	return &Worker{
		llm:            llm,
		msf:            msf,
		repos:          r,
		clusters:       clusters,
		log:            baseLog.With("service", "ExtractionWorker"),
		tasks:          make(chan Task, envutil.Int("EW_MAX_PENDING", 256)),
		status:         newStatusMap(envutil.Seconds("EW_STATUS_TTL_SEC", 3600)),
		taskDeadline:   envutil.Seconds("EW_TASK_DEADLINE_SEC", 120),
		embedDim:       envutil.Int("EMBED_DIM", 1536),
		profileEnabled: envutil.Bool("EW_PROFILE_ENABLED", true),
		foresightOn:    envutil.Bool("EW_FORESIGHT_ENABLED", true),
	}, nil
}

// Submit enqueues a task and returns its request id (the MemCell event id).
// A full queue is backpressure: the error surfaces to the caller instead of
// blocking ingestion.
func (w *Worker) Submit(task Task) (uuid.UUID, error) {
	if task.Cell == nil {
		return uuid.Nil, fmt.Errorf("task requires a memcell")
	}
	if task.RequestID == uuid.Nil {
		task.RequestID = task.Cell.EventID
	}

	select {
	case w.tasks <- task:
		w.status.set(task.RequestID, StatusPending)
		observability.Current().ObserveTaskSubmitted()
		return task.RequestID, nil
	default:
		return uuid.Nil, fmt.Errorf("extraction queue full (pending=%d)", cap(w.tasks))
	}
}

// StatusOf answers /api/request-status lookups.
func (w *Worker) StatusOf(requestID uuid.UUID) (TaskStatus, bool) {
	return w.status.get(requestID)
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("worker already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx)
	w.log.Info("extraction worker started", "max_pending", cap(w.tasks))
	return nil
}

// Stop halts the consumer after its current task. Pending tasks stay in the
// channel; the MemCells behind them remain persisted for reprocessing.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	purge := time.NewTicker(time.Minute)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			if n := w.status.purgeExpired(); n > 0 {
				w.log.Debug("purged task statuses", "count", n)
			}
		case task := <-w.tasks:
			w.status.set(task.RequestID, StatusProcessing)

			taskCtx, cancel := context.WithTimeout(ctx, w.taskDeadline)
			err := w.process(taskCtx, task)
			cancel()

			if err != nil {
				observability.Current().ObserveTaskFailed()
				w.status.set(task.RequestID, StatusFailed)
				w.log.Error("extraction task failed",
					"request_id", task.RequestID,
					"group_id", task.Cell.GroupID,
					"error", err,
				)
				continue
			}
			observability.Current().ObserveTaskCompleted()
			w.status.set(task.RequestID, StatusCompleted)
		}
	}
}
