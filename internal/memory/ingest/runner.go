package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/queue/pgq"
)

// Runner joins the partitioned group queue as a consumer and feeds admitted
// batches into the pipeline. It is the shock absorber path: upstream buses
// deliver into the queue, and each owner drains its own partitions so
// per-group ordering holds across processes.
type Runner struct {
	consumer *pgq.Consumer
	log      *logger.Logger
}

func NewRunner(mgr *pgq.Manager, p Pipeline, baseLog *logger.Logger) (*Runner, error) {
	if mgr == nil || p == nil {
		return nil, fmt.Errorf("queue manager and pipeline required")
	}
	log := baseLog.With("service", "IntakeRunner")

	hostname, _ := os.Hostname()
	ownerID := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	consumer, err := pgq.NewConsumer(mgr, baseLog, ownerID, func(ctx context.Context, items []pgq.QueueItem) error {
		for _, item := range items {
			if len(item.Messages) == 0 {
				continue
			}
			if _, err := p.Memorize(ctx, item.Messages); err != nil {
				log.Error("intake memorize failed", "group_key", item.GroupKey, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Runner{consumer: consumer, log: log}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	return r.consumer.Start(ctx)
}

func (r *Runner) Stop(ctx context.Context) error {
	return r.consumer.Stop(ctx)
}
