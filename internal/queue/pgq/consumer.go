package pgq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

// Handler consumes one batch of due items from the partitions this consumer
// owns. Errors are logged and the loop keeps polling.
type Handler func(ctx context.Context, items []QueueItem) error

// Consumer joins a manager as an owner, keeps its keepalive fresh and polls
// its partitions on an interval. One Consumer per process is the normal
// shape; the manager's rebalance spreads partitions across processes.
type Consumer struct {
	mgr     *Manager
	log     *logger.Logger
	ownerID string
	handler Handler

	pollInterval   time.Duration
	scoreThreshold time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(mgr *Manager, baseLog *logger.Logger, ownerID string, handler Handler) (*Consumer, error) {
	if mgr == nil {
		return nil, fmt.Errorf("manager required")
	}
	if ownerID == "" {
		return nil, fmt.Errorf("owner id required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	return &Consumer{
		mgr:            mgr,
		log:            baseLog.With("service", "PGQConsumer", "owner_id", ownerID),
		ownerID:        ownerID,
		handler:        handler,
		pollInterval:   time.Duration(envutil.Int("PGQ_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		scoreThreshold: time.Duration(envutil.Int("PGQ_SCORE_THRESHOLD_MS", 5000)) * time.Millisecond,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("consumer already started")
	}
	if err := c.mgr.JoinConsumer(ctx, c.ownerID); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
	c.log.Info("pgq consumer started")
	return nil
}

// Stop halts polling and leaves the owner set so partitions rebalance away.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return c.mgr.ExitConsumer(ctx, c.ownerID)
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	// Keepalive at a third of the eviction window.
	keepEvery := c.mgr.inactiveThreshold / 3
	if keepEvery <= 0 {
		keepEvery = time.Minute
	}
	keepalive := time.NewTicker(keepEvery)
	defer keepalive.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if err := c.mgr.KeepaliveConsumer(ctx, c.ownerID); err != nil {
				c.log.Warn("keepalive failed", "error", err)
			}
			if _, err := c.mgr.CleanupInactiveOwners(ctx); err != nil {
				c.log.Warn("owner cleanup failed", "error", err)
			}
		case <-poll.C:
			items, err := c.mgr.GetMessages(ctx, c.ownerID, c.scoreThreshold)
			if err != nil {
				c.log.Warn("fetch failed", "error", err)
				continue
			}
			if len(items) == 0 {
				continue
			}
			if err := c.handler(ctx, items); err != nil {
				c.log.Error("handler failed", "items", len(items), "error", err)
			}
		}
	}
}
