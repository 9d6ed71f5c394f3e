package pgq

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

func newRedisManager(t *testing.T, partitions, maxTotal int) (*Manager, *goredis.Client) {
	t.Helper()

	srv := miniredis.RunT(t)
	t.Setenv("PGQ_KEY_PREFIX", "pgqtest")
	t.Setenv("PGQ_NUM_PARTITIONS", strconv.Itoa(partitions))
	t.Setenv("PGQ_MAX_TOTAL", strconv.Itoa(maxTotal))
	t.Setenv("PGQ_CODEC", "json")
	t.Setenv("PGQ_INACTIVE_SEC", "60")

	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })

	m, err := NewManager(rdb, log)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, rdb
}

// groupKeyFor hunts for a group key that routes to the wanted partition.
func groupKeyFor(t *testing.T, partition, numPartitions int) string {
	t.Helper()
	for i := 0; i < 100000; i++ {
		key := fmt.Sprintf("group-%d", i)
		if PartitionFor(key, numPartitions) == partition {
			return key
		}
	}
	t.Fatalf("no key found for partition %d", partition)
	return ""
}

func TestDeliverRejectsWhenFullAndNoPartitionEmpty(t *testing.T) {
	m, _ := newRedisManager(t, 2, 2)
	ctx := context.Background()

	keyP0 := groupKeyFor(t, 0, 2)
	keyP1 := groupKeyFor(t, 1, 2)

	for _, key := range []string{keyP0, keyP1} {
		ok, err := m.Deliver(ctx, QueueItem{GroupKey: key, Kind: "seed"})
		if err != nil || !ok {
			t.Fatalf("seed deliver(%q) = (%v, %v), want accepted", key, ok, err)
		}
	}

	// count == max_total and both partitions hold items: admission refuses.
	ok, err := m.Deliver(ctx, QueueItem{GroupKey: keyP0, Kind: "overflow"})
	if err != nil {
		t.Fatalf("overflow deliver: %v", err)
	}
	if ok {
		t.Fatal("expected admission to reject when full with no empty partition")
	}

	// The rejected item left no trace in the queue.
	if n, err := m.Count(ctx); err != nil || n != 2 {
		t.Fatalf("count = (%d, %v), want 2", n, err)
	}
	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["rejected"] != "1" || stats["delivered"] != "2" {
		t.Fatalf("stats = %v, want rejected=1 delivered=2", stats)
	}
}

func TestDeliverBypassesWhenSomePartitionEmpty(t *testing.T) {
	m, _ := newRedisManager(t, 2, 1)
	ctx := context.Background()

	keyP0 := groupKeyFor(t, 0, 2)
	keyP1 := groupKeyFor(t, 1, 2)

	if ok, err := m.Deliver(ctx, QueueItem{GroupKey: keyP0, Kind: "first"}); err != nil || !ok {
		t.Fatalf("first deliver = (%v, %v), want accepted", ok, err)
	}

	// Full by count, but partition 1 sits empty: the bypass admits anyway so
	// an idle partition cannot starve.
	if ok, err := m.Deliver(ctx, QueueItem{GroupKey: keyP0, Kind: "bypass"}); err != nil || !ok {
		t.Fatalf("bypass deliver = (%v, %v), want accepted", ok, err)
	}
	if n, _ := m.Count(ctx); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	// Once every partition is non-empty the full queue refuses again.
	if ok, err := m.Deliver(ctx, QueueItem{GroupKey: keyP1, Kind: "fill"}); err != nil || !ok {
		t.Fatalf("fill deliver = (%v, %v), want accepted", ok, err)
	}
	if ok, err := m.Deliver(ctx, QueueItem{GroupKey: keyP1, Kind: "overflow"}); err != nil || ok {
		t.Fatalf("overflow deliver = (%v, %v), want rejected", ok, err)
	}
}

func TestGetMessagesScoreOrderAcrossFetches(t *testing.T) {
	m, _ := newRedisManager(t, 1, 100)
	ctx := context.Background()

	if err := m.JoinConsumer(ctx, "owner-a"); err != nil {
		t.Fatalf("join: %v", err)
	}

	now := time.Now()
	// Enqueued out of score order on purpose.
	for _, it := range []QueueItem{
		{GroupKey: "g", Kind: "t-10", EnqueueMS: now.Add(-10 * time.Minute).UnixMilli()},
		{GroupKey: "g", Kind: "t-5", EnqueueMS: now.Add(-5 * time.Minute).UnixMilli()},
		{GroupKey: "g", Kind: "t-8", EnqueueMS: now.Add(-8 * time.Minute).UnixMilli()},
	} {
		if ok, err := m.Deliver(ctx, it); err != nil || !ok {
			t.Fatalf("deliver %s = (%v, %v)", it.Kind, ok, err)
		}
	}

	// A 6-minute threshold only makes the two older items due.
	first, err := m.GetMessages(ctx, "owner-a", 6*time.Minute)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(first) != 2 || first[0].Kind != "t-10" || first[1].Kind != "t-8" {
		t.Fatalf("first fetch = %+v, want [t-10 t-8] in score order", kinds(first))
	}

	second, err := m.GetMessages(ctx, "owner-a", 0)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(second) != 1 || second[0].Kind != "t-5" {
		t.Fatalf("second fetch = %+v, want [t-5]", kinds(second))
	}

	// Scores never decrease across consecutive fetches of one partition.
	prev := int64(0)
	for _, it := range append(first, second...) {
		if it.EnqueueMS < prev {
			t.Fatalf("score order violated: %d after %d", it.EnqueueMS, prev)
		}
		prev = it.EnqueueMS
	}

	if n, _ := m.Count(ctx); n != 0 {
		t.Fatalf("count after drain = %d, want 0", n)
	}
	stats, _ := m.Stats(ctx)
	if stats["fetched"] != "3" {
		t.Fatalf("stats = %v, want fetched=3", stats)
	}
}

func TestCleanupEvictsStaleOwnerAndRebalances(t *testing.T) {
	m, rdb := newRedisManager(t, 4, 100)
	ctx := context.Background()

	if err := m.JoinConsumer(ctx, "owner-a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := m.JoinConsumer(ctx, "owner-b"); err != nil {
		t.Fatalf("join b: %v", err)
	}
	ownedA, _ := m.OwnedPartitions(ctx, "owner-a")
	ownedB, _ := m.OwnedPartitions(ctx, "owner-b")
	if len(ownedA) != 2 || len(ownedB) != 2 {
		t.Fatalf("initial split = %v / %v, want 2 each", ownedA, ownedB)
	}

	// Backdate owner-a's keepalive beyond the inactive threshold.
	stale := float64(time.Now().Add(-2 * time.Minute).UnixMilli())
	if err := rdb.ZAdd(ctx, m.ownersKey(), goredis.Z{Score: stale, Member: "owner-a"}).Err(); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	removed, err := m.CleanupInactiveOwners(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	ownedA, _ = m.OwnedPartitions(ctx, "owner-a")
	ownedB, _ = m.OwnedPartitions(ctx, "owner-b")
	if len(ownedA) != 0 || len(ownedB) != 4 {
		t.Fatalf("post-eviction split = %v / %v, want all with owner-b", ownedA, ownedB)
	}

	// A keepalive from the evicted owner never resurrects it.
	if err := m.KeepaliveConsumer(ctx, "owner-a"); err != nil {
		t.Fatalf("keepalive: %v", err)
	}
	if err := rdb.ZScore(ctx, m.ownersKey(), "owner-a").Err(); err != goredis.Nil {
		t.Fatalf("evicted owner present after keepalive: %v", err)
	}

	// Items delivered before or after the eviction flow to the survivor.
	if ok, err := m.Deliver(ctx, QueueItem{GroupKey: "g", Kind: "handoff"}); err != nil || !ok {
		t.Fatalf("deliver = (%v, %v)", ok, err)
	}
	items, err := m.GetMessages(ctx, "owner-b", 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 || items[0].Kind != "handoff" {
		t.Fatalf("survivor fetch = %+v, want [handoff]", kinds(items))
	}
}

func kinds(items []QueueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Kind
	}
	return out
}
