package pgq

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/envutil"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

// deliverScript performs the admission check and enqueue atomically:
// reject when the queue is full, unless some partition sits empty
// (empty-partition bypass keeps idle partitions from starving).
//
// KEYS[1] = count key, KEYS[2] = target partition zset
// ARGV[1] = max_total, ARGV[2] = num_partitions, ARGV[3] = key prefix,
// ARGV[4] = score (ms), ARGV[5] = encoded member
var deliverScript = goredis.NewScript(`
local total = tonumber(redis.call('GET', KEYS[1]) or '0')
local max_total = tonumber(ARGV[1])
if total >= max_total then
  local n = tonumber(ARGV[2])
  local empty = false
  for p = 0, n - 1 do
    if redis.call('ZCARD', ARGV[3] .. ':q:' .. p) == 0 then
      empty = true
      break
    end
  end
  if not empty then
    redis.call('HINCRBY', ARGV[3] .. ':stats', 'rejected', 1)
    return 0
  end
end
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
redis.call('INCR', KEYS[1])
redis.call('HINCRBY', ARGV[3] .. ':stats', 'delivered', 1)
return 1
`)

// fetchScript drains everything at or below the score cutoff from one
// partition and decrements the global count in the same call.
//
// KEYS[1] = partition zset, KEYS[2] = count key, KEYS[3] = stats hash
// ARGV[1] = max score (ms)
var fetchScript = goredis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if #items == 0 then
  return items
end
for i = 1, #items do
  redis.call('ZREM', KEYS[1], items[i])
end
redis.call('DECRBY', KEYS[2], #items)
redis.call('HINCRBY', KEYS[3], 'fetched', #items)
return items
`)

// Manager shards group-keyed traffic across a fixed number of Redis sorted
// sets and tracks which consumer owns each partition. Multiple processes may
// share one manager prefix; Redis atomicity plus single-owner assignment
// gives per-group ordering and at-least-once delivery.
type Manager struct {
	rdb               *goredis.Client
	log               *logger.Logger
	prefix            string
	numPartitions     int
	maxTotal          int
	inactiveThreshold time.Duration
	codec             Codec
}

func NewManager(rdb *goredis.Client, baseLog *logger.Logger) (*Manager, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	codec, err := CodecByName(envutil.Str("PGQ_CODEC", "json"))
	if err != nil {
		return nil, err
	}
	m := &Manager{
		rdb:               rdb,
		log:               baseLog.With("service", "PGQManager"),
		prefix:            envutil.Str("PGQ_KEY_PREFIX", "pgq"),
		numPartitions:     envutil.Int("PGQ_NUM_PARTITIONS", 50),
		maxTotal:          envutil.Int("PGQ_MAX_TOTAL", 1000),
		inactiveThreshold: envutil.Seconds("PGQ_INACTIVE_SEC", 300),
		codec:             codec,
	}
	if m.numPartitions <= 0 {
		return nil, fmt.Errorf("PGQ_NUM_PARTITIONS must be positive")
	}
	return m, nil
}

func (m *Manager) NumPartitions() int { return m.numPartitions }

func (m *Manager) partitionKey(p int) string { return fmt.Sprintf("%s:q:%d", m.prefix, p) }
func (m *Manager) ownersKey() string         { return m.prefix + ":owners" }
func (m *Manager) assignKey() string         { return m.prefix + ":assign" }
func (m *Manager) countKey() string          { return m.prefix + ":count" }
func (m *Manager) statsKey() string          { return m.prefix + ":stats" }

// PartitionFor maps a group key onto a partition index. MD5 keeps the
// mapping stable across processes and restarts.
func PartitionFor(groupKey string, numPartitions int) int {
	sum := md5.Sum([]byte(groupKey))
	v := binary.BigEndian.Uint64(sum[:8])
	return int(v % uint64(numPartitions))
}

// Deliver enqueues one item into the partition its group key routes to.
// Returns false (without mutating state) when admission rejects the item.
func (m *Manager) Deliver(ctx context.Context, item QueueItem) (bool, error) {
	if item.GroupKey == "" {
		return false, fmt.Errorf("group key required")
	}
	if item.EnqueueMS == 0 {
		item.EnqueueMS = time.Now().UnixMilli()
	}
	raw, err := m.codec.Encode(item)
	if err != nil {
		return false, fmt.Errorf("encode queue item: %w", err)
	}

	p := PartitionFor(item.GroupKey, m.numPartitions)
	res, err := deliverScript.Run(ctx, m.rdb,
		[]string{m.countKey(), m.partitionKey(p)},
		m.maxTotal, m.numPartitions, m.prefix, item.EnqueueMS, raw,
	).Int()
	if err != nil {
		return false, fmt.Errorf("pgq deliver: %w", err)
	}
	accepted := res == 1
	if accepted {
		observability.Current().ObserveQueueDelivered()
	} else {
		observability.Current().ObserveQueueRejected()
		m.log.Warn("pgq admission rejected item", "group_key", item.GroupKey, "partition", p)
	}
	return accepted, nil
}

// GetMessages drains due items (score <= now - scoreThreshold) from every
// partition the owner currently holds. Within a partition items come back
// score-ascending; the threshold delays pickup so that messages belonging
// to one in-flight episode travel together.
func (m *Manager) GetMessages(ctx context.Context, ownerID string, scoreThreshold time.Duration) ([]QueueItem, error) {
	owned, err := m.OwnedPartitions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, nil
	}

	cutoff := time.Now().UnixMilli() - scoreThreshold.Milliseconds()
	var out []QueueItem
	for _, p := range owned {
		raws, err := fetchScript.Run(ctx, m.rdb,
			[]string{m.partitionKey(p), m.countKey(), m.statsKey()},
			cutoff,
		).StringSlice()
		if err != nil {
			return out, fmt.Errorf("pgq fetch partition %d: %w", p, err)
		}
		for _, raw := range raws {
			item, dErr := m.codec.Decode([]byte(raw))
			if dErr != nil {
				m.log.Warn("dropping undecodable queue item", "partition", p, "error", dErr)
				continue
			}
			out = append(out, item)
		}
	}
	observability.Current().ObserveQueueFetched(len(out))
	return out, nil
}

func (m *Manager) JoinConsumer(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("owner id required")
	}
	now := float64(time.Now().UnixMilli())
	if err := m.rdb.ZAdd(ctx, m.ownersKey(), goredis.Z{Score: now, Member: ownerID}).Err(); err != nil {
		return fmt.Errorf("pgq join: %w", err)
	}
	m.log.Info("consumer joined", "owner_id", ownerID)
	return m.RebalancePartitions(ctx)
}

func (m *Manager) ExitConsumer(ctx context.Context, ownerID string) error {
	if err := m.rdb.ZRem(ctx, m.ownersKey(), ownerID).Err(); err != nil {
		return fmt.Errorf("pgq exit: %w", err)
	}
	m.log.Info("consumer exited", "owner_id", ownerID)
	return m.RebalancePartitions(ctx)
}

func (m *Manager) KeepaliveConsumer(ctx context.Context, ownerID string) error {
	now := float64(time.Now().UnixMilli())
	// XX: refresh only; a keepalive never resurrects an evicted owner.
	added, err := m.rdb.ZAddXX(ctx, m.ownersKey(), goredis.Z{Score: now, Member: ownerID}).Result()
	if err != nil {
		return fmt.Errorf("pgq keepalive: %w", err)
	}
	_ = added
	return nil
}

// RebalancePartitions rewrites the assignment hash from the current owner
// set: owners sorted lexicographically, partitions dealt round-robin. The
// deterministic plan means every node computes the same assignment.
func (m *Manager) RebalancePartitions(ctx context.Context) error {
	owners, err := m.rdb.ZRange(ctx, m.ownersKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("pgq owners: %w", err)
	}

	plan := assignRoundRobin(owners, m.numPartitions)
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, m.assignKey())
	if len(plan) > 0 {
		fields := make(map[string]interface{}, len(plan))
		for p, owner := range plan {
			fields[strconv.Itoa(p)] = owner
		}
		pipe.HSet(ctx, m.assignKey(), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pgq rebalance: %w", err)
	}
	m.log.Info("partitions rebalanced", "owners", len(owners), "partitions", m.numPartitions)
	return nil
}

// CleanupInactiveOwners evicts owners whose last keepalive is older than the
// inactive threshold, then rebalances. Items in an evicted owner's
// partitions stay put and flow to the new owner.
func (m *Manager) CleanupInactiveOwners(ctx context.Context) (int, error) {
	cutoff := float64(time.Now().Add(-m.inactiveThreshold).UnixMilli())
	removed, err := m.rdb.ZRemRangeByScore(ctx, m.ownersKey(), "-inf", fmt.Sprintf("%f", cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("pgq cleanup: %w", err)
	}
	if removed > 0 {
		m.log.Warn("evicted inactive owners", "count", removed)
		if err := m.RebalancePartitions(ctx); err != nil {
			return int(removed), err
		}
	}
	return int(removed), nil
}

// OwnedPartitions returns the sorted partition indexes assigned to ownerID.
func (m *Manager) OwnedPartitions(ctx context.Context, ownerID string) ([]int, error) {
	assign, err := m.rdb.HGetAll(ctx, m.assignKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("pgq assignments: %w", err)
	}
	var owned []int
	for pStr, owner := range assign {
		if owner != ownerID {
			continue
		}
		p, cErr := strconv.Atoi(pStr)
		if cErr != nil {
			continue
		}
		owned = append(owned, p)
	}
	sort.Ints(owned)
	return owned, nil
}

// Stats returns the cumulative delivered/rejected/fetched counters.
func (m *Manager) Stats(ctx context.Context) (map[string]string, error) {
	return m.rdb.HGetAll(ctx, m.statsKey()).Result()
}

// Count returns the global admitted-item counter.
func (m *Manager) Count(ctx context.Context) (int, error) {
	v, err := m.rdb.Get(ctx, m.countKey()).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// assignRoundRobin deals partitions to owners in lexicographic owner order.
// With O owners and N partitions, per-owner counts differ by at most one.
func assignRoundRobin(owners []string, numPartitions int) map[int]string {
	plan := make(map[int]string)
	if len(owners) == 0 {
		return plan
	}
	sorted := append([]string(nil), owners...)
	sort.Strings(sorted)
	for p := 0; p < numPartitions; p++ {
		plan[p] = sorted[p%len(sorted)]
	}
	return plan
}
