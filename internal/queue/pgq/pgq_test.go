package pgq

import (
	"fmt"
	"testing"
	"time"
)

func TestPartitionForIsStable(t *testing.T) {
	t.Parallel()

	keys := []string{"group-a", "group-b", "chat:42", "", "ユーザー"}
	for _, key := range keys {
		first := PartitionFor(key, 50)
		for i := 0; i < 10; i++ {
			if got := PartitionFor(key, 50); got != first {
				t.Fatalf("PartitionFor(%q) unstable: %d then %d", key, first, got)
			}
		}
		if first < 0 || first >= 50 {
			t.Fatalf("PartitionFor(%q) = %d out of range", key, first)
		}
	}
}

func TestPartitionForDistribution(t *testing.T) {
	t.Parallel()

	const n = 50
	const keys = 1000
	counts := make([]int, n)
	for i := 0; i < keys; i++ {
		counts[PartitionFor(fmt.Sprintf("group-%d", i), n)]++
	}

	min := keys / n / 10 // 10% of even share
	max := keys / n * 5  // 5x even share
	for p, c := range counts {
		if c < min || c > max {
			t.Fatalf("partition %d got %d keys, want within [%d, %d]", p, c, min, max)
		}
	}
}

func TestAssignRoundRobinFairness(t *testing.T) {
	t.Parallel()

	owners := []string{"owner-3", "owner-1", "owner-7", "owner-5", "owner-2", "owner-6", "owner-4"}
	plan := assignRoundRobin(owners, 50)

	if len(plan) != 50 {
		t.Fatalf("expected all 50 partitions assigned, got %d", len(plan))
	}
	perOwner := make(map[string]int)
	for p := 0; p < 50; p++ {
		owner, ok := plan[p]
		if !ok || owner == "" {
			t.Fatalf("partition %d unassigned", p)
		}
		perOwner[owner]++
	}
	if len(perOwner) != len(owners) {
		t.Fatalf("expected %d owners in plan, got %d", len(owners), len(perOwner))
	}

	min, max := 50, 0
	for _, c := range perOwner {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if max-min > 1 {
		t.Fatalf("unfair plan: max %d, min %d", max, min)
	}
}

func TestAssignRoundRobinDeterministic(t *testing.T) {
	t.Parallel()

	a := assignRoundRobin([]string{"b", "a", "c"}, 10)
	b := assignRoundRobin([]string{"c", "b", "a"}, 10)
	for p := 0; p < 10; p++ {
		if a[p] != b[p] {
			t.Fatalf("partition %d assigned differently for same owner set: %q vs %q", p, a[p], b[p])
		}
	}
}

func TestAssignRoundRobinNoOwners(t *testing.T) {
	t.Parallel()

	if plan := assignRoundRobin(nil, 50); len(plan) != 0 {
		t.Fatalf("expected empty plan without owners, got %d entries", len(plan))
	}
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	item := QueueItem{
		GroupKey:  "group-9",
		Kind:      "memorize",
		EnqueueMS: time.Now().UnixMilli(),
	}

	for _, name := range []string{"json", "gob"} {
		codec, err := CodecByName(name)
		if err != nil {
			t.Fatalf("CodecByName(%q): %v", name, err)
		}
		raw, err := codec.Encode(item)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		got, err := codec.Decode(raw)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if got.GroupKey != item.GroupKey || got.Kind != item.Kind || got.EnqueueMS != item.EnqueueMS {
			t.Fatalf("%s round trip mismatch: %+v vs %+v", name, got, item)
		}
	}

	if _, err := CodecByName("bson"); err == nil {
		t.Fatal("expected error for unsupported codec name")
	}
}
