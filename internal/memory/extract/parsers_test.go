package extract

import (
	"testing"
	"time"
)

func TestParseEpisode(t *testing.T) {
	t.Parallel()

	res, err := parseEpisode(map[string]any{
		"subject": "trip planning",
		"episode": "They planned a trip to Kyoto.",
		"summary": "Trip planned.",
	})
	if err != nil {
		t.Fatalf("parseEpisode: %v", err)
	}
	if res.Subject != "trip planning" || res.Episode == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := parseEpisode(map[string]any{"subject": "x", "episode": "  ", "summary": ""}); err == nil {
		t.Fatal("expected error for empty episode text")
	}
}

func TestParseSemanticItems(t *testing.T) {
	t.Parallel()

	items := parseSemanticItems(map[string]any{
		"items": []any{
			map[string]any{
				"content":       "Likes espresso",
				"evidence":      "ordered one",
				"start_time":    "2026-05-01T00:00:00Z",
				"end_time":      "",
				"duration_days": float64(0),
			},
			map[string]any{"content": "   ", "evidence": "", "start_time": "", "end_time": "", "duration_days": float64(0)},
			"not an object",
		},
	})
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].StartTime == nil || !items[0].StartTime.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start time = %v", items[0].StartTime)
	}
	if items[0].EndTime != nil || items[0].DurationDays != nil {
		t.Fatalf("empty optionals not nil: %+v", items[0])
	}
}

func TestParseEventLogFacts(t *testing.T) {
	t.Parallel()

	facts := parseEventLogFacts(map[string]any{
		"atomic_facts": []any{"woke up", "", "made coffee", 42},
	})
	if len(facts) != 2 || facts[0] != "woke up" || facts[1] != "made coffee" {
		t.Fatalf("facts = %v", facts)
	}
}

func TestParseProfile(t *testing.T) {
	t.Parallel()

	res, err := parseProfile(map[string]any{
		"scenario":  "personal assistant",
		"summary":   "An early riser.",
		"interests": []any{"coffee", ""},
		"skills":    []any{},
		"traits":    []any{"punctual"},
	})
	if err != nil {
		t.Fatalf("parseProfile: %v", err)
	}
	if len(res.Interests) != 1 || res.Interests[0] != "coffee" {
		t.Fatalf("interests = %v", res.Interests)
	}

	if _, err := parseProfile(map[string]any{"scenario": "", "summary": "", "interests": []any{}, "skills": []any{}, "traits": []any{}}); err == nil {
		t.Fatal("expected error for empty summary")
	}
}

func TestTimeFieldLayouts(t *testing.T) {
	t.Parallel()

	if got := timeField(map[string]any{"t": "2026-05-02"}, "t"); got == nil {
		t.Fatal("date-only layout not accepted")
	}
	if got := timeField(map[string]any{"t": "soon"}, "t"); got != nil {
		t.Fatalf("junk timestamp parsed: %v", got)
	}
}

func TestStatusMapPurge(t *testing.T) {
	t.Parallel()

	s := newStatusMap(0)
	done := mustUUID(t, "11111111-1111-1111-1111-111111111111")
	inflight := mustUUID(t, "22222222-2222-2222-2222-222222222222")
	s.set(done, StatusCompleted)
	s.set(inflight, StatusProcessing)

	time.Sleep(5 * time.Millisecond)
	if purged := s.purgeExpired(); purged != 1 {
		t.Fatalf("purged %d, want 1", purged)
	}
	if _, ok := s.get(done); ok {
		t.Fatal("terminal entry survived purge")
	}
	if _, ok := s.get(inflight); !ok {
		t.Fatal("in-flight entry was purged")
	}
}
