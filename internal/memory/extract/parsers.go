package extract

import (
	"fmt"
	"strings"
	"time"
)

// Parsers for the structured extraction replies. The schemas are strict, but
// the model can still hand back empty strings or junk timestamps; everything
// optional degrades to its zero value instead of failing the stage.

type episodeResult struct {
	Subject string
	Episode string
	Summary string
}

func parseEpisode(obj map[string]any) (episodeResult, error) {
	out := episodeResult{
		Subject: stringField(obj, "subject"),
		Episode: stringField(obj, "episode"),
		Summary: stringField(obj, "summary"),
	}
	if strings.TrimSpace(out.Episode) == "" {
		return episodeResult{}, fmt.Errorf("episode text empty")
	}
	return out, nil
}

type semanticItem struct {
	Content      string
	Evidence     string
	StartTime    *time.Time
	EndTime      *time.Time
	DurationDays *int
}

func parseSemanticItems(obj map[string]any) []semanticItem {
	var out []semanticItem
	for _, raw := range arrayField(obj, "items") {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content := strings.TrimSpace(stringField(entry, "content"))
		if content == "" {
			continue
		}
		item := semanticItem{
			Content:   content,
			Evidence:  stringField(entry, "evidence"),
			StartTime: timeField(entry, "start_time"),
			EndTime:   timeField(entry, "end_time"),
		}
		if days, ok := numberField(entry, "duration_days"); ok && days > 0 {
			d := int(days)
			item.DurationDays = &d
		}
		out = append(out, item)
	}
	return out
}

func parseEventLogFacts(obj map[string]any) []string {
	var out []string
	for _, raw := range arrayField(obj, "atomic_facts") {
		fact, ok := raw.(string)
		if !ok {
			continue
		}
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		out = append(out, fact)
	}
	return out
}

type foresightItem struct {
	Content   string
	Evidence  string
	StartTime *time.Time
	EndTime   *time.Time
}

func parseForesightItems(obj map[string]any) []foresightItem {
	var out []foresightItem
	for _, raw := range arrayField(obj, "items") {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content := strings.TrimSpace(stringField(entry, "content"))
		if content == "" {
			continue
		}
		out = append(out, foresightItem{
			Content:   content,
			Evidence:  stringField(entry, "evidence"),
			StartTime: timeField(entry, "start_time"),
			EndTime:   timeField(entry, "end_time"),
		})
	}
	return out
}

type profileResult struct {
	Scenario  string
	Summary   string
	Interests []string
	Skills    []string
	Traits    []string
}

func parseProfile(obj map[string]any) (profileResult, error) {
	out := profileResult{
		Scenario:  stringField(obj, "scenario"),
		Summary:   stringField(obj, "summary"),
		Interests: stringsField(obj, "interests"),
		Skills:    stringsField(obj, "skills"),
		Traits:    stringsField(obj, "traits"),
	}
	if strings.TrimSpace(out.Summary) == "" {
		return profileResult{}, fmt.Errorf("profile summary empty")
	}
	return out, nil
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func arrayField(obj map[string]any, key string) []any {
	if v, ok := obj[key].([]any); ok {
		return v
	}
	return nil
}

func stringsField(obj map[string]any, key string) []string {
	var out []string
	for _, raw := range arrayField(obj, key) {
		if s, ok := raw.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func numberField(obj map[string]any, key string) (float64, bool) {
	switch v := obj[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// timeField accepts RFC3339 or date-only strings; anything else is nil.
func timeField(obj map[string]any, key string) *time.Time {
	raw := strings.TrimSpace(stringField(obj, key))
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
