package qdrant

import (
	"fmt"
	"strings"
)

// The retrieval engine emits Pinecone-style filters: per-field maps of
// operators ($eq, $gte, $lte, $gt, $lt) or bare scalar equality. This
// translates them into a qdrant "must" condition list. Anything outside that
// shape is rejected rather than silently dropped.

func qdrantMatchCondition(field string, value any) map[string]any {
	return map[string]any{
		"key":   field,
		"match": map[string]any{"value": value},
	}
}

func qdrantRangeCondition(field string, bounds map[string]any) map[string]any {
	return map[string]any{
		"key":   field,
		"range": bounds,
	}
}

func translateFilterMap(filter map[string]any) ([]any, error) {
	must := make([]any, 0, len(filter))
	for field, raw := range filter {
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, opErr("filter", OperationErrorUnsupportedFilter, "empty filter field", nil)
		}

		ops, ok := raw.(map[string]any)
		if !ok {
			// Bare scalar means equality.
			must = append(must, qdrantMatchCondition(field, raw))
			continue
		}

		bounds := map[string]any{}
		for op, val := range ops {
			switch op {
			case "$eq":
				must = append(must, qdrantMatchCondition(field, val))
			case "$gte":
				bounds["gte"] = val
			case "$lte":
				bounds["lte"] = val
			case "$gt":
				bounds["gt"] = val
			case "$lt":
				bounds["lt"] = val
			default:
				return nil, opErr("filter", OperationErrorUnsupportedFilter,
					fmt.Sprintf("unsupported filter operator %q on field %q", op, field), nil)
			}
		}
		if len(bounds) > 0 {
			must = append(must, qdrantRangeCondition(field, bounds))
		}
	}
	return must, nil
}
