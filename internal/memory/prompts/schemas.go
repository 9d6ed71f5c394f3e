package prompts

// OpenAI strict JSON schema rules: object schemas must set
// additionalProperties false and require every listed property. Optional
// semantics are expressed as empty strings / zero values and enforced in
// the parsers, not in the schema.

func EnumSchema(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func StringArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func BoundaryDecisionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"decision":  EnumSchema("boundary", "continue", "wait"),
			"end_index": map[string]any{"type": "integer"},
			"subject":   map[string]any{"type": "string"},
			"summary":   map[string]any{"type": "string"},
		},
		"required":             []string{"decision", "end_index", "subject", "summary"},
		"additionalProperties": false,
	}
}

func EpisodeExtractSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{"type": "string"},
			"episode": map[string]any{"type": "string"},
			"summary": map[string]any{"type": "string"},
		},
		"required":             []string{"subject", "episode", "summary"},
		"additionalProperties": false,
	}
}

func semanticItemSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content":       map[string]any{"type": "string"},
			"evidence":      map[string]any{"type": "string"},
			"start_time":    map[string]any{"type": "string"},
			"end_time":      map[string]any{"type": "string"},
			"duration_days": map[string]any{"type": "integer"},
		},
		"required":             []string{"content", "evidence", "start_time", "end_time", "duration_days"},
		"additionalProperties": false,
	}
}

func SemanticExtractSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"type": "array", "items": semanticItemSchema()},
		},
		"required":             []string{"items"},
		"additionalProperties": false,
	}
}

func EventLogExtractSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"atomic_facts": StringArraySchema(),
		},
		"required":             []string{"atomic_facts"},
		"additionalProperties": false,
	}
}

func foresightItemSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content":    map[string]any{"type": "string"},
			"evidence":   map[string]any{"type": "string"},
			"start_time": map[string]any{"type": "string"},
			"end_time":   map[string]any{"type": "string"},
		},
		"required":             []string{"content", "evidence", "start_time", "end_time"},
		"additionalProperties": false,
	}
}

func ForesightExtractSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{"type": "array", "items": foresightItemSchema()},
		},
		"required":             []string{"items"},
		"additionalProperties": false,
	}
}

func ProfileUpdateSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scenario":  map[string]any{"type": "string"},
			"summary":   map[string]any{"type": "string"},
			"interests": StringArraySchema(),
			"skills":    StringArraySchema(),
			"traits":    StringArraySchema(),
		},
		"required":             []string{"scenario", "summary", "interests", "skills", "traits"},
		"additionalProperties": false,
	}
}

func RetrievalRerankSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ranked_event_ids": StringArraySchema(),
		},
		"required":             []string{"ranked_event_ids"},
		"additionalProperties": false,
	}
}

func SufficiencyJudgeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_sufficient":   map[string]any{"type": "boolean"},
			"reasoning":       map[string]any{"type": "string"},
			"refined_queries": StringArraySchema(),
		},
		"required":             []string{"is_sufficient", "reasoning", "refined_queries"},
		"additionalProperties": false,
	}
}
