package prompts

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Prompts []catalogEntry `yaml:"prompts"`
}

type catalogEntry struct {
	Name    string `yaml:"name"`
	Version int    `yaml:"version"`
	Schema  string `yaml:"schema"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

// schemaFuncs binds each catalog entry's schema name to its Go constructor.
var schemaFuncs = map[string]func() map[string]any{
	"boundary_decision": BoundaryDecisionSchema,
	"episode_extract":   EpisodeExtractSchema,
	"semantic_extract":  SemanticExtractSchema,
	"event_log_extract": EventLogExtractSchema,
	"foresight_extract": ForesightExtractSchema,
	"profile_update":    ProfileUpdateSchema,
	"retrieval_rerank":  RetrievalRerankSchema,
	"sufficiency_judge": SufficiencyJudgeSchema,
}

var validatorsByName = map[PromptName][]Validator{
	PromptBoundaryDecision: {RequireNonEmpty("Transcript", func(in Input) string { return in.Transcript })},
	PromptEpisodeExtract:   {RequireNonEmpty("Transcript", func(in Input) string { return in.Transcript })},
	PromptSemanticExtract:  {RequireNonEmpty("Episode", func(in Input) string { return in.Episode })},
	PromptEventLogExtract:  {RequireNonEmpty("Episode", func(in Input) string { return in.Episode })},
	PromptForesightExtract: {RequireNonEmpty("Episode", func(in Input) string { return in.Episode })},
	PromptProfileUpdate:    {RequireNonEmpty("TargetUserID", func(in Input) string { return in.TargetUserID })},
	PromptRetrievalRerank:  {RequireNonEmpty("Query", func(in Input) string { return in.Query })},
	PromptSufficiencyJudge: {RequireNonEmpty("Query", func(in Input) string { return in.Query })},
}

var registerOnce sync.Once

// RegisterAll loads the embedded catalog into the registry. Safe to call
// more than once; app wiring calls it at startup.
func RegisterAll() {
	registerOnce.Do(func() {
		if err := loadCatalog(catalogYAML); err != nil {
			panic(err)
		}
	})
}

func loadCatalog(raw []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse prompt catalog: %w", err)
	}
	if len(file.Prompts) == 0 {
		return fmt.Errorf("prompt catalog is empty")
	}
	for _, entry := range file.Prompts {
		schemaFn, ok := schemaFuncs[entry.Schema]
		if !ok {
			return fmt.Errorf("prompt %s references unknown schema %q", entry.Name, entry.Schema)
		}
		t, err := MakeTemplate(Spec{
			Name:       PromptName(entry.Name),
			Version:    entry.Version,
			SchemaName: entry.Schema,
			Schema:     schemaFn,
			System:     entry.System,
			User:       entry.User,
			Validators: validatorsByName[PromptName(entry.Name)],
		})
		if err != nil {
			return err
		}
		Register(t)
	}
	return nil
}
