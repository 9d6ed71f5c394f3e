package prompts

type PromptName string

const (
	// Ingestion
	PromptBoundaryDecision PromptName = "boundary_decision"

	// Extraction
	PromptEpisodeExtract  PromptName = "episode_extract"
	PromptSemanticExtract PromptName = "semantic_extract"
	PromptEventLogExtract PromptName = "event_log_extract"
	PromptForesightExtract PromptName = "foresight_extract"
	PromptProfileUpdate   PromptName = "profile_update"

	// Retrieval
	PromptRetrievalRerank   PromptName = "retrieval_rerank"
	PromptSufficiencyJudge  PromptName = "sufficiency_judge"
)
