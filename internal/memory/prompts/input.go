package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	// Conversation context
	Transcript   string
	GroupName    string
	Scene        string
	Timezone     string
	Participants string

	// Extraction targeting
	TargetUserID   string
	TargetUserName string
	Episode        string
	Subject        string
	Summary        string

	// Profile
	ExistingProfileJSON string
	RecentEpisodesJSON  string

	// Retrieval
	Query          string
	CandidatesJSON string
	ResultsJSON    string
	MaxRefined     int
}
