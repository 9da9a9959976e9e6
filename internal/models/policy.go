package models

// PolicyItem is one policy announcement extracted from a provider answer.
type PolicyItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Date       string `json:"date"`
	Department string `json:"department,omitempty"`
	Category   string `json:"category,omitempty"`
}

// GroundingSource is a web citation returned alongside the generated text.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// SearchResponse bundles the parsed policies, their citations and the raw answer.
type SearchResponse struct {
	Policies []PolicyItem      `json:"policies"`
	Sources  []GroundingSource `json:"sources"`
	RawText  string            `json:"rawText"`
}

// LoadingStatus enumerates the visual states of a date lookup.
type LoadingStatus string

const (
	StatusIdle    LoadingStatus = "idle"
	StatusLoading LoadingStatus = "loading"
	StatusSuccess LoadingStatus = "success"
	StatusError   LoadingStatus = "error"
)
