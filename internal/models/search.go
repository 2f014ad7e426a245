package models

// QueryResult is one retrieved verse
type QueryResult struct {
	Reference string  `json:"reference"`
	Text      string  `json:"text"`
	Distance  float64 `json:"distance"`

	// Degraded marks the placeholder result returned while search is unavailable
	Degraded bool `json:"-"`
}

// SearchRequest is the request for semantic search. K is optional; when
// omitted the configured default applies.
type SearchRequest struct {
	Question string `json:"question"`
	K        *int   `json:"k,omitempty"`
}

// SearchResponse is the response for semantic search
type SearchResponse struct {
	Results  []QueryResult `json:"results"`
	Degraded bool          `json:"degraded,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReadinessResponse reports whether the corpus is loaded and searchable
type ReadinessResponse struct {
	Status     string `json:"status"`
	Records    int    `json:"records"`
	Dimensions int    `json:"dimensions"`
	Source     string `json:"source,omitempty"`
	LoadedAt   string `json:"loaded_at,omitempty"`
}
