package models

// RunResponse is the response for POST /api/v1/runs.
type RunResponse struct {
	// ID identifies the run for status, export and ask requests.
	ID string `json:"id"`

	// Status is "processing" on acceptance.
	Status string `json:"status"`

	// Total is the number of students in the roster.
	Total int `json:"total"`

	// Error is populated only when the run was rejected.
	Error *ErrorDetail `json:"error,omitempty"`
}

// RunStatusResponse is the response for GET /api/v1/runs/:id.
type RunStatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"` // "processing", "completed", "partial", "failed"
	Completed int    `json:"completed"`
	Total     int    `json:"total"`

	// Rows is the number of result rows aggregated so far.
	Rows int `json:"rows"`

	// Failures lists students that were skipped, without page snapshots.
	Failures []FetchFailure `json:"failures,omitempty"`
}

// LookupResponse is the response for POST /api/v1/lookup.
type LookupResponse struct {
	Success     bool        `json:"success"`
	StudentName string      `json:"student_name,omitempty"`
	Rows        []ResultRow `json:"rows,omitempty"`

	// Timing provides duration breakdowns for the lookup.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// AskResponse is the response for the question-answering endpoints.
type AskResponse struct {
	Success bool `json:"success"`

	// Answer is the LLM's reply, verbatim.
	Answer string `json:"answer,omitempty"`

	// SampleRows is how many table rows were shown to the model.
	SampleRows int `json:"sample_rows,omitempty"`

	// Usage reports the provider's token accounting when available.
	Usage *LLMUsage `json:"usage,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// LLMUsage mirrors the provider's token usage block.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TimingInfo reports how long a lookup took.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// LookupMs is the time spent driving the portal form and parsing the
	// response, i.e. everything but request handling overhead.
	LookupMs int64 `json:"lookup_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
