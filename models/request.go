package models

// LookupRequest is the payload for POST /api/v1/lookup: a synchronous
// single-student lookup, the API equivalent of the manual-entry path.
type LookupRequest struct {
	// RegisterNumber is the student's registration number. Required.
	RegisterNumber string `json:"register_number" binding:"required"`

	// DateOfBirth is the student's date of birth in DD/MM/YYYY. Required.
	DateOfBirth string `json:"date_of_birth" binding:"required"`

	// Timeout is the maximum duration in seconds for the lookup.
	// Default: the configured portal request timeout. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`
}

// RunOptions are the optional form fields accepted alongside the roster
// upload on POST /api/v1/runs.
type RunOptions struct {
	// DelayMs overrides the pause between consecutive lookups.
	DelayMs int `form:"delay_ms" binding:"omitempty,min=0,max=10000"`

	// Timeout overrides the per-student lookup deadline, in seconds.
	Timeout int `form:"timeout" binding:"omitempty,min=1,max=120"`
}

// AskRequest is the payload for the question-answering endpoints.
// The LLM credential is bring-your-own-key: it rides on the request and is
// never persisted.
type AskRequest struct {
	// Question is the free-text question about the result data. Required.
	Question string `json:"question" form:"question" binding:"required"`

	// LLMAPIKey authenticates against the LLM provider. Required.
	LLMAPIKey string `json:"llm_api_key" form:"llm_api_key" binding:"required"`

	// LLMModel overrides the configured default model.
	LLMModel string `json:"llm_model,omitempty" form:"llm_model"`

	// LLMBaseURL overrides the configured OpenAI-compatible endpoint.
	LLMBaseURL string `json:"llm_base_url,omitempty" form:"llm_base_url"`
}
