package models

// Temperature bounds and default for generation requests.
const (
	TemperatureMin     = 0.0
	TemperatureMax     = 2.0
	TemperatureDefault = 0.7
)

// GenerationRequest is the incoming body for POST /api/generate. One
// prompt is fanned out to every listed model. Immutable once validated.
type GenerationRequest struct {
	Prompt string   `json:"prompt"`
	Models []string `json:"models"`
	// Temperature accepts a number or a numeric string; zero-value means
	// "not provided" and resolves to TemperatureDefault.
	Temperature any `json:"temperature,omitempty"`
}

// ModelInfo is one entry in the public models listing.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ErrorBody mirrors the gateway's JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error type, a human message, and optional
// per-field validation details.
type ErrorDetail struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}
