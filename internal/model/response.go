package model

// KeyListResponse is the envelope for the key list endpoint, wrapping results
// in a "resource" array with pagination metadata.
type KeyListResponse struct {
	Resource []Key        `json:"resource"`
	Meta     ResponseMeta `json:"meta"`
}

// ResponseMeta contains pagination information for list responses.
type ResponseMeta struct {
	Count  int   `json:"count"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
// Type carries a machine-readable code such as "invalid_api_key_actions".
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Type    string                 `json:"type,omitempty"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
