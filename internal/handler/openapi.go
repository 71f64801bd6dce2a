package handler

import (
	"net/http"

	"github.com/faucetdb/keygate/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI 3.1 document for the key API.
type OpenAPIHandler struct {
	apiKeyHeader string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(apiKeyHeader string) *OpenAPIHandler {
	return &OpenAPIHandler{apiKeyHeader: apiKeyHeader}
}

// ServeSpec returns the spec with the server URL taken from the request.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.GenerateKeysSpec(requestBaseURL(r), h.apiKeyHeader))
}

// requestBaseURL reconstructs the externally visible base URL, honoring
// X-Forwarded-Proto from a reverse proxy.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
