package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/keygate/internal/apikey"
	"github.com/faucetdb/keygate/internal/model"
	"github.com/faucetdb/keygate/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// KeyHandler serves the API key management endpoints.
type KeyHandler struct {
	keys *service.KeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys *service.KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// List returns a page of keys, newest first.
// GET /keys?limit=&offset=
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(queryInt(r, "limit", defaultListLimit), 1, maxListLimit)
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	keys, total, err := h.keys.List(r.Context(), limit, offset)
	if err != nil {
		writeKeyError(w, err, "Failed to list API keys")
		return
	}

	writeJSON(w, http.StatusOK, model.KeyListResponse{
		Resource: keys,
		Meta: model.ResponseMeta{
			Count:  len(keys),
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// Create validates the request body and stores a new key.
// POST /keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := readInput(w, r)
	if !ok {
		return
	}

	key, err := h.keys.Create(r.Context(), input)
	if err != nil {
		writeKeyError(w, err, "Failed to create API key")
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// Get returns a single key.
// GET /keys/{keyId}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Get(r.Context(), chi.URLParam(r, "keyId"))
	if err != nil {
		writeKeyError(w, err, "Failed to get API key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// Update applies the fields present in the body to a key. A field sent as
// null is cleared; a field left out is unchanged.
// PATCH /keys/{keyId}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	input, ok := readInput(w, r)
	if !ok {
		return
	}

	key, err := h.keys.Update(r.Context(), chi.URLParam(r, "keyId"), input)
	if err != nil {
		writeKeyError(w, err, "Failed to update API key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// Delete removes a key.
// DELETE /keys/{keyId}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.Delete(r.Context(), chi.URLParam(r, "keyId")); err != nil {
		writeKeyError(w, err, "Failed to delete API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readInput decodes the body into an untyped map so that a field sent as
// null stays distinct from one that was omitted.
func readInput(w http.ResponseWriter, r *http.Request) (apikey.Input, bool) {
	var body map[string]any
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	if body == nil {
		body = map[string]any{}
	}
	return apikey.Input(body), true
}
