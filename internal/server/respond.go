// Package server exposes the session orchestration engine over HTTP.
package server

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/conductor/pkg/models"
)

// errorBody is the uniform error envelope: a machine-readable kind and
// a human-readable detail.
type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// listBody is the uniform shape of every paginated listing.
type listBody struct {
	Items      any               `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	status := models.HTTPStatus(kind)
	if kind == models.KindInternal {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, errorBody{Error: errorInfo{
		Kind:   string(kind),
		Detail: models.DetailOf(err),
	}})
}

// decodeBody unmarshals a JSON request body. Malformed JSON is a 400,
// distinct from the 422 used for well-formed bodies with bad values.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorInfo{
			Kind:   "malformed_body",
			Detail: "request body is not valid JSON",
		}})
		return false
	}
	return true
}
