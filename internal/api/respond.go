// Package api implements the trust core's HTTP surface (spec §6):
// agents, events, capabilities, reputation, and health, grounded on
// the teacher's pkg/health/server.go (http.NewServeMux, explicit
// Start/Stop) and the pack's own api.Server/writeJSON shape (e.g.
// pcbo/internal/api).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/agenttrust/trustcore/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error   string                 `json:"error"`
	Kind    string                 `json:"kind"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := httpStatus(kind)

	body := errorBody{Error: err.Error(), Kind: string(kind)}
	if e, ok := err.(*errs.Error); ok {
		body.Error = e.Message
		body.Details = e.Details
	}
	writeJSON(w, status, body)
}

func httpStatus(kind errs.Kind) int {
	switch kind {
	case errs.Validation, errs.ChainBroken, errs.HashMismatch:
		return http.StatusBadRequest
	case errs.Unauthorized, errs.SignatureInvalid:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errs.New(errs.Validation, "request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.Validation, "malformed request body", err)
	}
	return nil
}
