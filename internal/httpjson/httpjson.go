// Package httpjson is the shared JSON response helper used by module
// route handlers.
package httpjson

import (
	"encoding/json"
	"net/http"

	"github.com/homepilot/control-plane/internal/errs"
)

// Write encodes v as the JSON response body with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps an error to {error: ...}, honoring a ServiceError's
// HTTP status and defaulting to 400.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if se, ok := err.(*errs.ServiceError); ok && se.HTTPStatus != 0 {
		status = se.HTTPStatus
	}
	Write(w, status, map[string]string{"error": err.Error()})
}
