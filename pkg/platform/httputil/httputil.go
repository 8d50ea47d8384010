// Package httputil centralizes JSON response writing and the mapping from the
// coded error taxonomy to HTTP status codes. Handlers never set status codes
// for errors themselves; they pass the service error straight through.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	dErrors "assessor/pkg/domain-errors"
)

// statusByCode keeps the taxonomy-to-transport mapping in one place.
// not_found and illegal_transition stay distinct: an absent resource and a
// resource in the wrong state imply different client remediation.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeNotFound:            http.StatusNotFound,
	dErrors.CodeInvalidCursor:       http.StatusBadRequest,
	dErrors.CodeIllegalTransition:   http.StatusConflict,
	dErrors.CodeExportRegionNotSet:  http.StatusPreconditionFailed,
	dErrors.CodeUpstreamUnavailable: http.StatusServiceUnavailable,
	dErrors.CodeConflict:            http.StatusConflict,
	dErrors.CodeBadRequest:          http.StatusBadRequest,
	dErrors.CodeUnauthorized:        http.StatusUnauthorized,
	dErrors.CodeInternal:            http.StatusInternalServerError,
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err's code to an HTTP status and writes the error body.
// Internal errors omit the description so store details never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.ErrorDescription = de.Message
		}
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON request body into T, rejecting unknown fields. On
// failure it writes a bad_request response and returns ok=false.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("request body rejected")
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON for this operation"))
		return req, false
	}
	return req, true
}
