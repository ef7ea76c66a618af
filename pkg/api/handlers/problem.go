// Package handlers provides the HTTP handlers for the file service API.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/models"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	problem := &Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// Conflict writes a 409 Conflict problem response.
func Conflict(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusConflict, "Conflict", detail)
}

// ServiceUnavailable writes a 503 problem response.
func ServiceUnavailable(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable", detail)
}

// InternalServerError writes a 500 problem response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// WriteError maps a domain error to its HTTP status and writes the problem
// response. Lock timeouts and storage unavailability are retryable and map
// to 503; everything unrecognized is a 500.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		BadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, models.ErrAlreadyExists):
		Conflict(w, err.Error())
	case errors.Is(err, models.ErrLockTimeout),
		errors.Is(err, models.ErrBlobStoreUnavailable):
		ServiceUnavailable(w, err.Error())
	case errors.Is(err, models.ErrBlobWriteFailed):
		logger.Error("blob write failed; reconciliation advised", "error", err)
		InternalServerError(w, err.Error())
	case errors.Is(err, models.ErrMetaStore):
		InternalServerError(w, "metadata store error")
	default:
		logger.Error("unhandled error", "error", err)
		InternalServerError(w, "internal error")
	}
}

// WriteJSON writes a JSON response with the given status code. Encoding
// happens into a buffer first so an encoding failure can still produce an
// error status instead of a truncated body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, `{"title":"Internal Server Error","status":500}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// decodeJSONBody decodes the request body into dst, writing a 400 problem
// and returning false on malformed input.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}
