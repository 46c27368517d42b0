// Package httpapi is a thin chi-based HTTP surface: it exposes the
// orchestrator's public job commands over REST and fans out pipeline events
// over an SSE stream, as an external client shell around the pipeline
// package rather than a core dependency of it.
package httpapi

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/logger"
)

// base supplies the JSON/Error response helpers every handler group embeds,
// shared by every handler group.
type base struct {
	logger.Log
}

// JSON marshals v as the response body, matching the status code already
// stashed on the request context via render.StatusCtxKey (see Created/OK).
func (b *base) JSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		b.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status, ok := r.Context().Value(render.StatusCtxKey).(int); ok {
		w.WriteHeader(status)
	}
	_, _ = w.Write(buf.Bytes())
}

// errorDocument is the wire shape of every error response: a small flat
// JSON object, the same texture as an event.
type errorDocument struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error writes err as a standard error document, inferring the HTTP status
// from its gerror.Code when present and logging at Warn level.
func (b *base) Error(w http.ResponseWriter, r *http.Request, err error) {
	b.Warnf("error handling %s %s: %s", r.Method, r.URL.Path, err)
	status, code := statusForError(err)
	render.Status(r, status)
	b.JSON(w, r, errorDocument{Code: code, Message: err.Error()})
}

// statusForError maps the gerror code taxonomy onto HTTP status codes.
func statusForError(err error) (int, string) {
	var gerr gerror.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, sql.ErrNoRows) {
			return http.StatusNotFound, "not_found"
		}
		return http.StatusInternalServerError, "internal_error"
	}
	switch gerr.Code() {
	case gerror.CodeNotFound:
		return http.StatusNotFound, string(gerr.Code())
	case gerror.CodeUnknownProcessor, gerror.CodeDuplicateName:
		return http.StatusNotFound, string(gerr.Code())
	case gerror.CodeInvalidInput, gerror.CodeStepNotAwaitingInput, gerror.CodePreconditionViolated:
		return http.StatusBadRequest, string(gerr.Code())
	case gerror.CodeRevertConflict:
		return http.StatusConflict, string(gerr.Code())
	default:
		return http.StatusInternalServerError, string(gerr.Code())
	}
}

// OK writes v with a 200 status.
func (b *base) OK(w http.ResponseWriter, r *http.Request, v interface{}) {
	render.Status(r, http.StatusOK)
	b.JSON(w, r, v)
}

// Created writes v with a 201 status.
func (b *base) Created(w http.ResponseWriter, r *http.Request, v interface{}) {
	render.Status(r, http.StatusCreated)
	b.JSON(w, r, v)
}
