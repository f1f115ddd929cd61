package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/domain"
)

// errorCode is the machine-readable error identifier in responses.
type errorCode string

const (
	codeBadRequest          errorCode = "bad_request"
	codeValidationFailed    errorCode = "validation_failed"
	codeProfileNotFound     errorCode = "profile_not_found"
	codeDropNotFound        errorCode = "drop_not_found"
	codeUpstreamUnavailable errorCode = "upstream_unavailable"
	codeStorageUnavailable  errorCode = "storage_unavailable"
	codeInternalError       errorCode = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
	Stage   string    `json:"stage,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrProfileNotFound,
		domain.ErrDropNotFound,
		domain.ErrUpstreamUnavailable,
		domain.ErrEmbeddingUnavailable,
		domain.ErrPersistence,
		domain.ErrNotEnoughMatches,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// stageErrorHandler attaches the failing pipeline stage to the body of any
// sentinel the chain maps. It runs first, wrapping the rest of the chain.
func stageErrorHandler(inner []errorHandler) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		stage := domain.StageOf(err)
		if stage == "unknown" {
			return false
		}
		sw := &stageWriter{ResponseWriter: w, stage: stage}
		for _, h := range inner {
			if h(sw, err, msg) {
				return true
			}
		}
		return false
	}
}

// stageWriter rewrites an ErrorResponse body to include the stage field.
type stageWriter struct {
	http.ResponseWriter
	stage  string
	status int
}

func (w *stageWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *stageWriter) Write(b []byte) (int, error) {
	var resp ErrorResponse
	if err := json.Unmarshal(b, &resp); err == nil && resp.Code != "" {
		resp.Stage = w.stage
		if out, err := json.Marshal(resp); err == nil {
			out = append(out, '\n')
			return w.ResponseWriter.Write(out)
		}
	}
	return w.ResponseWriter.Write(b)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
