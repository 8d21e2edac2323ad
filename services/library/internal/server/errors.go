package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"dorian/internal/util"
	"dorian/pkg/ai"
	"dorian/pkg/extract"
	"dorian/services/library/internal/app"
	"dorian/services/library/internal/assistant"
)

const msgAccessDenied = "Access denied. Only authorized users can access this application."

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

type dispatchErrorResponse struct {
	errorResponse
	Details dispatchDetails `json:"details"`
}

type dispatchDetails struct {
	Question string `json:"question"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeAppError maps library and assistant errors to HTTP responses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *app.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, app.ErrNoFile):
		writeError(w, http.StatusNotFound, "Book has no associated file")
	case errors.Is(err, app.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, app.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, "Invalid file type")
	case errors.Is(err, app.ErrNoObjectStore):
		writeError(w, http.StatusServiceUnavailable, "file storage not configured")
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported file format")
	case errors.Is(err, extract.ErrNoText):
		writeError(w, http.StatusUnprocessableEntity, "No text could be extracted")
	case errors.Is(err, assistant.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question is required")
	case errors.Is(err, assistant.ErrEmptyAudio):
		writeError(w, http.StatusBadRequest, "audio is required")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		util.LoggerFromContext(r.Context()).Info("request cancelled", "path", r.URL.Path)
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeDispatchError renders a failed chat dispatch with the question echoed back.
func writeDispatchError(w http.ResponseWriter, r *http.Request, derr *assistant.DispatchError) {
	status := http.StatusBadGateway
	msg := "assistant request failed"
	if ai.IsRateLimited(derr.Err) {
		status = http.StatusTooManyRequests
		msg = "assistant rate limited"
	}
	util.LoggerFromContext(r.Context()).Warn("assistant dispatch failed", "status", status, "err", derr.Err)
	writeJSON(w, status, dispatchErrorResponse{
		errorResponse: errorResponse{
			Error:     msg + ": " + derr.Err.Error(),
			Code:      errorCodeFor(status, msg),
			RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
		},
		Details: dispatchDetails{Question: derr.Question},
	})
}

func errorCodeFor(status int, msg string) string {
	normalized := strings.ToLower(strings.TrimSpace(msg))
	switch normalized {
	case "unauthorized", "invalid access token":
		return "AUTH_INVALID_TOKEN"
	case strings.ToLower(msgAccessDenied):
		return "AUTH_FORBIDDEN"
	case "book not found":
		return "BOOK_NOT_FOUND"
	case "book has no associated file":
		return "BOOK_FILE_MISSING"
	case "file not found":
		return "FILE_NOT_FOUND"
	case "invalid file type":
		return "FILE_INVALID_TYPE"
	case "unsupported file format":
		return "CONTENT_UNSUPPORTED_FORMAT"
	case "no text could be extracted":
		return "CONTENT_EMPTY"
	case "file is required (field: file)", "audio is required (field: audio)", "invalid multipart form":
		return "UPLOAD_INVALID_FORM"
	case "file too large", "audio too large":
		return "UPLOAD_TOO_LARGE"
	case "question is required", "audio is required":
		return "ASSISTANT_INVALID_REQUEST"
	case "assistant rate limited":
		return "ASSISTANT_RATE_LIMITED"
	case "assistant request failed", "voice reply failed":
		return "ASSISTANT_UPSTREAM_FAILED"
	case "voice assistant not configured", "file storage not configured", "auth not configured":
		return "SYSTEM_NOT_CONFIGURED"
	case "too many requests":
		return "RATE_LIMITED"
	case "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case "request timed out":
		return "SYSTEM_TIMEOUT"
	case "internal error":
		return "SYSTEM_INTERNAL_ERROR"
	}

	switch status {
	case http.StatusBadRequest:
		return "LIBRARY_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "AUTH_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusInternalServerError:
		return "SYSTEM_INTERNAL_ERROR"
	default:
		return "REQUEST_ERROR"
	}
}
