package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from model")

// APIError is a non-2xx answer from an LLM provider.
type APIError struct {
	Provider   string
	StatusCode int
	// Status is the provider's symbolic code, e.g. RESOURCE_EXHAUSTED.
	Status  string
	Message string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Status != "" {
		return fmt.Sprintf("%s api error (%d %s): %s", e.Provider, e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.StatusCode, msg)
}

// IsRateLimited reports whether err is a provider quota or rate-limit rejection.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			strings.EqualFold(apiErr.Status, "RESOURCE_EXHAUSTED")
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}
