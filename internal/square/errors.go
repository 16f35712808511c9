package square

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorDetail is one structured error entry from a Square response body.
type ErrorDetail struct {
	Category string `json:"category,omitempty"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Field    string `json:"field,omitempty"`
}

// APIError is a non-2xx response from Square, carrying the structured error
// detail for diagnostics and for the tool responses.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, d := range e.Errors {
			if d.Detail != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", d.Code, d.Detail))
			} else {
				parts = append(parts, d.Code)
			}
		}
		return fmt.Sprintf("square API %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("square API %d: %s", e.StatusCode, body)
}

// ErrorDetails extracts Square's structured error list from err when present,
// so handlers can pass it through to the agent.
func ErrorDetails(err error) []ErrorDetail {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Errors
	}
	return nil
}
