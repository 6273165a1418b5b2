package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/naveenspark/twofold/pkg/domain"
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps backend errors onto domain sentinels so callers can use
// errors.Is without knowing the wire format.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Code == "user_already_exists" || e.Code == "email_exists" ||
		strings.Contains(strings.ToLower(e.Message), "already registered"):
		return domain.ErrDuplicateIdentity
	case e.Code == "23505" || e.StatusCode == http.StatusConflict:
		return domain.ErrUniqueViolation
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// apiError is the union of the error bodies returned by the auth and rest APIs.
type apiError struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Code             any    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (a apiError) toHTTPError(status int) *HTTPError {
	e := &HTTPError{StatusCode: status, Code: a.ErrorCode}
	if s, ok := a.Code.(string); ok && e.Code == "" {
		e.Code = s
	}
	for _, m := range []string{a.Message, a.Msg, a.ErrorDescription, a.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	return e
}
