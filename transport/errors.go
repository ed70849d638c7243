package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// StatusError reports a non-2xx answer from the chat API.
type StatusError struct {
	StatusCode int
	StatusText string
}

func newStatusError(resp *http.Response) *StatusError {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &StatusError{StatusCode: resp.StatusCode, StatusText: text}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.StatusText)
}
