package httpclient

import (
	"strings"
	"unicode/utf8"
)

// maxSnippet bounds how much of an upstream body ends up in error messages.
const maxSnippet = 512

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRateLimitStatus returns true if the status code indicates rate limiting
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == 429
}

// IsJSON reports whether the response declares a JSON content type
func (r *Response) IsJSON() bool {
	contentType := strings.ToLower(r.ContentType)
	return strings.Contains(contentType, "application/json") || strings.Contains(contentType, "text/json")
}

// Snippet returns a bounded, printable prefix of the body for error reporting
func (r *Response) Snippet() string {
	body := r.Body
	if len(body) > maxSnippet {
		body = body[:maxSnippet]
	}
	s := strings.TrimSpace(strings.ToValidUTF8(string(body), string(utf8.RuneError)))
	if len(r.Body) > maxSnippet {
		s += "..."
	}
	return s
}
