package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	einoopenai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/sashabaranov/go-openai"
)

var quotaMarkers = []string{
	"insufficient_quota",
	"exceeded your current quota",
	"rate_limit_exceeded",
	"resource_exhausted",
	"status code: 429",
	"error 429",
	"too many requests",
}

// IsQuotaError reports whether err means the provider account is out of
// quota or rate limited.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if apiErr.Code != nil && fmt.Sprint(apiErr.Code) == "insufficient_quota" {
			return true
		}
		if apiErr.Type == "insufficient_quota" {
			return true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	// the eino openai chat model speaks through its own go-openai fork
	var chatErr *einoopenai.APIError
	if errors.As(err, &chatErr) {
		if chatErr.HTTPStatusCode == http.StatusTooManyRequests || chatErr.Type == "insufficient_quota" {
			return true
		}
		if chatErr.Code != nil && fmt.Sprint(chatErr.Code) == "insufficient_quota" {
			return true
		}
	}
	var chatReqErr *einoopenai.RequestError
	if errors.As(err, &chatReqErr) && chatReqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	// chat models wrap provider SDK errors of their own; fall back to the text
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
