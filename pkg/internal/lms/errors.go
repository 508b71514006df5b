package lms

import (
	"errors"
	"fmt"
	"strings"
)

// APIError 远端平台返回的结构化错误.
type APIError struct {
	Code    string `json:"errorcode"`
	Message string `json:"message"`
	Debug   string `json:"debuginfo,omitempty"`
}

func (e *APIError) Error() string {
	if e.Debug != "" {
		return fmt.Sprintf("lms error %s: %s (%s)", e.Code, e.Message, e.Debug)
	}

	return fmt.Sprintf("lms error %s: %s", e.Code, e.Message)
}

// transientMarkers 匹配到任一子串即视为瞬时故障，可入重试队列.
var transientMarkers = []string{
	"moodleoff",
	"maintenance",
	"timeout",
	"connection",
	"unavailable",
}

// IsTransient 判断错误是否为瞬时故障.
// 结构化错误检查 Code 与 Message，其余错误检查整串文本.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		haystack := strings.ToLower(apiErr.Code + " " + apiErr.Message)
		for _, marker := range transientMarkers {
			if strings.Contains(haystack, marker) {
				return true
			}
		}

		return false
	}

	haystack := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}

	return false
}
