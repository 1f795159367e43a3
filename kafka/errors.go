package kafka

import (
	"strings"

	apperrors "github.com/kbukum/whisper-subtitle/errors"
)

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"no route to host",
	"network is unreachable",
	"broker not available",
	"leader not available",
	"dial tcp",
}

var retryablePatterns = []string{
	"temporary",
	"request timed out",
	"not enough replicas",
}

func containsAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// IsConnectionError reports whether err looks like a broker connectivity failure.
func IsConnectionError(err error) bool { return containsAny(err, connectionPatterns) }

// IsRetryableError reports whether a write that failed with err is worth repeating.
func IsRetryableError(err error) bool {
	return IsConnectionError(err) || containsAny(err, retryablePatterns)
}

// FromKafka converts a write error into an AppError.
func FromKafka(err error, topic string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return apperrors.ServiceUnavailable("event broker").WithDetail("topic", topic).WithCause(err)
	}
	return apperrors.ExternalServiceError("kafka", err).WithDetail("topic", topic)
}
