package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"not found", NotFound("engine", "x"), ErrCodeNotFound, http.StatusNotFound, false},
		{"conflict", Conflict("task exists"), ErrCodeConflict, http.StatusConflict, false},
		{"invalid input", InvalidInput("hour", "out of range"), ErrCodeInvalidInput, http.StatusBadRequest, false},
		{"validation", Validation("bad body"), ErrCodeInvalidInput, http.StatusBadRequest, false},
		{"timeout", Timeout("transcription"), ErrCodeTimeout, http.StatusGatewayTimeout, true},
		{"unavailable", ServiceUnavailable("engine"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable, true},
		{"rate limited", RateLimited(), ErrCodeRateLimited, http.StatusTooManyRequests, true},
		{"external", ExternalServiceError("yt-dlp", fmt.Errorf("exit 1")), ErrCodeExternalService, http.StatusBadGateway, true},
		{"database", DatabaseError(fmt.Errorf("locked")), ErrCodeDatabaseError, http.StatusInternalServerError, true},
		{"internal", Internal(fmt.Errorf("boom")), ErrCodeInternal, http.StatusInternalServerError, false},
		{"unauthorized", Unauthorized(""), ErrCodeUnauthorized, http.StatusUnauthorized, false},
		{"invalid token", InvalidToken(), ErrCodeInvalidToken, http.StatusUnauthorized, false},
		{"token expired", TokenExpired(), ErrCodeTokenExpired, http.StatusUnauthorized, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("code = %s, want %s", tc.err.Code, tc.code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("status = %d, want %d", tc.err.HTTPStatus, tc.status)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("retryable = %v, want %v", tc.err.Retryable, tc.retryable)
			}
		})
	}
}

func TestNotFoundDetails(t *testing.T) {
	err := NotFound("task", "abc")
	if err.Details["resource"] != "task" || err.Details["id"] != "abc" {
		t.Errorf("details = %v", err.Details)
	}
	if _, ok := NotFound("task", "").Details["id"]; ok {
		t.Error("empty id should not be recorded")
	}
}

func TestErrorStringAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Internal(cause)
	if got := err.Error(); got != "INTERNAL_ERROR: An unexpected error occurred. (cause: disk full)" {
		t.Errorf("Error() = %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if got := Conflict("busy").Error(); got != "CONFLICT: busy" {
		t.Errorf("Error() = %q", got)
	}
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("scheduling: %w", NotFound("channel", "c1"))
	appErr, ok := AsAppError(wrapped)
	if !ok || appErr.Code != ErrCodeNotFound {
		t.Fatalf("AsAppError = %v, %v", appErr, ok)
	}
	if !IsCode(wrapped, ErrCodeNotFound) {
		t.Error("IsCode should match wrapped AppError")
	}
	if IsCode(fmt.Errorf("plain"), ErrCodeNotFound) {
		t.Error("IsCode should not match plain errors")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	orig := Conflict("x")
	if Wrap(fmt.Errorf("ctx: %w", orig)) != orig {
		t.Error("Wrap should return the existing AppError")
	}
	if Wrap(fmt.Errorf("plain")).Code != ErrCodeInternal {
		t.Error("plain errors should become INTERNAL_ERROR")
	}
}

func TestToResponse(t *testing.T) {
	resp := InvalidInput("minute", "must be 0-59").ToResponse()
	if resp.Error.Code != ErrCodeInvalidInput || resp.Error.Details["field"] != "minute" {
		t.Errorf("response = %+v", resp)
	}
}
