package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("upstream said 404")
	err := WrapError(originalErr, ErrCodeBadGateway, "signaling failed", http.StatusBadGateway)

	if !errors.Is(err, originalErr) {
		t.Errorf("errors.Is should find cause %v", originalErr)
	}
	if !strings.Contains(err.Error(), "upstream said 404") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewCapacityError("pool is full")
	err.WithContext("max_concurrency", 6).WithContext("source_id", "edge01")

	if err.Context["max_concurrency"] != 6 {
		t.Errorf("Context[max_concurrency] = %v, want 6", err.Context["max_concurrency"])
	}
	if err.Context["source_id"] != "edge01" {
		t.Errorf("Context[source_id] = %v, want edge01", err.Context["source_id"])
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("slot"), ErrCodeNotFound, http.StatusNotFound},
		{NewConflictError("dup"), ErrCodeConflict, http.StatusConflict},
		{NewCapacityError("full"), ErrCodeCapacity, http.StatusConflict},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewBadGatewayError("upstream"), ErrCodeBadGateway, http.StatusBadGateway},
		{NewGatewayTimeoutError("slow"), ErrCodeGatewayTimeout, http.StatusGatewayTimeout},
		{NewServiceUnavailableError("down"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
		{NewInternalError("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("Code = %v, want %v", tc.err.Code, tc.code)
		}
		if tc.err.HTTPStatus != tc.status {
			t.Errorf("%s: HTTPStatus = %v, want %v", tc.code, tc.err.HTTPStatus, tc.status)
		}
	}
	if msg := NewNotFoundError("slot").Message; msg != "slot not found" {
		t.Errorf("unexpected not found message %q", msg)
	}
}

func TestAppError_WithCauseOnConstructor(t *testing.T) {
	cause := errors.New("pool is at max concurrency")
	err := NewCapacityError("pool full").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find cause %v", cause)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %v, want %v", err.HTTPStatus, http.StatusConflict)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", http.StatusBadRequest)

	if result := GetAppError(appErr); result != appErr {
		t.Errorf("GetAppError() = %v, want %v", result, appErr)
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	if result := GetAppError(wrapped); result != appErr {
		t.Error("GetAppError() should extract AppError from fmt-wrapped error")
	}

	if result := GetAppError(errors.New("regular error")); result != nil {
		t.Error("GetAppError() should return nil for regular error")
	}
	if result := GetAppError(nil); result != nil {
		t.Error("GetAppError(nil) should return nil")
	}
}
