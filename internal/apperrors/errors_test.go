package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("targetUrl", "target URL is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "target URL is required" {
		t.Errorf("expected message 'target URL is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "targetUrl" {
		t.Errorf("expected field 'targetUrl', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "42")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "job 42 not found" {
		t.Errorf("expected message 'job 42 not found', got %q", err.Error())
	}
}

func TestPersistence(t *testing.T) {
	t.Parallel()
	cause := os.ErrPermission
	err := Persistence("jobstore.save", "c1", cause)

	if !errors.Is(err, ErrPersistence) {
		t.Error("expected error to match ErrPersistence")
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("expected error to match its cause")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.CorrelationID != "c1" {
		t.Errorf("expected correlation 'c1', got %q", appErr.CorrelationID)
	}
	if appErr.Op != "jobstore.save" {
		t.Errorf("expected op 'jobstore.save', got %q", appErr.Op)
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()
	err := Dispatch("start-container", "c9", "no such container", nil)

	if !errors.Is(err, ErrDispatch) {
		t.Error("expected error to match ErrDispatch")
	}
	if err.Error() != "start-container c9: no such container" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("docker daemon unavailable")
	err := Internal("engine.ping", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if err.Error() != "engine.ping: docker daemon unavailable" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("id", "required"), http.StatusBadRequest},
		{"not found", NotFound("job", "123"), http.StatusNotFound},
		{"conflict", Conflict("subscription", "123", "exists"), http.StatusConflict},
		{"persistence", Persistence("op", "c", fmt.Errorf("disk full")), http.StatusInternalServerError},
		{"corrupt", Corrupt("op", fmt.Errorf("bad json")), http.StatusInternalServerError},
		{"dispatch", Dispatch("ping", "c", "refused", nil), http.StatusBadGateway},
		{"dispatch timeout", Dispatch("ping", "c", "deadline", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unavailable", Unavailable("job store"), http.StatusServiceUnavailable},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"wrapped validation", fmt.Errorf("wrap: %w", Validation("f", "m")), http.StatusBadRequest},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want string
	}{
		{Validation("id", "required"), "validation"},
		{NotFound("job", "1"), "not_found"},
		{Dispatch("ping", "c", "deadline", context.DeadlineExceeded), "timeout"},
		{Dispatch("ping", "c", "refused", nil), "dispatch"},
		{Persistence("op", "c", fmt.Errorf("disk full")), "persistence"},
		{Corrupt("op", fmt.Errorf("bad json")), "corrupt"},
		{fmt.Errorf("unknown"), "internal"},
		{nil, "internal"},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	original := Validation("targetUrl", "required")
	wrapped := fmt.Errorf("service error: %w", original)
	doubleWrapped := fmt.Errorf("handler error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrValidation) {
		t.Error("expected errors.Is to find ErrValidation through multiple wraps")
	}
}
