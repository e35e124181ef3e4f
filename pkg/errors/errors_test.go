package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestWithInternalKeepsOriginal(t *testing.T) {
	cause := errors.New("db down")
	err := ErrInternalServer.WithInternal(cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to satisfy errors.Is")
	}

	if ErrInternalServer.Internal != nil {
		t.Fatal("WithInternal must not mutate the shared sentinel")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Fatal("expected nil for nil input")
	}

	appErr := FromError(ErrAccountLocked)
	if appErr.Code != "ACCOUNT_LOCKED" {
		t.Fatalf("expected ACCOUNT_LOCKED, got %s", appErr.Code)
	}

	generic := FromError(errors.New("boom"))
	if generic.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for generic error, got %d", generic.StatusCode)
	}
}

func TestWithMessage(t *testing.T) {
	err := ErrAccountLocked.WithMessage("Account locked. Try again in 12 minutes.")
	if err.Code != ErrAccountLocked.Code {
		t.Fatal("code must be preserved")
	}
	if err.Message == ErrAccountLocked.Message {
		t.Fatal("message should have been replaced")
	}
	if ErrAccountLocked.Message != "Account temporarily locked due to repeated failed logins" {
		t.Fatal("WithMessage must not mutate the shared sentinel")
	}
}
