package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestOpErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Op("fetch", "8c1c", ErrStore, cause)

	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected errors.Is(err, ErrStore)")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrSchema) {
		t.Fatalf("unexpected match on ErrSchema")
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "fetch" {
		t.Fatalf("errors.As: got %+v", opErr)
	}
	if !strings.Contains(err.Error(), "player=8c1c") {
		t.Fatalf("Error(): missing player key: %q", err.Error())
	}
}

func TestOpErrorWithoutPlayer(t *testing.T) {
	err := Op("ensure_schema", "", ErrSchema, nil)
	if got := err.Error(); got != "store schema unavailable (op=ensure_schema)" {
		t.Fatalf("Error(): got %q", got)
	}
}
