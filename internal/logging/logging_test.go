package logging

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("provider.invoke", "req-1", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := NewOperationError("provider.download", "req-9", base)

	if got, want := err.Error(), "provider.download (request_id=req-9): connection refused"; got != want {
		t.Fatalf("unexpected message: %q, want %q", got, want)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}

	wrapped := fmt.Errorf("relay: %w", err)
	if op := OperationOf(wrapped); op != "provider.download" {
		t.Fatalf("unexpected operation: %s", op)
	}
	if op := OperationOf(base); op != "" {
		t.Fatalf("expected empty operation, got %s", op)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":             "<unset>",
		"abc":          "***",
		"abcd1234efgh": "abcd********",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = logger.Sync()
}
