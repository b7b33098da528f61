package ux

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

func TestEnhanceError(t *testing.T) {
	if EnhanceError(nil) != nil {
		t.Fatal("EnhanceError(nil) should be nil")
	}

	coded := errors.NewNotAuthenticatedError()
	if got := EnhanceError(coded); got != error(coded) {
		t.Errorf("coded errors should pass through, got %v", got)
	}

	refused := fmt.Errorf("dial tcp 127.0.0.1:8000: connect: connection refused")
	got := EnhanceError(refused)
	if errors.CodeOf(got) != errors.ErrCodeTransport {
		t.Errorf("code = %q, want %q", errors.CodeOf(got), errors.ErrCodeTransport)
	}
	if !stderrors.Is(got, refused) {
		t.Error("the original error should stay in the chain")
	}

	plain := stderrors.New("something else")
	if EnhanceError(plain) != plain {
		t.Error("unrecognised errors pass through")
	}
}

func TestFormatError(t *testing.T) {
	st := NewStyles(true)

	err := errors.NewTransportError("register", stderrors.New("dial tcp: i/o timeout"))
	out := FormatError(err, st)

	for _, want := range []string{
		"Error: Failed to register, please try again.",
		"• Check that the registry URL is reachable",
		"[API-002]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatError() = %q, missing %q", out, want)
		}
	}
	if strings.Contains(out, "i/o timeout") {
		t.Errorf("causes must not be shown: %q", out)
	}

	if got := FormatError(stderrors.New("boom"), st); got != "Error: boom" {
		t.Errorf("FormatError(plain) = %q", got)
	}
	if FormatError(nil, st) != "" {
		t.Error("FormatError(nil) should be empty")
	}
}
