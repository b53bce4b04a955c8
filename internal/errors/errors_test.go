package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

// TestIsMatchesByCode tests errors.Is comparisons through wrapping
func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("loading: %w", Newf(CodeMissingSpec, "missing spec %q", "ui-generation"))

	if !stderrors.Is(err, ErrMissingSpec) {
		t.Fatal("Expected wrapped error to match ErrMissingSpec")
	}
	if stderrors.Is(err, ErrSourceMissing) {
		t.Fatal("Expected no match against a different code")
	}
}

// TestExitCode tests mapping of error kinds to exit codes
func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New(CodeCyclicDependency, "cycle"), ExitConfig},
		{"collision", New(CodeNameCollision, "collision"), ExitConfig},
		{"source", Wrap(CodeSourceUnreadable, "open", stderrors.New("boom")), ExitSource},
		{"io", New(CodeIO, "write manifest"), ExitCritical},
		{"plain", stderrors.New("plain"), ExitCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

// TestErrorMessageIncludesCause tests message formatting
func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeTransport, "completion request", stderrors.New("connection reset"))
	if err.Error() != "completion request: connection reset" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if CodeOf(err) != CodeTransport {
		t.Errorf("Expected code %s, got %s", CodeTransport, CodeOf(err))
	}
	if KindOf(err) != KindRequest {
		t.Errorf("Expected kind %s, got %s", KindRequest, KindOf(err))
	}
}
