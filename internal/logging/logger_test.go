package logging

import "testing"

// TestNewBuildsLogger tests logger construction at both levels
func TestNewBuildsLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		logger, err := New(verbose)
		if err != nil {
			t.Fatalf("New(%v) failed: %v", verbose, err)
		}
		if got := logger.Core().Enabled(-1); got != verbose {
			t.Errorf("Expected debug enabled=%v, got %v", verbose, got)
		}
	}
}

// TestOrNop tests the nil fallback
func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("Expected a no-op logger for nil input")
	}
}
