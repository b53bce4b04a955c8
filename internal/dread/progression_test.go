package dread

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// TestVectorTable tests the progression table values
func TestVectorTable(t *testing.T) {
	tests := []struct {
		level      int
		corruption float64
		trauma     float64
		loyalty    int
		proximity  float64
	}{
		{0, 0.00, 0.0, 100, 0.00},
		{1, 0.15, 0.1, 80, 0.05},
		{2, 0.40, 0.3, 60, 0.20},
		{3, 0.70, 0.6, 40, 0.50},
		{4, 1.00, 0.9, 20, 0.95},
	}
	for _, tt := range tests {
		v, err := VectorFor(tt.level)
		if err != nil {
			t.Fatalf("VectorFor(%d) failed: %v", tt.level, err)
		}
		if v.WorldCorruption != tt.corruption || v.CompanionTrauma != tt.trauma ||
			v.CompanionLoyalty != tt.loyalty || v.DragonProximity != tt.proximity {
			t.Errorf("Level %d: unexpected vector %+v", tt.level, v)
		}
	}
}

// TestDreadThree tests the dread mapping scenario
func TestDreadThree(t *testing.T) {
	v, err := VectorFor(3)
	if err != nil {
		t.Fatal(err)
	}
	if v.WorldCorruption != 0.70 || v.DragonProximity != 0.50 {
		t.Errorf("Unexpected vector: %+v", v)
	}

	mira, ok, err := Companion(3, "Mira")
	if err != nil || !ok {
		t.Fatalf("Expected Mira, got %v %v", ok, err)
	}
	if mira.Present {
		t.Error("Expected Mira absent at dread 3")
	}

	sorin, _, _ := Companion(3, "Sorin")
	if sorin.Betrayed {
		t.Error("Expected Sorin loyal at dread 3")
	}
}

// TestCompanionRules tests the companion event thresholds at every level
func TestCompanionRules(t *testing.T) {
	for _, level := range Levels {
		mira, _, _ := Companion(level, "Mira")
		sorin, _, _ := Companion(level, "Sorin")
		if mira.Present != (level < 3) {
			t.Errorf("Level %d: Mira.Present = %v", level, mira.Present)
		}
		if sorin.Betrayed != (level >= 4) {
			t.Errorf("Level %d: Sorin.Betrayed = %v", level, sorin.Betrayed)
		}
		einar, _, _ := Companion(level, "Einar")
		if !einar.Present || einar.Betrayed {
			t.Errorf("Level %d: Einar should be unaffected, got %+v", level, einar)
		}
	}
}

// TestProgressionIsPure tests that repeated calls agree
func TestProgressionIsPure(t *testing.T) {
	for _, level := range Levels {
		a, _ := Companions(level)
		b, _ := Companions(level)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("Level %d companions differ:\n%s", level, diff)
		}
		ua, _ := UIConfigFor(level)
		ub, _ := UIConfigFor(level)
		da, _ := DecayConfigFor(level)
		db, _ := DecayConfigFor(level)
		if ua != ub || da != db {
			t.Errorf("Level %d configs differ", level)
		}
		ha, _ := HorrorBlock(level)
		hb, _ := HorrorBlock(level)
		if ha != hb {
			t.Errorf("Level %d horror block differs", level)
		}
	}
}

// TestOutOfRange tests level validation
func TestOutOfRange(t *testing.T) {
	for _, level := range []int{-1, 5} {
		if _, err := VectorFor(level); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("Level %d: expected validation error, got %v", level, err)
		}
		if _, err := UIConfigFor(level); err == nil {
			t.Errorf("Level %d: expected UI config error", level)
		}
	}
}

// TestHorrorBlock tests the injected block content
func TestHorrorBlock(t *testing.T) {
	block, err := HorrorBlock(4)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"dread 4 (horror)", "world corruption: 1.00", "Mira has left the party", "Sorin has betrayed the party"} {
		if !strings.Contains(block, want) {
			t.Errorf("Expected block to contain %q:\n%s", want, block)
		}
	}
}

// TestConfigsTrackCorruption tests that configs darken monotonically
func TestConfigsTrackCorruption(t *testing.T) {
	prevUI, _ := UIConfigFor(0)
	prevDecay, _ := DecayConfigFor(0)
	for _, level := range Levels[1:] {
		ui, _ := UIConfigFor(level)
		decay, _ := DecayConfigFor(level)
		if ui.Saturation >= prevUI.Saturation {
			t.Errorf("Level %d: saturation did not drop", level)
		}
		if decay.VegetationDecay <= prevDecay.VegetationDecay {
			t.Errorf("Level %d: vegetation decay did not rise", level)
		}
		prevUI, prevDecay = ui, decay
	}

	ui, _ := UIConfigFor(4)
	if ui.CompanionUI != 2 {
		t.Errorf("Expected 2 companion portraits at dread 4, got %d", ui.CompanionUI)
	}
}
