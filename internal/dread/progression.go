// Package dread derives the horror-progression constants for each dread level.
package dread

import (
	"fmt"
	"strings"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// MaxLevel is the highest dread level.
const MaxLevel = 4

// Levels lists every dread level in generation order.
var Levels = []int{0, 1, 2, 3, 4}

// Vector is the per-level progression record.
type Vector struct {
	Level            int     `json:"dread_level" toml:"dread_level"`
	Stage            string  `json:"stage" toml:"stage"`
	WorldCorruption  float64 `json:"world_corruption" toml:"world_corruption"`
	CompanionTrauma  float64 `json:"companion_trauma" toml:"companion_trauma"`
	CompanionLoyalty int     `json:"companion_loyalty" toml:"companion_loyalty"`
	DragonProximity  float64 `json:"dragon_proximity" toml:"dragon_proximity"`
}

var vectors = [...]Vector{
	{Level: 0, Stage: "peace", WorldCorruption: 0.00, CompanionTrauma: 0.0, CompanionLoyalty: 100, DragonProximity: 0.00},
	{Level: 1, Stage: "unease", WorldCorruption: 0.15, CompanionTrauma: 0.1, CompanionLoyalty: 80, DragonProximity: 0.05},
	{Level: 2, Stage: "dread", WorldCorruption: 0.40, CompanionTrauma: 0.3, CompanionLoyalty: 60, DragonProximity: 0.20},
	{Level: 3, Stage: "terror", WorldCorruption: 0.70, CompanionTrauma: 0.6, CompanionLoyalty: 40, DragonProximity: 0.50},
	{Level: 4, Stage: "horror", WorldCorruption: 1.00, CompanionTrauma: 0.9, CompanionLoyalty: 20, DragonProximity: 0.95},
}

// CheckLevel fails for levels outside 0..MaxLevel.
func CheckLevel(level int) error {
	if level < 0 || level > MaxLevel {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("dread level %d outside 0..%d", level, MaxLevel),
			map[string]string{"dread_level": fmt.Sprint(level)})
	}
	return nil
}

// VectorFor returns the progression vector of level.
func VectorFor(level int) (Vector, error) {
	if err := CheckLevel(level); err != nil {
		return Vector{}, err
	}
	return vectors[level], nil
}

// CompanionState is a companion's psychological state at a dread level.
type CompanionState struct {
	Name     string  `json:"name" toml:"name"`
	Loyalty  int     `json:"loyalty" toml:"loyalty"`
	Trauma   float64 `json:"trauma" toml:"trauma"`
	Present  bool    `json:"present" toml:"present"`
	Betrayed bool    `json:"betrayed" toml:"betrayed"`
}

// Roster is the fixed companion order.
var Roster = []string{"Mira", "Sorin", "Einar", "Tamara"}

// Companions returns every companion's state at level. Mira has left the
// party from dread 3 and Sorin has betrayed it at dread 4.
func Companions(level int) ([]CompanionState, error) {
	v, err := VectorFor(level)
	if err != nil {
		return nil, err
	}

	states := make([]CompanionState, 0, len(Roster))
	for _, name := range Roster {
		c := CompanionState{
			Name:    name,
			Loyalty: v.CompanionLoyalty,
			Trauma:  v.CompanionTrauma,
			Present: true,
		}
		switch {
		case name == "Mira" && level >= 3:
			c.Present = false
		case name == "Sorin" && level >= 4:
			c.Betrayed = true
		}
		states = append(states, c)
	}
	return states, nil
}

// Companion returns the named companion's state at level.
func Companion(level int, name string) (CompanionState, bool, error) {
	states, err := Companions(level)
	if err != nil {
		return CompanionState{}, false, err
	}
	for _, c := range states {
		if c.Name == name {
			return c, true, nil
		}
	}
	return CompanionState{}, false, nil
}

// HorrorBlock is the progression block injected ahead of every prompt.
func HorrorBlock(level int) (string, error) {
	v, err := VectorFor(level)
	if err != nil {
		return "", err
	}
	companions, _ := Companions(level)

	var b strings.Builder
	fmt.Fprintf(&b, "## Horror progression: dread %d (%s)\n", v.Level, v.Stage)
	fmt.Fprintf(&b, "- world corruption: %.2f\n", v.WorldCorruption)
	fmt.Fprintf(&b, "- companion trauma: %.1f\n", v.CompanionTrauma)
	fmt.Fprintf(&b, "- companion loyalty: %d\n", v.CompanionLoyalty)
	fmt.Fprintf(&b, "- dragon proximity: %.2f\n", v.DragonProximity)
	for _, c := range companions {
		switch {
		case !c.Present:
			fmt.Fprintf(&b, "- %s has left the party\n", c.Name)
		case c.Betrayed:
			fmt.Fprintf(&b, "- %s has betrayed the party\n", c.Name)
		}
	}
	b.WriteString("Content must match this stage: the world darkens as dread rises.")
	return b.String(), nil
}
