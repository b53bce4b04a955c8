// Package entities classifies raw campaign entities and exports per-category samples.
package entities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/db"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

// Category is the semantic bucket an entity is placed in.
type Category string

const (
	CategoryRegions       Category = "regions"
	CategorySettlements   Category = "settlements"
	CategoryFactions      Category = "factions"
	CategoryDungeons      Category = "dungeons"
	CategoryUncategorized Category = "uncategorized"
)

// CategoryOrder is the fixed tie-break order of the known-name tables.
var CategoryOrder = []Category{CategoryRegions, CategorySettlements, CategoryFactions, CategoryDungeons}

// AllCategories lists every bundle category, uncategorized last.
var AllCategories = append(append([]Category(nil), CategoryOrder...), CategoryUncategorized)

// UnknownName is the canonical name of unmatched entities.
const UnknownName = "unknown"

// Shape is the detected content shape of a raw value.
type Shape string

const (
	ShapeJSON Shape = "json"
	ShapeHTML Shape = "html"
)

// RawEntity is a campaign entity with its classification attached.
type RawEntity struct {
	UUID          string
	RawValue      string
	Shape         Shape
	Parsed        any
	Category      Category
	CanonicalName string
}

// DetectShape parses value as JSON when it starts with '{'; anything else,
// including invalid JSON, is HTML carrying the raw content and its visible text.
func DetectShape(value string) (Shape, any) {
	if strings.HasPrefix(strings.TrimSpace(value), "{") {
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			return ShapeJSON, parsed
		}
	}
	return ShapeHTML, map[string]any{
		"content": value,
		"text":    VisibleText(value),
	}
}

// Match returns the first category and canonical name whose table entry occurs
// in value, case-insensitively.
func Match(value string) (Category, string) {
	lower := strings.ToLower(value)
	for _, category := range CategoryOrder {
		for _, name := range tableFor(category) {
			if strings.Contains(lower, strings.ToLower(name)) {
				return category, name
			}
		}
	}
	return CategoryUncategorized, UnknownName
}

// ClassifyOne builds a RawEntity for a single row.
func ClassifyOne(uuid, value string) RawEntity {
	shape, parsed := DetectShape(value)
	category, name := Match(value)
	return RawEntity{
		UUID:          uuid,
		RawValue:      value,
		Shape:         shape,
		Parsed:        parsed,
		Category:      category,
		CanonicalName: name,
	}
}

// Clusters holds every classified entity partitioned by category.
type Clusters struct {
	byCategory map[Category][]RawEntity
	total      int
}

// Classify places every snapshot entity in exactly one category, preserving
// first-seen order within each category.
func Classify(snapshot *db.Snapshot) *Clusters {
	c := &Clusters{byCategory: make(map[Category][]RawEntity)}
	for _, row := range snapshot.Entities {
		e := ClassifyOne(row.UUID, row.Value)
		c.byCategory[e.Category] = append(c.byCategory[e.Category], e)
		c.total++
	}
	return c
}

// Category returns the entities placed in category.
func (c *Clusters) Category(category Category) []RawEntity {
	return c.byCategory[category]
}

// Counts returns the number of entities per category, including empty ones.
func (c *Clusters) Counts() map[Category]int {
	counts := make(map[Category]int, len(AllCategories))
	for _, category := range AllCategories {
		counts[category] = len(c.byCategory[category])
	}
	return counts
}

// Total returns the number of classified entities.
func (c *Clusters) Total() int {
	return c.total
}

// Sanitize turns a canonical name into a file-safe identifier.
func Sanitize(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "_")
	return strings.NewReplacer("'", "", "-", "", ".", "").Replace(s)
}

// ValidateTables checks the built-in tables for sanitized-name collisions.
func ValidateTables() error {
	return CheckCollisions(CanonicalTables())
}

// CheckCollisions fails with NameCollision when two distinct names sanitize identically.
func CheckCollisions(tables map[Category][]string) error {
	seen := make(map[string]string)
	var extra []Category
	for category := range tables {
		if !containsCategory(CategoryOrder, category) {
			extra = append(extra, category)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	categories := append(append([]Category(nil), CategoryOrder...), extra...)
	for _, category := range categories {
		for _, name := range tables[category] {
			key := Sanitize(name)
			if prev, ok := seen[key]; ok && prev != name {
				return apperrors.WithMetadata(apperrors.CodeNameCollision,
					fmt.Sprintf("canonical names %q and %q both sanitize to %q", prev, name, key),
					map[string]string{"sanitized": key})
			}
			seen[key] = name
		}
	}
	return nil
}

func containsCategory(list []Category, c Category) bool {
	for _, item := range list {
		if item == c {
			return true
		}
	}
	return false
}
