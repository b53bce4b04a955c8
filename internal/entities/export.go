package entities

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/fsutil"
)

// Thresholds caps the number of sampled entities per bundle shape.
type Thresholds struct {
	HTML int
	JSON int
}

// DefaultThresholds are the sample caps used when none are configured.
var DefaultThresholds = Thresholds{HTML: 10, JSON: 5}

// For returns the cap for a bundle of the given shape. A non-positive cap
// selects the default for that shape.
func (t Thresholds) For(shape Shape) int {
	limit, fallback := t.HTML, DefaultThresholds.HTML
	if shape == ShapeJSON {
		limit, fallback = t.JSON, DefaultThresholds.JSON
	}
	if limit <= 0 {
		return fallback
	}
	return limit
}

// BundleEntity is one sampled entity.
type BundleEntity struct {
	UUID          string `toml:"uuid"`
	CanonicalName string `toml:"canonical_name"`
	Content       string `toml:"content"`
}

// Bundle is the per-category sample written to <category>.toml.
type Bundle struct {
	Category    Category       `toml:"category"`
	SampleCount int            `toml:"sample_count"`
	Shape       Shape          `toml:"shape"`
	Entities    []BundleEntity `toml:"entities"`
}

// BundleShape is JSON only when every member is JSON-shaped.
func BundleShape(members []RawEntity) Shape {
	if len(members) == 0 {
		return ShapeHTML
	}
	for _, e := range members {
		if e.Shape != ShapeJSON {
			return ShapeHTML
		}
	}
	return ShapeJSON
}

// Bundles builds the capped bundle of every non-empty category in
// AllCategories order. The head of first-seen order is retained.
func (c *Clusters) Bundles(thresholds Thresholds) []Bundle {
	var bundles []Bundle
	for _, category := range AllCategories {
		members := c.byCategory[category]
		if len(members) == 0 {
			continue
		}

		shape := BundleShape(members)
		limit := thresholds.For(shape)
		if limit > len(members) {
			limit = len(members)
		}

		b := Bundle{Category: category, Shape: shape, Entities: make([]BundleEntity, 0, limit)}
		for _, e := range members[:limit] {
			b.Entities = append(b.Entities, BundleEntity{
				UUID:          e.UUID,
				CanonicalName: e.CanonicalName,
				Content:       e.RawValue,
			})
		}
		b.SampleCount = len(b.Entities)
		bundles = append(bundles, b)
	}
	return bundles
}

// ExportSamples writes every non-empty bundle to dir/<category>.toml and
// returns the written paths keyed by category.
func ExportSamples(dir string, clusters *Clusters, thresholds Thresholds) (map[Category]string, error) {
	written := make(map[Category]string)
	for _, b := range clusters.Bundles(thresholds) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(b); err != nil {
			return nil, fmt.Errorf("encoding %s samples: %w", b.Category, err)
		}

		path := filepath.Join(dir, string(b.Category)+".toml")
		if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("writing %s", path), err)
		}
		written[b.Category] = path
	}
	return written, nil
}

// LoadBundle reads a sample file written by ExportSamples.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &b, nil
}
