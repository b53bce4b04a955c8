package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/dread"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/entities"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateAssetID validates asset ID format
func ValidateAssetID(id string) error {
	if len(id) != 36 {
		return fmt.Errorf("asset ID must be 36 characters")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("asset ID must be a UUID")
	}
	return nil
}

// ValidateDomain validates an artifact domain directory name
func ValidateDomain(domain string) error {
	if len(domain) == 0 || len(domain) > 64 {
		return fmt.Errorf("domain must be 1-64 characters")
	}

	// Lowercase alphanumeric, hyphens, underscores; keeps lookups inside the output dir
	if !domainPattern.MatchString(domain) {
		return fmt.Errorf("domain can only contain lowercase alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ParseDreadLevel parses and validates a dread level path parameter
func ParseDreadLevel(s string) (int, error) {
	level, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("dread level must be an integer")
	}
	if err := dread.CheckLevel(level); err != nil {
		return 0, err
	}
	return level, nil
}

// ValidateCategory validates an entity category name
func ValidateCategory(category string) error {
	for _, c := range entities.AllCategories {
		if string(c) == category {
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", category)
}
