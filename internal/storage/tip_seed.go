package storage

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// tipFile is the YAML layout accepted by ParseTips:
//
//	transport:
//	  - Try carpooling to reduce emissions.
//	diet:
//	  - Eat more plant-based meals.
type tipFile map[types.TipCategory][]string

// ParseTips reads a category-keyed YAML tip list for Seed. Blank messages
// are skipped; unknown categories are rejected.
func ParseTips(r io.Reader) ([]models.Tip, error) {
	var file tipFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode tips: %w", err)
	}

	var tips []models.Tip
	for _, category := range []types.TipCategory{types.TipTransport, types.TipElectricity, types.TipDiet, types.TipGeneral} {
		for _, msg := range file[category] {
			if msg = strings.TrimSpace(msg); msg != "" {
				tips = append(tips, models.Tip{Category: category, Message: msg})
			}
		}
	}

	for category := range file {
		if !category.IsValid() {
			return nil, fmt.Errorf("unknown tip category %q", category)
		}
	}
	return tips, nil
}
