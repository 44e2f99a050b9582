package templates

import (
	"sort"

	"github.com/ternarybob/migro/internal/models"
)

// deriveRegions infers the editable regions of a template from its
// field->selector map. Field names drive type inference: prose-like
// names become richtext, media-like names become image, everything else
// is plain text. Plural and gallery-like names mark a region as
// repeating.
func deriveRegions(selectors map[string]string) []models.EditableRegion {
	regions := make([]models.EditableRegion, 0, len(selectors))
	for name := range selectors {
		regions = append(regions, models.EditableRegion{
			Name:     name,
			Label:    models.FieldLabel(name),
			Type:     models.RegionTypeForField(name),
			Multiple: models.IsMultiValueField(name),
		})
	}

	// Stable order for deterministic template rows
	sort.Slice(regions, func(i, j int) bool { return regions[i].Name < regions[j].Name })
	return regions
}
