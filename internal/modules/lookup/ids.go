// Package lookup serves lookup sources: the catalog of referenceable origins,
// candidate records and field discovery per origin, and the reverse index of
// lookup fields.
package lookup

import (
	"fmt"
	"strings"

	"github.com/formdeck/core/internal/models"
)

const (
	staticPrefix   = "lookup_"
	modulePrefix   = "module_"
	formPrefix     = "form_"
	relationPrefix = "lfr_"
)

func StaticSourceID(key string) string      { return staticPrefix + key }
func ModuleSourceID(moduleID string) string { return modulePrefix + moduleID }
func FormSourceID(formID string) string     { return formPrefix + formID }

// ParseSourceID splits a source id into its origin kind and target id.
func ParseSourceID(id string) (models.LookupSourceType, string, bool) {
	switch {
	case strings.HasPrefix(id, staticPrefix) && len(id) > len(staticPrefix):
		return models.LookupSourceStatic, strings.TrimPrefix(id, staticPrefix), true
	case strings.HasPrefix(id, modulePrefix) && len(id) > len(modulePrefix):
		return models.LookupSourceModule, strings.TrimPrefix(id, modulePrefix), true
	case strings.HasPrefix(id, formPrefix) && len(id) > len(formPrefix):
		return models.LookupSourceForm, strings.TrimPrefix(id, formPrefix), true
	}
	return "", "", false
}

// RelationID is the deterministic id of the (source, field) link.
func RelationID(sourceID, fieldID string) string {
	return fmt.Sprintf("%s%s_%s", relationPrefix, sourceID, fieldID)
}
