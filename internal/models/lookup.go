package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// LookupSourceType is the origin kind of a lookup source.
type LookupSourceType string

const (
	LookupSourceStatic LookupSourceType = "static"
	LookupSourceModule LookupSourceType = "module"
	LookupSourceForm   LookupSourceType = "form"
)

// LookupSourceModel is one referenceable origin. Rows are never hard-deleted;
// they are marked inactive instead.
type LookupSourceModel struct {
	ID               string           `json:"id"                 gorm:"size:80;primaryKey"`
	Name             string           `json:"name"               gorm:"size:191;not null"`
	Type             LookupSourceType `json:"type"               gorm:"size:16;index;not null"`
	StaticSourceName *string          `json:"static_source_name" gorm:"size:64"`
	Description      string           `json:"description"        gorm:"type:text"`
	Icon             string           `json:"icon"               gorm:"size:64"`
	Data             datatypes.JSON   `json:"data,omitempty"`
	SourceModuleID   *string          `json:"source_module_id"   gorm:"size:36;index"`
	SourceFormID     *string          `json:"source_form_id"     gorm:"size:36;index"`
	Active           bool             `json:"active"             gorm:"default:true;index"`
	CreatedAt        time.Time        `json:"created"`
	UpdatedAt        time.Time        `json:"modified"`
}

func (LookupSourceModel) TableName() string { return "lookup_sources" }

var errInconsistentSource = errors.New("lookup source origin does not match its type")

// Validate checks that exactly the origin matching Type is populated.
func (s *LookupSourceModel) Validate() error {
	hasData := len(s.Data) > 0 && string(s.Data) != "null"
	hasModule := s.SourceModuleID != nil && *s.SourceModuleID != ""
	hasForm := s.SourceFormID != nil && *s.SourceFormID != ""

	var ok bool
	switch s.Type {
	case LookupSourceStatic:
		ok = hasData && !hasModule && !hasForm
	case LookupSourceModule:
		ok = !hasData && hasModule && !hasForm
	case LookupSourceForm:
		ok = !hasData && !hasModule && hasForm
	}
	if !ok {
		return errInconsistentSource
	}
	return nil
}

// LookupFieldRelationModel links a lookup field to the source it queries.
// ID is derived from (source, field) so repeated saves upsert one row.
type LookupFieldRelationModel struct {
	ID             string         `json:"id"               gorm:"size:160;primaryKey"`
	LookupSourceID string         `json:"lookup_source_id" gorm:"size:80;index;not null"`
	FormFieldID    string         `json:"form_field_id"    gorm:"size:36;index;not null"`
	FormID         string         `json:"form_id"          gorm:"size:36;index"`
	ModuleID       string         `json:"module_id"        gorm:"size:36;index"`
	DisplayField   string         `json:"display_field"    gorm:"size:191"`
	ValueField     string         `json:"value_field"      gorm:"size:191"`
	Multiple       bool           `json:"multiple"`
	Searchable     bool           `json:"searchable"`
	Filters        datatypes.JSON `json:"filters"`
	CreatedAt      time.Time      `json:"created"`
	UpdatedAt      time.Time      `json:"modified"`
}

func (LookupFieldRelationModel) TableName() string { return "lookup_field_relations" }

// LookupFieldMapping selects which source fields feed display, value and store.
type LookupFieldMapping struct {
	Display     string `json:"display"`
	Value       string `json:"value"`
	Store       string `json:"store"`
	Description string `json:"description,omitempty"`
}

// LookupFieldConfig is the lookup slice of a form field's configuration.
type LookupFieldConfig struct {
	SourceID          string             `json:"sourceId"`
	SourceType        LookupSourceType   `json:"sourceType,omitempty"`
	Multiple          bool               `json:"multiple"`
	Searchable        bool               `json:"searchable"`
	FieldMapping      LookupFieldMapping `json:"fieldMapping"`
	UseIDField        bool               `json:"useIdField,omitempty"`
	IDFieldName       string             `json:"idFieldName,omitempty"`
	AllowCustomValues *bool              `json:"allowCustomValues,omitempty"`
	Filters           datatypes.JSON     `json:"filters,omitempty"`
}

// CustomValuesAllowed defaults to true when unset.
func (c *LookupFieldConfig) CustomValuesAllowed() bool {
	return c.AllowCustomValues == nil || *c.AllowCustomValues
}
