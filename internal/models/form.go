package models

import "gorm.io/datatypes"

// FormModel is a user-defined input schema. Its records live in form_records.
type FormModel struct {
	Base
	ModuleID    string `json:"module_id"    gorm:"size:36;index;not null"`
	Name        string `json:"name"         gorm:"size:191;not null"`
	Description string `json:"description"  gorm:"type:text"`
	IsPublished bool   `json:"is_published" gorm:"default:false"`

	Sections []FormSectionModel `json:"sections,omitempty" gorm:"foreignKey:FormID"`
}

func (FormModel) TableName() string { return "forms" }

// FormSectionModel groups fields and subforms of a form.
type FormSectionModel struct {
	Base
	FormID string `json:"form_id" gorm:"size:36;index;not null"`
	Title  string `json:"title"   gorm:"size:191"`
	Order  int    `json:"order"   gorm:"column:sort_order;default:0"`

	Fields   []FormFieldModel `json:"fields,omitempty"   gorm:"foreignKey:SectionID"`
	Subforms []SubformModel   `json:"subforms,omitempty" gorm:"foreignKey:SectionID"`
}

func (FormSectionModel) TableName() string { return "form_sections" }

// SubformModel is a repeatable group nested in a section.
type SubformModel struct {
	Base
	SectionID string `json:"section_id" gorm:"size:36;index;not null"`
	Name      string `json:"name"       gorm:"size:191"`
	Order     int    `json:"order"      gorm:"column:sort_order;default:0"`

	Fields []FormFieldModel `json:"fields,omitempty" gorm:"foreignKey:SubformID"`
}

func (SubformModel) TableName() string { return "subforms" }

// Field types with special handling.
const (
	FieldTypeLookup = "lookup"
)

// FormFieldModel belongs to exactly one of a section or a subform.
type FormFieldModel struct {
	Base
	SectionID   *string            `json:"section_id"  gorm:"size:36;index"`
	SubformID   *string            `json:"subform_id"  gorm:"size:36;index"`
	Type        string             `json:"type"        gorm:"size:32;not null"`
	Label       string             `json:"label"       gorm:"size:191"`
	Placeholder string             `json:"placeholder" gorm:"size:191"`
	Order       int                `json:"order"       gorm:"column:sort_order;default:0"`
	Required    bool               `json:"required"    gorm:"default:false"`
	Validation  datatypes.JSON     `json:"validation"`
	Options     datatypes.JSON     `json:"options"`
	Lookup      *LookupFieldConfig `json:"lookup"      gorm:"type:text;serializer:json"`
}

func (FormFieldModel) TableName() string { return "form_fields" }

// IsLookup reports whether the field draws its value from a lookup source.
func (f *FormFieldModel) IsLookup() bool {
	return f != nil && f.Type == FieldTypeLookup && f.Lookup != nil && f.Lookup.SourceID != ""
}
