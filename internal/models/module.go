package models

// ModuleModel is a folder-like container of forms. Modules nest via ParentID.
type ModuleModel struct {
	Base
	Name        string  `json:"name"        gorm:"size:191;not null"`
	Description string  `json:"description" gorm:"type:text"`
	Icon        string  `json:"icon"        gorm:"size:64"`
	ParentID    *string `json:"parent_id"   gorm:"size:36;index"`

	Forms []FormModel `json:"forms,omitempty" gorm:"foreignKey:ModuleID"`
}

func (ModuleModel) TableName() string { return "modules" }
