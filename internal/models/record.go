package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FormRecordModel is one submission of a form. Data is a JSON object keyed by
// field id; each entry is {label, type, value, validation?, options?}.
// IDs are ULIDs so that id order follows submission order.
type FormRecordModel struct {
	ID        string         `json:"id"       gorm:"size:26;primaryKey"`
	FormID    string         `json:"form_id"  gorm:"size:36;index;not null"`
	Data      datatypes.JSON `json:"data"`
	CreatedAt time.Time      `json:"created"  gorm:"index"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

func (FormRecordModel) TableName() string { return "form_records" }

func (r *FormRecordModel) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	return nil
}
