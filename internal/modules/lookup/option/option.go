package option

import (
	"fmt"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
)

const (
	displayDateTimeLayout = "1/2/2006, 3:04:05 PM"
	displayDateLayout     = "1/2/2006"
)

// Option is one selectable choice. Selecting it persists Store.
type Option struct {
	ID          string              `json:"id"`
	Label       string              `json:"label"`
	Value       any                 `json:"value"`
	Store       any                 `json:"store"`
	Description string              `json:"description,omitempty"`
	IsCustom    bool                `json:"isCustom"`
	FieldType   normalize.FieldType `json:"fieldType,omitempty"`
}

// Build maps one record. Display falls back to "Item {record_id}", value to
// the record id and store to the resolved value.
func Build(rec *normalize.Record, mapping models.LookupFieldMapping, loc *time.Location) Option {
	opt := Option{
		ID:    rec.RecordID,
		Label: fmt.Sprintf("Item %s", rec.RecordID),
		Value: rec.RecordID,
	}
	if e, ok := Resolve(rec, mapping.Display); ok {
		opt.Label = FormatDisplay(e, loc)
		opt.FieldType = e.Type
	}
	if e, ok := Resolve(rec, mapping.Value); ok && e.Value.V != nil {
		opt.Value = e.Value.V
	}
	opt.Store = opt.Value
	if e, ok := Resolve(rec, mapping.Store); ok && e.Value.V != nil {
		opt.Store = e.Value.V
	}
	if e, ok := Resolve(rec, mapping.Description); ok {
		opt.Description = FormatDisplay(e, loc)
	}
	return opt
}

// BuildAll maps every record, keeping order.
func BuildAll(records []normalize.Record, mapping models.LookupFieldMapping, loc *time.Location) []Option {
	out := make([]Option, 0, len(records))
	for i := range records {
		out = append(out, Build(&records[i], mapping, loc))
	}
	return out
}

// FormatDisplay renders an entry for people. Dates that failed to parse render raw.
func FormatDisplay(e normalize.Entry, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if e.Value.Fallback {
		return e.Value.String()
	}
	switch normalize.KindOf(e.Type) {
	case normalize.KindDateTime:
		if t, err := normalize.ParseTime(e.Value.String()); err == nil {
			return t.In(loc).Format(displayDateTimeLayout)
		}
	case normalize.KindDate:
		if t, err := normalize.ParseTime(e.Value.String()); err == nil {
			return t.Format(displayDateLayout)
		}
	}
	return e.Value.String()
}

// Custom is the option synthesized from typed text.
func Custom(text string) Option {
	return Option{ID: text, Label: text, Value: text, Store: text, IsCustom: true}
}

// CreateLabel is the affordance shown for a custom value.
func CreateLabel(text string) string {
	return fmt.Sprintf("Create '%s'", text)
}
