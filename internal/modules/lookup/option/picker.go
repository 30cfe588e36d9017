package option

import (
	"strings"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
)

// Picker is the selection state of one lookup field.
type Picker struct {
	options     []Option
	multiple    bool
	allowCustom bool
	selected    []Option
}

// NewPicker builds a picker over options using the field's lookup settings.
func NewPicker(cfg *models.LookupFieldConfig, options []Option) *Picker {
	p := &Picker{options: options, allowCustom: true}
	if cfg != nil {
		p.multiple = cfg.Multiple
		p.allowCustom = cfg.CustomValuesAllowed()
	}
	return p
}

// Options returns all options.
func (p *Picker) Options() []Option { return p.options }

// Search keeps options whose label contains term, ignoring case.
func (p *Picker) Search(term string) []Option {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return p.options
	}
	out := []Option{}
	for _, o := range p.options {
		if strings.Contains(strings.ToLower(o.Label), term) {
			out = append(out, o)
		}
	}
	return out
}

// CanCreate reports whether text may become a custom value: custom values are
// allowed and no option has it as label or store value.
func (p *Picker) CanCreate(text string) bool {
	text = strings.TrimSpace(text)
	if !p.allowCustom || text == "" {
		return false
	}
	for _, o := range p.options {
		if strings.EqualFold(o.Label, text) || strings.EqualFold(normalize.Stringify(o.Store), text) {
			return false
		}
	}
	return true
}

// Select picks o. Single pickers replace the selection; multi pickers
// accumulate it, ignoring repeats.
func (p *Picker) Select(o Option) {
	if !p.multiple {
		p.selected = []Option{o}
		return
	}
	for _, s := range p.selected {
		if s.ID == o.ID && s.IsCustom == o.IsCustom {
			return
		}
	}
	p.selected = append(p.selected, o)
}

// Create selects a custom value for text when allowed.
func (p *Picker) Create(text string) (Option, bool) {
	if !p.CanCreate(text) {
		return Option{}, false
	}
	o := Custom(strings.TrimSpace(text))
	p.Select(o)
	return o, true
}

// Deselect drops the selected option with id.
func (p *Picker) Deselect(id string) {
	kept := make([]Option, 0, len(p.selected))
	for _, s := range p.selected {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	p.selected = kept
}

// Selected returns a copy of the current selection.
func (p *Picker) Selected() []Option { return append([]Option(nil), p.selected...) }

// Stored is what gets persisted into the submitting record: the store value of
// the selection, or a slice of them for multi pickers.
func (p *Picker) Stored() any {
	if p.multiple {
		out := make([]any, 0, len(p.selected))
		for _, s := range p.selected {
			out = append(out, s.Store)
		}
		return out
	}
	if len(p.selected) == 0 {
		return nil
	}
	return p.selected[0].Store
}
