package option

import (
	"testing"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acmeRecord() normalize.Record {
	return normalize.FromStored("01HXACME", []byte(`{
		"fld-name": {"label": "Name", "type": "text", "value": "Acme Co"},
		"fld-code": {"label": "Code", "type": "text", "value": "AC-1"},
		"fld-since": {"label": "Since", "type": "datetime", "value": "2024-03-05T15:04:05Z"},
		"fld-opened": {"label": "Opened", "type": "date", "value": "2024-03-05"}
	}`), normalize.Origin{})
}

func TestResolveOrder(t *testing.T) {
	rec := acmeRecord()

	e, ok := Resolve(&rec, "fld-code")
	require.True(t, ok)
	assert.Equal(t, "AC-1", e.Value.V)

	e, ok = Resolve(&rec, "name")
	require.True(t, ok)
	assert.Equal(t, "fld-name", e.Key)

	_, ok = Resolve(&rec, "missing")
	assert.False(t, ok)
	_, ok = Resolve(&rec, "")
	assert.False(t, ok)
}

func TestBuildStoresNameNotID(t *testing.T) {
	rec := acmeRecord()
	opt := Build(&rec, models.LookupFieldMapping{Display: "Name", Value: "id", Store: "Name"}, nil)

	assert.Equal(t, "Acme Co", opt.Label)
	assert.Equal(t, "01HXACME", opt.Value)
	assert.Equal(t, "Acme Co", opt.Store)
	assert.False(t, opt.IsCustom)

	p := NewPicker(&models.LookupFieldConfig{}, []Option{opt})
	p.Select(opt)
	assert.Equal(t, "Acme Co", p.Stored())
}

func TestBuildStoreDiffersFromValue(t *testing.T) {
	rec := acmeRecord()
	opt := Build(&rec, models.LookupFieldMapping{Display: "Name", Value: "Code", Store: "Name"}, nil)
	assert.Equal(t, "AC-1", opt.Value)
	assert.Equal(t, "Acme Co", opt.Store)

	p := NewPicker(nil, []Option{opt})
	p.Select(opt)
	assert.NotEqual(t, opt.Value, p.Stored())
}

func TestBuildFallbacks(t *testing.T) {
	rec := acmeRecord()
	opt := Build(&rec, models.LookupFieldMapping{Display: "Nope"}, nil)
	assert.Equal(t, "Item 01HXACME", opt.Label)
	assert.Equal(t, "01HXACME", opt.Store)
}

func TestFormatDisplay(t *testing.T) {
	rec := acmeRecord()
	since, _ := rec.Field("fld-since")
	opened, _ := rec.Field("fld-opened")

	assert.Equal(t, "3/5/2024, 3:04:05 PM", FormatDisplay(since, nil))
	assert.Equal(t, "3/5/2024, 4:04:05 PM", FormatDisplay(since, time.FixedZone("CET", 3600)))
	assert.Equal(t, "3/5/2024", FormatDisplay(opened, nil))

	num := normalize.Entry{Type: normalize.TypeNumber, Value: normalize.Coerce(normalize.TypeNumber, "1.50")}
	assert.Equal(t, "1.5", FormatDisplay(num, nil))

	broken := normalize.Entry{Type: normalize.TypeDate, Value: normalize.Coerce(normalize.TypeDate, "soon")}
	assert.Equal(t, "soon", FormatDisplay(broken, nil))
}

func TestCustomValueFlow(t *testing.T) {
	rec := acmeRecord()
	opts := BuildAll([]normalize.Record{rec}, models.LookupFieldMapping{Display: "Name", Store: "Name"}, nil)
	p := NewPicker(&models.LookupFieldConfig{Searchable: true}, opts)

	assert.Empty(t, p.Search("Bespoke"))
	require.True(t, p.CanCreate("Bespoke Corp"))
	assert.Equal(t, "Create 'Bespoke Corp'", CreateLabel("Bespoke Corp"))

	o, ok := p.Create("Bespoke Corp")
	require.True(t, ok)
	assert.True(t, o.IsCustom)
	assert.Equal(t, Option{ID: "Bespoke Corp", Label: "Bespoke Corp", Value: "Bespoke Corp", Store: "Bespoke Corp", IsCustom: true}, o)
	assert.Equal(t, "Bespoke Corp", p.Stored())

	assert.False(t, p.CanCreate("acme co"))
	assert.False(t, p.CanCreate("   "))
}

func TestCustomValuesDisabled(t *testing.T) {
	off := false
	p := NewPicker(&models.LookupFieldConfig{AllowCustomValues: &off}, nil)
	assert.False(t, p.CanCreate("Anything"))
	_, ok := p.Create("Anything")
	assert.False(t, ok)
	assert.Nil(t, p.Stored())
}

func TestMultiSelectAccumulates(t *testing.T) {
	rec := acmeRecord()
	opt := Build(&rec, models.LookupFieldMapping{Display: "Name", Store: "Code"}, nil)
	p := NewPicker(&models.LookupFieldConfig{Multiple: true}, []Option{opt})

	p.Select(opt)
	p.Select(opt)
	_, ok := p.Create("Other")
	require.True(t, ok)

	require.Len(t, p.Selected(), 2)
	assert.Equal(t, []any{"AC-1", "Other"}, p.Stored())

	p.Deselect(opt.ID)
	assert.Equal(t, []any{"Other"}, p.Stored())
}

func TestDeselectLeavesEarlierSelectionIntact(t *testing.T) {
	a, b := Custom("a"), Custom("b")
	p := NewPicker(&models.LookupFieldConfig{Multiple: true}, nil)
	p.Select(a)
	p.Select(b)

	before := p.Selected()
	p.Deselect("a")

	assert.Equal(t, []Option{a, b}, before)
	assert.Equal(t, []Option{b}, p.Selected())
}
