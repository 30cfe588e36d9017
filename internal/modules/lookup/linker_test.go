package lookup

import (
	"context"
	"testing"

	"github.com/formdeck/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupField(sectionID, subformID *string, sourceID string) *models.FormFieldModel {
	return &models.FormFieldModel{
		SectionID: sectionID,
		SubformID: subformID,
		Type:      models.FieldTypeLookup,
		Label:     "Customer",
		Lookup: &models.LookupFieldConfig{
			SourceID:     sourceID,
			FieldMapping: models.LookupFieldMapping{Display: "Name", Value: "id", Store: "Name"},
			Searchable:   true,
		},
	}
}

func relations(t *testing.T, e *env, fieldID string) []models.LookupFieldRelationModel {
	t.Helper()
	var rels []models.LookupFieldRelationModel
	require.NoError(t, e.db.Where("form_field_id = ?", fieldID).Find(&rels).Error)
	return rels
}

func TestSyncIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Sales")
	target := e.form(t, m.ID, "Customers")
	owner := e.form(t, m.ID, "Orders")
	sec := e.section(t, owner.ID)

	f := lookupField(&sec.ID, nil, FormSourceID(target.ID))
	require.NoError(t, e.db.Create(f).Error)

	for i := 0; i < 3; i++ {
		e.linker.Sync(ctx, f)
	}
	rels := relations(t, e, f.ID)
	require.Len(t, rels, 1)
	assert.Equal(t, RelationID(FormSourceID(target.ID), f.ID), rels[0].ID)
	assert.Equal(t, owner.ID, rels[0].FormID)
	assert.Equal(t, m.ID, rels[0].ModuleID)
	assert.Equal(t, "Name", rels[0].DisplayField)
	assert.True(t, rels[0].Searchable)

	// the target source was registered on demand
	src, err := e.registry.Get(ctx, FormSourceID(target.ID))
	require.NoError(t, err)
	assert.NotNil(t, src)
}

func TestSyncRepointsAndUnlinks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Sales")
	owner := e.form(t, m.ID, "Orders")
	sec := e.section(t, owner.ID)

	f := lookupField(&sec.ID, nil, "lookup_countries")
	require.NoError(t, e.db.Create(f).Error)
	e.linker.Sync(ctx, f)

	f.Lookup.SourceID = "lookup_currencies"
	e.linker.Sync(ctx, f)
	rels := relations(t, e, f.ID)
	require.Len(t, rels, 1)
	assert.Equal(t, "lookup_currencies", rels[0].LookupSourceID)

	f.Type = "text"
	e.linker.Sync(ctx, f)
	assert.Empty(t, relations(t, e, f.ID))

	f.Type = models.FieldTypeLookup
	e.linker.Sync(ctx, f)
	e.linker.Unlink(ctx, f.ID)
	assert.Empty(t, relations(t, e, f.ID))
}

func TestSyncThroughSubform(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Ops")
	owner := e.form(t, m.ID, "Inspections")
	sec := e.section(t, owner.ID)
	sub := &models.SubformModel{SectionID: sec.ID, Name: "Lines"}
	require.NoError(t, e.db.Create(sub).Error)

	f := lookupField(nil, &sub.ID, ModuleSourceID(m.ID))
	require.NoError(t, e.db.Create(f).Error)
	e.linker.Sync(ctx, f)

	rels := relations(t, e, f.ID)
	require.Len(t, rels, 1)
	assert.Equal(t, owner.ID, rels[0].FormID)
	assert.Equal(t, ModuleSourceID(m.ID), rels[0].LookupSourceID)
}

func TestSyncSkipsOrphansAndUnknownSources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	missing := "no-such-section"
	orphan := lookupField(&missing, nil, "lookup_countries")
	require.NoError(t, e.db.Create(orphan).Error)
	e.linker.Sync(ctx, orphan)
	assert.Empty(t, relations(t, e, orphan.ID))

	m := e.module(t, "Sales")
	owner := e.form(t, m.ID, "Orders")
	sec := e.section(t, owner.ID)
	dangling := lookupField(&sec.ID, nil, "form_gone")
	require.NoError(t, e.db.Create(dangling).Error)
	e.linker.Sync(ctx, dangling)
	assert.Empty(t, relations(t, e, dangling.ID))

	e.linker.Sync(ctx, nil)
}

func TestReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Sales")
	target := e.form(t, m.ID, "Customers")
	owner := e.form(t, m.ID, "Orders")
	sec := e.section(t, owner.ID)

	f := lookupField(&sec.ID, nil, FormSourceID(target.ID))
	require.NoError(t, e.db.Create(f).Error)
	e.linker.Sync(ctx, f)

	refs, err := e.linker.References(ctx, FormSourceID(target.ID))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, Reference{
		RelationID: RelationID(FormSourceID(target.ID), f.ID),
		FieldID:    f.ID,
		FieldLabel: "Customer",
		FormID:     owner.ID,
		FormName:   "Orders",
		ModuleID:   m.ID,
	}, refs[0])

	none, err := e.linker.References(ctx, "lookup_statuses")
	require.NoError(t, err)
	assert.Empty(t, none)
}
