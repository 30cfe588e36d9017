//go:build integration

package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
	"github.com/formdeck/core/internal/pkg/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresReconcileListAndData(t *testing.T) {
	e := newEnvOn(t, dbtest.OpenPostgres(t))
	ctx := context.Background()

	m := e.module(t, "Sales")
	orders := e.form(t, m.ID, "Orders")
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	e.record(t, orders.ID, base, map[string]any{"name": entry("Name", "text", "Acme Co")})
	e.record(t, orders.ID, base.Add(time.Hour), map[string]any{
		"name":  entry("Name", "text", "Globex"),
		"total": entry("Total", "currency", "12.50"),
	})

	_, err := e.registry.Reconcile(ctx)
	require.NoError(t, err)

	list, err := e.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 7)
	assert.Equal(t, models.LookupSourceStatic, list[0].Type)
	assert.Equal(t, models.LookupSourceModule, list[5].Type)
	assert.Equal(t, models.LookupSourceForm, list[6].Type)
	assert.EqualValues(t, 2, list[6].RecordCount)
	assert.EqualValues(t, 2, list[5].RecordCount)

	got, err := e.svc.GetData(ctx, DataQuery{SourceID: FormSourceID(orders.ID), Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	name, _ := got[0].Field("name")
	assert.Equal(t, "Globex", name.Value.V)
	total, _ := got[0].Field("total")
	assert.Equal(t, normalize.KindNumber, total.Value.Kind)
	assert.Equal(t, 12.5, total.Value.V)
}

func TestPostgresSyncUpsert(t *testing.T) {
	e := newEnvOn(t, dbtest.OpenPostgres(t))
	ctx := context.Background()

	m := e.module(t, "Ops")
	f := e.form(t, m.ID, "Tickets")
	s := e.section(t, f.ID)
	field := lookupField(&s.ID, nil, "lookup_countries")
	require.NoError(t, e.db.Create(field).Error)

	e.linker.Sync(ctx, field)
	e.linker.Sync(ctx, field)

	refs, err := e.linker.References(ctx, "lookup_countries")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, RelationID("lookup_countries", field.ID), refs[0].RelationID)
	assert.Equal(t, "Tickets", refs[0].FormName)
}
