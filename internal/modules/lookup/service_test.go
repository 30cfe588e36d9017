package lookup

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/formdeck/core/internal/models"
	"github.com/formdeck/core/internal/modules/lookup/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(t *testing.T, records []normalize.Record) []string {
	t.Helper()
	out := make([]string, 0, len(records))
	for _, r := range records {
		e, ok := r.Field("name")
		require.True(t, ok)
		out = append(out, e.Value.String())
	}
	return out
}

func TestGetDataStaticSearch(t *testing.T) {
	e := newEnv(t)
	got, err := e.svc.GetData(context.Background(), DataQuery{SourceID: "lookup_countries", Search: "united"})
	require.NoError(t, err)
	assert.Equal(t, []string{"United States", "United Kingdom"}, names(t, got))
	assert.Equal(t, "US", got[0].RecordID)

	raw, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"US","name":"United States","code":"US","continent":"North America","record_id":"US"}`, string(raw))
}

func TestGetDataStaticWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	got, err := e.svc.GetData(ctx, DataQuery{SourceID: "lookup_countries", Search: "United", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"United States"}, names(t, got))

	got, err = e.svc.GetData(ctx, DataQuery{SourceID: "lookup_countries", Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"United Kingdom", "Germany"}, names(t, got))

	got, err = e.svc.GetData(ctx, DataQuery{SourceID: "lookup_countries", Offset: 1000})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetDataUnknownSource(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, id := range []string{"lookup_planets", "form_missing", "whatever"} {
		got, err := e.svc.GetData(ctx, DataQuery{SourceID: id})
		require.NoError(t, err, id)
		assert.NotNil(t, got, id)
		assert.Empty(t, got, id)
	}

	_, err := e.svc.GetData(ctx, DataQuery{})
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestGetDataFormNewestFirstWithCoercion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "CRM")
	f := e.form(t, m.ID, "Companies")
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	e.record(t, f.ID, base, map[string]any{
		"n": entry("Name", "text", "Globex"),
		"e": entry("Employees", "number", "abc"),
	})
	newest := e.record(t, f.ID, base.Add(time.Hour), map[string]any{
		"n": entry("Name", "text", "Acme Co"),
		"e": entry("Employees", "number", "12"),
		"d": entry("Founded", "date", "2001-02-03T00:00:00Z"),
		"c": entry("Active", "checkbox", "on"),
	})

	got, err := e.svc.GetData(ctx, DataQuery{SourceID: FormSourceID(f.ID)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newest.ID, got[0].RecordID)

	emp, _ := got[0].Field("e")
	assert.Equal(t, 12.0, emp.Value.V)
	founded, _ := got[0].Field("d")
	assert.Equal(t, "2001-02-03", founded.Value.V)
	active, _ := got[0].Field("c")
	assert.Equal(t, true, active.Value.V)

	broken, _ := got[1].Field("e")
	assert.Equal(t, "abc", broken.Value.V)

	// record_id and origin tags never match a search
	got, err = e.svc.GetData(ctx, DataQuery{SourceID: FormSourceID(f.ID), Search: "acme"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	got, err = e.svc.GetData(ctx, DataQuery{SourceID: FormSourceID(f.ID), Search: strings.ToLower(newest.ID)})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.svc.GetData(ctx, DataQuery{SourceID: FormSourceID(f.ID), Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	n, _ := got[0].Field("n")
	assert.Equal(t, "Globex", n.Value.V)
}

func TestGetDataFormSearchProperty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "CRM")
	f := e.form(t, m.ID, "Contacts")
	base := time.Now()
	for i, name := range []string{"Alice", "Bob", "Alicia", "Carol"} {
		e.record(t, f.ID, base.Add(time.Duration(i)*time.Second), map[string]any{"n": entry("Name", "text", name)})
	}

	for _, term := range []string{"ali", "o", "zzz"} {
		got, err := e.svc.GetData(ctx, DataQuery{SourceID: FormSourceID(f.ID), Search: term})
		require.NoError(t, err)
		for _, r := range got {
			assert.True(t, r.Matches(term), term)
		}
	}
}

func TestGetDataModuleShare(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Big")
	forms := []*models.FormModel{
		e.form(t, m.ID, "A"),
		e.form(t, m.ID, "B"),
		e.form(t, m.ID, "C"),
	}
	for _, f := range forms {
		e.bulkRecords(t, f.ID, 100)
	}

	got, err := e.svc.GetData(ctx, DataQuery{SourceID: ModuleSourceID(m.ID), Limit: 30})
	require.NoError(t, err)
	assert.Len(t, got, 9)

	perForm := map[string]int{}
	for _, r := range got {
		perForm[r.Origin.FormID]++
		assert.Equal(t, m.ID, r.Origin.ModuleID)
		assert.NotEmpty(t, r.Origin.FormName)
	}
	for _, f := range forms {
		assert.Equal(t, 3, perForm[f.ID])
	}

	// offset skips offset/10 per form
	page, err := e.svc.GetData(ctx, DataQuery{SourceID: ModuleSourceID(m.ID), Limit: 30, Offset: 30})
	require.NoError(t, err)
	require.Len(t, page, 9)
	title, _ := page[0].Field("title")
	assert.Equal(t, "row 96", title.Value.V)

	small, err := e.svc.GetData(ctx, DataQuery{SourceID: ModuleSourceID(m.ID), Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, small)
}

func TestGetDataModuleSearch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Big")
	a := e.form(t, m.ID, "A")
	b := e.form(t, m.ID, "B")
	e.bulkRecords(t, a.ID, 100)
	e.bulkRecords(t, b.ID, 100)
	e.record(t, b.ID, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), map[string]any{
		"title": entry("Title", "text", "ROW 98 copy"),
	})

	// newest three per form: A 99..97, B copy + 99..98
	got, err := e.svc.GetData(ctx, DataQuery{SourceID: ModuleSourceID(m.ID), Search: "row 98", Limit: 30})
	require.NoError(t, err)
	require.Len(t, got, 3)

	var titles []string
	for _, r := range got {
		title, ok := r.Field("title")
		require.True(t, ok)
		titles = append(titles, title.Value.String())
		assert.Equal(t, m.ID, r.Origin.ModuleID)
	}
	assert.ElementsMatch(t, []string{"row 98", "ROW 98 copy", "row 98"}, titles)

	// the record id and origin tags are not searched
	none, err := e.svc.GetData(ctx, DataQuery{SourceID: ModuleSourceID(m.ID), Search: a.ID, Limit: 30})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetDataModuleNeverExceedsLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.module(t, "Wide")
	for i := 0; i < 12; i++ {
		f := e.form(t, m.ID, "F")
		e.bulkRecords(t, f.ID, 2)
	}
	got, err := e.svc.GetData(ctx, DataQuery{SourceID: ModuleSourceID(m.ID), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestGetFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fields, err := e.svc.GetFields(ctx, "lookup_countries")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "code", "continent"}, fields)

	m := e.module(t, "HR")
	people := e.form(t, m.ID, "People")
	empty := e.form(t, m.ID, "Empty")

	fields, err = e.svc.GetFields(ctx, FormSourceID(empty.ID))
	require.NoError(t, err)
	assert.Equal(t, implicitFormFields, fields)

	base := time.Now()
	e.record(t, people.ID, base, map[string]any{"old": entry("Retired", "text", "x")})
	e.record(t, people.ID, base.Add(time.Minute), map[string]any{
		"f1":    entry("Full Name", "text", "Ann"),
		"plain": "legacy",
		"f2":    entry("name", "text", "dup"),
	})

	fields, err = e.svc.GetFields(ctx, FormSourceID(people.ID))
	require.NoError(t, err)
	assert.Equal(t, []string{"Full Name", "name", "plain", "id", "title", "description", "createdAt", "updatedAt"}, fields)
	assert.NotContains(t, fields, "Retired")

	fields, err = e.svc.GetFields(ctx, ModuleSourceID(m.ID))
	require.NoError(t, err)
	assert.Contains(t, fields, "Full Name")
	assert.Contains(t, fields, "updatedAt")

	fields, err = e.svc.GetFields(ctx, "form_unknown")
	require.NoError(t, err)
	assert.Equal(t, []string{}, fields)
}

func TestGetFieldsEmptyStatic(t *testing.T) {
	e := newEnv(t)
	key := "empty"
	require.NoError(t, e.db.Create(&models.LookupSourceModel{
		ID: "lookup_empty", Name: "Empty", Type: models.LookupSourceStatic,
		StaticSourceName: &key, Data: []byte(`[]`), Active: true,
	}).Error)

	fields, err := e.svc.GetFields(context.Background(), "lookup_empty")
	require.NoError(t, err)
	assert.Equal(t, []string{}, fields)
}
