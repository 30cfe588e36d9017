package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Entry is one field of a normalized record.
type Entry struct {
	Key        string
	Label      string
	Type       FieldType
	Value      Value
	Validation json.RawMessage
	Options    json.RawMessage
}

type entryJSON struct {
	FieldValue any             `json:"field_value"`
	FieldLabel string          `json:"field_label"`
	FieldType  FieldType       `json:"field_type"`
	Validation json.RawMessage `json:"validation,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// Origin tags a record with where it came from.
type Origin struct {
	FormID      string
	FormName    string
	ModuleID    string
	SubmittedAt time.Time
}

// Record is the origin-independent shape lookup consumers map over.
type Record struct {
	RecordID string
	Origin   Origin
	Entries  []Entry

	// static is the catalog item as stored, with record_id stamped in.
	static json.RawMessage
}

// Field returns the entry stored under key.
func (r *Record) Field(key string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Matches reports whether some entry's value contains term, case-insensitively.
// The record id and origin tags are not searched.
func (r *Record) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, e := range r.Entries {
		if strings.Contains(strings.ToLower(e.Value.String()), term) {
			return true
		}
	}
	return false
}

// reservedKeys are the record-level keys a dynamic record writes itself.
var reservedKeys = map[string]bool{
	"record_id":    true,
	"form_id":      true,
	"form_name":    true,
	"module_id":    true,
	"submitted_at": true,
}

// outputKey renames an entry whose key collides with a record-level key.
func outputKey(key string) string {
	if reservedKeys[key] {
		return "field_" + key
	}
	return key
}

// MarshalJSON emits static items as stored and dynamic records as
// {record_id, <key>: {field_value, field_label, field_type, ...}}.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.static != nil {
		return r.static, nil
	}

	var buf bytes.Buffer
	buf.WriteString(`{"record_id":`)
	id, _ := json.Marshal(r.RecordID)
	buf.Write(id)

	writeTag := func(key, value string) {
		if value == "" {
			return
		}
		k, _ := json.Marshal(key)
		v, _ := json.Marshal(value)
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	writeTag("form_id", r.Origin.FormID)
	writeTag("form_name", r.Origin.FormName)
	writeTag("module_id", r.Origin.ModuleID)
	if !r.Origin.SubmittedAt.IsZero() {
		writeTag("submitted_at", r.Origin.SubmittedAt.UTC().Format(time.RFC3339))
	}

	for _, e := range r.Entries {
		k, err := json.Marshal(outputKey(e.Key))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(entryJSON{
			FieldValue: e.Value.V,
			FieldLabel: e.Label,
			FieldType:  e.Type,
			Validation: e.Validation,
			Options:    e.Options,
		})
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromStored flattens a stored record's data object. Entries keep document order.
// Bare values (legacy rows) become entries labelled by their key.
func FromStored(recordID string, data []byte, origin Origin) Record {
	rec := Record{RecordID: recordID, Origin: origin}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return rec
	}
	parsed.ForEach(func(key, v gjson.Result) bool {
		rec.Entries = append(rec.Entries, storedEntry(key.String(), v))
		return true
	})
	return rec
}

func storedEntry(key string, v gjson.Result) Entry {
	if v.IsObject() && v.Get("value").Exists() {
		label := v.Get("label").String()
		if label == "" {
			label = key
		}
		t := FieldType(v.Get("type").String())
		if t == "" {
			t = inferType(v.Get("value"))
		}
		return Entry{
			Key:        key,
			Label:      label,
			Type:       t,
			Value:      Coerce(t, v.Get("value").Value()),
			Validation: embeddedJSON(v.Get("validation")),
			Options:    embeddedJSON(v.Get("options")),
		}
	}
	t := inferType(v)
	return Entry{Key: key, Label: key, Type: t, Value: Coerce(t, v.Value())}
}

// embeddedJSON accepts inline JSON or JSON encoded as a string. A string that
// does not parse is kept as a plain JSON string.
func embeddedJSON(v gjson.Result) json.RawMessage {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	if v.Type == gjson.String {
		s := strings.TrimSpace(v.String())
		if s == "" {
			return nil
		}
		if gjson.Valid(s) {
			return json.RawMessage(s)
		}
		return json.RawMessage(v.Raw)
	}
	return json.RawMessage(v.Raw)
}

func inferType(v gjson.Result) FieldType {
	switch v.Type {
	case gjson.Number:
		return TypeNumber
	case gjson.True, gjson.False:
		return TypeCheckbox
	default:
		return TypeText
	}
}

// FromStatic wraps one catalog item. record_id defaults to the item's id, or a
// random id when the item has none.
func FromStatic(item gjson.Result) (Record, error) {
	id := item.Get("id").String()
	if id == "" {
		id = uuid.NewString()
	}
	stamped, err := sjson.SetBytes([]byte(item.Raw), "record_id", id)
	if err != nil {
		return Record{}, err
	}

	rec := Record{RecordID: id, static: stamped}
	item.ForEach(func(key, v gjson.Result) bool {
		t := inferType(v)
		rec.Entries = append(rec.Entries, Entry{
			Key:   key.String(),
			Label: key.String(),
			Type:  t,
			Value: Value{Kind: KindRaw, V: v.Value()},
		})
		return true
	})
	return rec, nil
}

// Keys returns the keys of a JSON object in document order.
func Keys(item gjson.Result) []string {
	keys := []string{}
	item.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}
