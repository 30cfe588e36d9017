// Package normalize turns stored form records and static catalog items into
// the origin-independent record shape served by lookup reads.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// FieldType is the builder type of a stored field.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypeNumber   FieldType = "number"
	TypeCurrency FieldType = "currency"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeCheckbox FieldType = "checkbox"
	TypeSwitch   FieldType = "switch"
	TypeTel      FieldType = "tel"
	TypeEmail    FieldType = "email"
	TypeURL      FieldType = "url"
	TypeSelect   FieldType = "select"
	TypeRadio    FieldType = "radio"
	TypeLookup   FieldType = "lookup"
)

// Kind is the coercion variant a field type maps to.
type Kind int

const (
	KindRaw Kind = iota
	KindNumber
	KindDate
	KindDateTime
	KindBool
	KindString
)

// KindOf maps a field type to its coercion variant. Unknown types keep raw values.
func KindOf(t FieldType) Kind {
	switch FieldType(strings.ToLower(string(t))) {
	case TypeNumber, TypeCurrency:
		return KindNumber
	case TypeDate:
		return KindDate
	case TypeDateTime, "datetime-local":
		return KindDateTime
	case TypeCheckbox, TypeSwitch:
		return KindBool
	case TypeTel, TypeEmail, TypeURL:
		return KindString
	default:
		return KindRaw
	}
}

// Value is a coerced field value. V holds the coerced value, or the raw value
// when coercion failed (Fallback is then true).
type Value struct {
	Kind     Kind
	V        any
	Fallback bool
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

// Coerce converts raw according to the variant of t.
func Coerce(t FieldType, raw any) Value {
	kind := KindOf(t)
	if raw == nil {
		return Value{Kind: kind}
	}
	var (
		v   any
		err error
	)
	switch kind {
	case KindNumber:
		v, err = toNumber(raw)
	case KindDate:
		v, err = toTime(raw, dateLayout)
	case KindDateTime:
		v, err = toTime(raw, dateTimeLayout)
	case KindBool:
		v = toBool(raw)
	case KindString:
		v = Stringify(raw)
	case KindRaw:
		v = raw
	}
	if err != nil {
		return Value{Kind: kind, V: raw, Fallback: true}
	}
	return Value{Kind: kind, V: v}
}

// String renders the value for search and display.
func (v Value) String() string {
	return Stringify(v.V)
}

func toNumber(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %T", raw)
	}
}

// datePart matches the year-month-day or month/day/year portion the loose
// formats must carry; without one jinzhu/now fills the date from today.
var datePart = regexp.MustCompile(`\d{1,4}[-/]\d{1,2}`)

var looseTime = &now.Config{TimeLocation: time.UTC}

// ParseTime accepts RFC 3339 first and then the loose formats jinzhu/now knows,
// read as UTC. Inputs without a date component are rejected.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if !datePart.MatchString(s) {
		return time.Time{}, fmt.Errorf("no date in %q", s)
	}
	return looseTime.Parse(s)
}

func toTime(raw any, layout string) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("not a time: %T", raw)
	}
	t, err := ParseTime(s)
	if err != nil {
		return "", err
	}
	if layout == dateLayout {
		return t.Format(dateLayout), nil
	}
	return t.UTC().Format(dateTimeLayout), nil
}

func toBool(raw any) bool {
	switch b := raw.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "no", "off":
			return false
		}
		return true
	case []any:
		return len(b) > 0
	default:
		return true
	}
}

// Stringify renders any decoded JSON value as text.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, Stringify(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
