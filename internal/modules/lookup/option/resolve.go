// Package option applies a lookup field mapping to normalized records,
// producing the selectable options a lookup field offers.
package option

import (
	"strings"

	"github.com/formdeck/core/internal/modules/lookup/normalize"
)

// Strategy finds the entry a mapping name refers to.
type Strategy func(rec *normalize.Record, name string) (normalize.Entry, bool)

// Strategies are tried in order; the first hit wins.
var Strategies = []Strategy{ExactKey, LabelScan}

// ExactKey matches the entry stored under name.
func ExactKey(rec *normalize.Record, name string) (normalize.Entry, bool) {
	return rec.Field(name)
}

// LabelScan matches the first entry whose label equals name, ignoring case.
func LabelScan(rec *normalize.Record, name string) (normalize.Entry, bool) {
	for _, e := range rec.Entries {
		if strings.EqualFold(strings.TrimSpace(e.Label), strings.TrimSpace(name)) {
			return e, true
		}
	}
	return normalize.Entry{}, false
}

// Resolve runs Strategies against rec.
func Resolve(rec *normalize.Record, name string) (normalize.Entry, bool) {
	if name == "" {
		return normalize.Entry{}, false
	}
	for _, s := range Strategies {
		if e, ok := s(rec, name); ok {
			return e, true
		}
	}
	return normalize.Entry{}, false
}
