// Package intel defines the intelligence record shared by every stage of the
// extraction engine: the per-extractor results, the cleansed per-turn record
// and the append-only session accumulator all use the same Record type.
//
// A Record is a set per category. Values are trimmed, non-empty, unique by
// exact string and kept sorted, so set union is order independent and
// idempotent by construction.
package intel

import (
	"encoding/json"
	"sort"
	"strings"
)

// Category names one of the six intelligence categories.
type Category string

const (
	PhoneNumbers       Category = "phoneNumbers"
	UPIIDs             Category = "upiIds"
	BankAccounts       Category = "bankAccounts"
	PhishingLinks      Category = "phishingLinks"
	Emails             Category = "emails"
	SuspiciousKeywords Category = "suspiciousKeywords"
)

// Categories lists every category in canonical order.
var Categories = []Category{
	PhoneNumbers,
	UPIIDs,
	BankAccounts,
	PhishingLinks,
	Emails,
	SuspiciousKeywords,
}

// Valid reports whether c is one of the six known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Record maps each category to a set of strings.
type Record struct {
	PhoneNumbers       []string `json:"phoneNumbers"`
	UPIIDs             []string `json:"upiIds"`
	BankAccounts       []string `json:"bankAccounts"`
	PhishingLinks      []string `json:"phishingLinks"`
	Emails             []string `json:"emails"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// New returns an empty record.
func New() Record {
	return Record{}
}

func (r *Record) slot(c Category) *[]string {
	switch c {
	case PhoneNumbers:
		return &r.PhoneNumbers
	case UPIIDs:
		return &r.UPIIDs
	case BankAccounts:
		return &r.BankAccounts
	case PhishingLinks:
		return &r.PhishingLinks
	case Emails:
		return &r.Emails
	case SuspiciousKeywords:
		return &r.SuspiciousKeywords
	}
	return nil
}

// Values returns the values of one category. The returned slice must not be
// modified.
func (r Record) Values(c Category) []string {
	s := r.slot(c)
	if s == nil {
		return nil
	}
	return *s
}

// Contains reports whether v is present in category c.
func (r Record) Contains(c Category, v string) bool {
	vals := r.Values(c)
	i := sort.SearchStrings(vals, v)
	return i < len(vals) && vals[i] == v
}

// Add inserts values into category c. Values are trimmed; empty values and
// exact duplicates are ignored. Unknown categories are ignored.
func (r *Record) Add(c Category, values ...string) {
	s := r.slot(c)
	if s == nil || len(values) == 0 {
		return
	}
	*s = union(*s, values)
}

// Set replaces the values of category c, normalizing them like Add.
func (r *Record) Set(c Category, values []string) {
	s := r.slot(c)
	if s == nil {
		return
	}
	*s = union(nil, values)
}

// Union returns the per-category set union of r and other. Neither input is
// modified.
func (r Record) Union(other Record) Record {
	var out Record
	for _, c := range Categories {
		merged := union(r.Values(c), other.Values(c))
		*out.slot(c) = merged
	}
	return out
}

// UnionAll folds records together with Union.
func UnionAll(records ...Record) Record {
	var out Record
	for _, rec := range records {
		out = out.Union(rec)
	}
	return out
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	var out Record
	for _, c := range Categories {
		vals := r.Values(c)
		if len(vals) == 0 {
			continue
		}
		cp := make([]string, len(vals))
		copy(cp, vals)
		*out.slot(c) = cp
	}
	return out
}

// Normalize returns r with every category trimmed, deduplicated and sorted.
// Records built by hand or decoded from JSON should be normalized before use.
func (r Record) Normalize() Record {
	var out Record
	for _, c := range Categories {
		*out.slot(c) = union(nil, r.Values(c))
	}
	return out
}

// Equal reports whether r and other hold the same values in every category.
func (r Record) Equal(other Record) bool {
	for _, c := range Categories {
		a, b := r.Values(c), other.Values(c)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// Len returns the total number of values across all categories.
func (r Record) Len() int {
	n := 0
	for _, c := range Categories {
		n += len(r.Values(c))
	}
	return n
}

// IsEmpty reports whether every category is empty.
func (r Record) IsEmpty() bool {
	return r.Len() == 0
}

// Counts returns the number of values per category.
func (r Record) Counts() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = len(r.Values(c))
	}
	return out
}

// MarshalJSON always emits all six categories, with [] for empty ones.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := plain(r)
	for _, c := range Categories {
		s := (*Record)(&out).slot(c)
		if *s == nil {
			*s = []string{}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a record and normalizes it.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var in plain
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Record(in).Normalize()
	return nil
}

// union merges add into base and returns a new sorted, deduplicated slice.
// A nil result is returned when nothing survives.
func union(base, add []string) []string {
	if len(base) == 0 && len(add) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, group := range [][]string{base, add} {
		for _, v := range group {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
