package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// HeaderSpec is the resolved header of one run. It is immutable: accessors
// return copies.
type HeaderSpec struct {
	names       []string
	keys        []string
	synthesized bool
}

// Len is the number of header fields every data row is measured against.
func (h HeaderSpec) Len() int { return len(h.names) }

// Names returns the header fields as they appeared in the input (or as
// synthesized).
func (h HeaderSpec) Names() []string { return append([]string(nil), h.names...) }

// Keys returns the field keys used to build raw field maps. Recognized
// names are replaced by their canonical key; unknown names pass through.
func (h HeaderSpec) Keys() []string { return append([]string(nil), h.keys...) }

// Synthesized reports whether the input header was unrecognizable and a
// canonical header was generated in its place.
func (h HeaderSpec) Synthesized() bool { return h.synthesized }

// Zip pairs a row with the header keys. The row must be at least as long as
// the header; extra fields are ignored. When two columns resolve to the
// same key the first non-blank value is kept.
func (h HeaderSpec) Zip(row RawRow) map[string]any {
	m := make(map[string]any, len(h.keys))
	for i, k := range h.keys {
		if prev, ok := m[k].(string); ok && strings.TrimSpace(prev) != "" {
			continue
		}
		m[k] = row[i]
	}
	return m
}

// HeaderResolver decides whether a header row names known fields.
type HeaderResolver struct {
	known map[string]string // folded name -> canonical key
}

// NewHeaderResolver builds a resolver. Canonical keys and their localized
// aliases are always known; aliases adds alternative spellings mapped to a
// canonical key, and extra adds names that count as recognized but keep
// their own key.
func NewHeaderResolver(aliases map[string]string, extra []string) *HeaderResolver {
	r := &HeaderResolver{known: make(map[string]string)}
	for _, key := range CanonicalOrder {
		r.known[foldName(key)] = key
		r.known[foldName(LocalizedAliases[key])] = key
	}
	for alias, key := range aliases {
		r.known[foldName(alias)] = key
	}
	for _, name := range extra {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.known[foldName(name)]; !ok {
			r.known[foldName(name)] = name
		}
	}
	return r
}

// Known reports whether name is a recognized header and returns its key.
func (r *HeaderResolver) Known(name string) (string, bool) {
	key, ok := r.known[foldName(name)]
	return key, ok
}

// Resolve tokenizes the header row. When at least one field is recognized
// the header is kept. Otherwise a canonical header is synthesized with as
// many fields as the first data row, padding past the canonical list with
// field{k} placeholders.
func (r *HeaderResolver) Resolve(header LogicalRow, data []LogicalRow) (HeaderSpec, error) {
	fields := Tokenize(header.Text)

	spec := HeaderSpec{
		names: make([]string, len(fields)),
		keys:  make([]string, len(fields)),
	}
	recognized := false
	for i, f := range fields {
		name := strings.TrimSpace(f)
		spec.names[i] = name
		spec.keys[i] = name
		if key, ok := r.Known(name); ok {
			spec.keys[i] = key
			recognized = true
		}
	}
	if recognized {
		return spec, nil
	}

	n := 0
	if len(data) > 0 {
		n = len(Tokenize(data[0].Text))
	}
	if n == 0 {
		return HeaderSpec{}, ErrEmptyHeader
	}
	return synthesizeHeader(n), nil
}

func synthesizeHeader(n int) HeaderSpec {
	names := make([]string, n)
	for i := range names {
		if i < len(CanonicalOrder) {
			names[i] = CanonicalOrder[i]
		} else {
			names[i] = fmt.Sprintf("field%d", i+1)
		}
	}
	return HeaderSpec{names: names, keys: append([]string(nil), names...), synthesized: true}
}

// foldName normalizes a header name for comparison. A Caser is not safe
// for concurrent use, so each call gets its own.
func foldName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
