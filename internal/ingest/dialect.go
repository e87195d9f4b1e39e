package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Format is the payload shape a dialect accepts.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatJSON      Format = "json"
)

// Built-in dialect names.
const (
	DialectCSV    = "csv"
	DialectFeishu = "feishu"
	DialectJSON   = "json"
)

// Dialect describes one input convention.
type Dialect struct {
	Name   string
	Label  string
	Format Format

	// Aliases maps extra header spellings to canonical keys.
	Aliases map[string]string
	// KnownHeaders are names that mark a header as recognized without
	// mapping to a canonical key.
	KnownHeaders []string
	// Standardize rewrites the dominant separator to a comma before
	// splitting.
	Standardize bool
	// Markers are substrings whose presence in content selects this
	// dialect during auto-detection.
	Markers []string
	// Extensions are file extensions (".tsv") that select this dialect.
	Extensions []string
}

// Resolver builds the header resolver for the dialect.
func (d Dialect) Resolver() *HeaderResolver {
	return NewHeaderResolver(d.Aliases, d.KnownHeaders)
}

// Validate checks the dialect is usable.
func (d Dialect) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("dialect name is required")
	}
	switch d.Format {
	case FormatDelimited, FormatJSON:
	default:
		return fmt.Errorf("dialect %s: unknown format %q", d.Name, d.Format)
	}
	for alias, key := range d.Aliases {
		if !isCanonical(key) {
			return fmt.Errorf("dialect %s: alias %q maps to unknown field %q", d.Name, alias, key)
		}
	}
	return nil
}

func isCanonical(key string) bool {
	for _, k := range CanonicalOrder {
		if k == key {
			return true
		}
	}
	return false
}

var (
	dialects   = make(map[string]Dialect)
	dialectsMu sync.RWMutex
)

func init() {
	MustRegisterDialect(Dialect{
		Name:        DialectCSV,
		Label:       "Generic CSV",
		Format:      FormatDelimited,
		Standardize: true,
		Aliases: map[string]string{
			"character":   FieldName,
			"desc":        FieldDescription,
			"image":       FieldImageURL,
			"image_url":   FieldImageURL,
			"avatar":      FieldImageURL,
			"official":    FieldIsOfficial,
			"is_official": FieldIsOfficial,
			"author":      FieldCreator,
		},
		Extensions: []string{".csv", ".tsv", ".txt"},
	})
	MustRegisterDialect(Dialect{
		Name:   DialectFeishu,
		Label:  "Feishu export (localized headers)",
		Format: FormatDelimited,
		Aliases: map[string]string{
			"角色名称": FieldName,
			"名称":   FieldName,
			"描述":   FieldDescription,
			"性格":   FieldPersonality,
			"类型":   FieldType,
			"头像":   FieldImageURL,
		},
		Markers: []string{LocalizedAliases[FieldName], LocalizedAliases[FieldDescription]},
	})
	MustRegisterDialect(Dialect{
		Name:       DialectJSON,
		Label:      "JSON array",
		Format:     FormatJSON,
		Extensions: []string{".json"},
	})
}

// RegisterDialect adds d to the registry. Registering a name twice is an
// error.
func RegisterDialect(d Dialect) error {
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))
	if err := d.Validate(); err != nil {
		return err
	}

	dialectsMu.Lock()
	defer dialectsMu.Unlock()

	if _, exists := dialects[d.Name]; exists {
		return fmt.Errorf("dialect already registered: %s", d.Name)
	}
	dialects[d.Name] = d
	return nil
}

// MustRegisterDialect is RegisterDialect for init-time registration.
func MustRegisterDialect(d Dialect) {
	if err := RegisterDialect(d); err != nil {
		panic(err)
	}
}

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (Dialect, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()

	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Dialects returns all registered dialects sorted by name.
func Dialects() []Dialect {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()

	result := make([]Dialect, 0, len(dialects))
	for _, d := range dialects {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// unregisterDialect removes a dialect. Tests only.
func unregisterDialect(name string) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	delete(dialects, name)
}

// DetectDialect picks a dialect from the file name and content. A JSON
// extension or a payload starting with '[' selects JSON; otherwise the
// first dialect whose markers appear in content wins, then a matching
// extension; generic CSV is the fallback.
func DetectDialect(fileName, content string) Dialect {
	all := Dialects()
	ext := strings.ToLower(filepath.Ext(fileName))

	if ext == ".json" || strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(content, "\uFEFF")), "[") {
		if d, ok := LookupDialect(DialectJSON); ok {
			return d
		}
	}

	for _, d := range all {
		for _, m := range d.Markers {
			if m != "" && strings.Contains(content, m) {
				return d
			}
		}
	}

	if ext != "" {
		for _, d := range all {
			for _, e := range d.Extensions {
				if strings.EqualFold(e, ext) {
					return d
				}
			}
		}
	}

	d, _ := LookupDialect(DialectCSV)
	return d
}
