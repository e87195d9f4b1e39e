package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/JonMunkholm/charimport/internal/ingest"
)

// dialectFile is the TOML layout of IMPORT_DIALECTS_FILE:
//
//	[[dialect]]
//	name = "wps"
//	label = "WPS spreadsheet export"
//	format = "delimited"
//	standardize = true
//	markers = ["人物名"]
//	extensions = [".et"]
//	known_headers = ["编号"]
//
//	[dialect.aliases]
//	"人物名" = "name"
//	"简介" = "description"
type dialectFile struct {
	Dialects []dialectEntry `toml:"dialect"`
}

type dialectEntry struct {
	Name         string            `toml:"name"`
	Label        string            `toml:"label"`
	Format       string            `toml:"format"`
	Standardize  bool              `toml:"standardize"`
	Aliases      map[string]string `toml:"aliases"`
	KnownHeaders []string          `toml:"known_headers"`
	Markers      []string          `toml:"markers"`
	Extensions   []string          `toml:"extensions"`
}

// ParseDialects decodes dialect definitions from TOML. Unknown keys are
// rejected so a typo does not silently drop an alias table.
func ParseDialects(data string) ([]ingest.Dialect, error) {
	var f dialectFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parse dialects: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse dialects: unknown keys: %s", strings.Join(keys, ", "))
	}

	dialects := make([]ingest.Dialect, 0, len(f.Dialects))
	for i, e := range f.Dialects {
		format := ingest.Format(strings.ToLower(e.Format))
		if format == "" {
			format = ingest.FormatDelimited
		}
		d := ingest.Dialect{
			Name:         e.Name,
			Label:        e.Label,
			Format:       format,
			Standardize:  e.Standardize,
			Aliases:      e.Aliases,
			KnownHeaders: e.KnownHeaders,
			Markers:      e.Markers,
			Extensions:   normalizeExtensions(e.Extensions),
		}
		if d.Label == "" {
			d.Label = d.Name
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("dialect #%d: %w", i+1, err)
		}
		dialects = append(dialects, d)
	}
	return dialects, nil
}

// LoadDialects reads and parses the dialect file at path.
func LoadDialects(path string) ([]ingest.Dialect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialects file: %w", err)
	}
	return ParseDialects(string(data))
}

// RegisterDialects loads path and registers every dialect in it. An empty
// path is a no-op. It returns the names registered.
func RegisterDialects(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	dialects, err := LoadDialects(path)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(dialects))
	for _, d := range dialects {
		if err := ingest.RegisterDialect(d); err != nil {
			return names, err
		}
		names = append(names, strings.ToLower(d.Name))
	}
	return names, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
