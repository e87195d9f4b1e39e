package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDialects(t *testing.T) {
	names := make([]string, 0)
	for _, d := range Dialects() {
		names = append(names, d.Name)
	}
	assert.Subset(t, names, []string{DialectCSV, DialectFeishu, DialectJSON})

	d, ok := LookupDialect(" CSV ")
	require.True(t, ok)
	assert.Equal(t, DialectCSV, d.Name)
	assert.True(t, d.Standardize)

	_, ok = LookupDialect("xlsx")
	assert.False(t, ok)
}

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  string
		want     string
	}{
		{name: "json extension", fileName: "roles.json", content: "", want: DialectJSON},
		{name: "json content", fileName: "", content: "  [{\"name\":\"A\"}]", want: DialectJSON},
		{name: "json content after bom", fileName: "", content: "\uFEFF[]", want: DialectJSON},
		{name: "localized markers", fileName: "roles.csv", content: "角色名,角色描述\nA,B", want: DialectFeishu},
		{name: "csv extension", fileName: "roles.csv", content: "name\nA", want: DialectCSV},
		{name: "tsv extension any case", fileName: "roles.TSV", content: "a\tb", want: DialectCSV},
		{name: "fallback", fileName: "notes.md", content: "name\nA", want: DialectCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDialect(tt.fileName, tt.content).Name)
		})
	}
}

func TestRegisterDialect(t *testing.T) {
	t.Cleanup(func() { unregisterDialect("test-custom") })

	err := RegisterDialect(Dialect{
		Name:    "Test-Custom",
		Format:  FormatDelimited,
		Aliases: map[string]string{"nom": FieldName, "texte": FieldDescription},
	})
	require.NoError(t, err)

	d, ok := LookupDialect("test-custom")
	require.True(t, ok)

	key, known := d.Resolver().Known("NOM")
	assert.True(t, known)
	assert.Equal(t, FieldName, key)

	assert.Error(t, RegisterDialect(Dialect{Name: "test-custom", Format: FormatDelimited}), "duplicate")
}

func TestDialect_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		wantErr bool
	}{
		{name: "valid", dialect: Dialect{Name: "x", Format: FormatJSON}},
		{name: "blank name", dialect: Dialect{Name: " ", Format: FormatJSON}, wantErr: true},
		{name: "unknown format", dialect: Dialect{Name: "x", Format: "xml"}, wantErr: true},
		{name: "alias to unknown field", dialect: Dialect{Name: "x", Format: FormatDelimited, Aliases: map[string]string{"a": "bogus"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dialect.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
