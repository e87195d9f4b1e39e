package ingest

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBOMReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{name: "with bom", input: append([]byte{0xEF, 0xBB, 0xBF}, "name,desc"...), want: "name,desc"},
		{name: "without bom", input: []byte("name,desc"), want: "name,desc"},
		{name: "empty", input: []byte{}, want: ""},
		{name: "only bom", input: []byte{0xEF, 0xBB, 0xBF}, want: ""},
		{name: "partial bom kept", input: []byte{0xEF, 0xBB, 'a'}, want: string([]byte{0xEF, 0xBB, 'a'})},
		{name: "shorter than bom", input: []byte("a"), want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewBOMReader(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestUTF8Reader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "ascii", input: "hello,world", want: "hello,world"},
		{name: "multibyte", input: "角色名,标签", want: "角色名,标签"},
		{name: "invalid byte", input: "he\x80lo", want: "he\uFFFDlo"},
		{name: "truncated at eof", input: "ab\xe4\xb8", want: "ab\uFFFD\uFFFD"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewUTF8Reader(strings.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestUTF8Reader_SequenceSplitAcrossReads(t *testing.T) {
	// One byte per read forces every multi-byte rune to straddle reads.
	r := NewUTF8Reader(iotest.OneByteReader(strings.NewReader("小樱,魔卡少女樱")))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "小樱,魔卡少女樱", string(got))
}

func TestUTF8Reader_SmallDestination(t *testing.T) {
	r := NewUTF8Reader(strings.NewReader("a\x80b"))
	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "a\uFFFDb", string(out))
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	r := NewCountingReader(strings.NewReader(input), int64(len(input)))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, got, 1000)
	assert.Equal(t, int64(1000), r.BytesRead)
	assert.Equal(t, 100, r.Progress())

	unknown := NewCountingReader(strings.NewReader("abc"), 0)
	_, _ = io.ReadAll(unknown)
	assert.Equal(t, 0, unknown.Progress())
}

func TestWrapForStreaming(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, "name\x80,desc"...)
	r := WrapForStreaming(bytes.NewReader(input), int64(len(input)))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "name\uFFFD,desc", string(got))
}
