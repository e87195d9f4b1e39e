package ingest

// streaming.go holds the io.Reader wrappers used when an export arrives as
// a stream (HTTP body, file on disk) rather than an in-memory string.
//
//   - BOMReader drops a UTF-8 byte-order mark written by spreadsheet tools
//   - UTF8Reader replaces invalid byte sequences with U+FFFD
//   - CountingReader records how many bytes went through
//
// WrapForStreaming stacks all three in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readChunk is the size of each read from the wrapped source.
const readChunk = 32 * 1024

// BOMReader skips a leading UTF-8 byte-order mark.
type BOMReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMReader wraps r.
func NewBOMReader(r io.Reader) *BOMReader {
	return &BOMReader{r: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (b *BOMReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		// Peek fails on inputs shorter than the mark; nothing to skip then.
		if head, err := b.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// UTF8Reader replaces invalid UTF-8 with U+FFFD as it streams. A multi-byte
// sequence split across two source reads is held back until it is complete.
type UTF8Reader struct {
	src   io.Reader
	chunk []byte
	in    []byte // undecoded tail of the last chunk
	out   []byte // sanitized bytes waiting to be returned
	err   error
}

// NewUTF8Reader wraps r.
func NewUTF8Reader(r io.Reader) *UTF8Reader {
	return &UTF8Reader{src: r, chunk: make([]byte, readChunk)}
}

// Read implements io.Reader.
func (u *UTF8Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(u.out) == 0 {
		if u.err != nil {
			return 0, u.err
		}
		n, err := u.src.Read(u.chunk)
		u.in = append(u.in, u.chunk[:n]...)
		u.err = err
		u.decode(err != nil)
	}
	n := copy(p, u.out)
	u.out = u.out[n:]
	return n, nil
}

// decode moves every complete rune from in to out. With final set, an
// incomplete trailing sequence is flushed as replacement characters.
func (u *UTF8Reader) decode(final bool) {
	data := u.in
	for len(data) > 0 {
		if !final && !utf8.FullRune(data) {
			break
		}
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			u.out = utf8.AppendRune(u.out, utf8.RuneError)
		} else {
			u.out = append(u.out, data[:size]...)
		}
		data = data[size:]
	}
	u.in = append(u.in[:0], data...)
}

// CountingReader counts bytes read, for progress and size reporting.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
	Total     int64 // 0 when unknown
}

// NewCountingReader wraps r. total may be 0.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, Total: total}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// Progress returns 0-100, or 0 when the total is unknown.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	pct := int(c.BytesRead * 100 / c.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// WrapForStreaming strips the BOM first, then sanitizes, then counts.
func WrapForStreaming(r io.Reader, totalSize int64) *CountingReader {
	return NewCountingReader(NewUTF8Reader(NewBOMReader(r)), totalSize)
}
