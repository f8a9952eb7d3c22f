package encoding_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/stackvity/stack-linguist/internal/testutil"
	"github.com/stackvity/stack-linguist/pkg/linguist/encoding"
)

func encodeBytes(t *testing.T, text string, enc transform.Transformer) []byte {
	t.Helper()
	encoded, _, err := transform.Bytes(enc, []byte(text))
	require.NoError(t, err)
	return encoded
}

func TestDetectAndDecode(t *testing.T) {
	handler := encoding.NewHandler("")

	t.Run("ASCII is left alone", func(t *testing.T) {
		input := []byte("#!/usr/bin/env python\nprint(1)\n")
		out, name, _, err := handler.DetectAndDecode(input)
		require.NoError(t, err)
		assert.Equal(t, "utf-8", name)
		assert.Equal(t, input, out)
	})

	t.Run("UTF-8 BOM is stripped", func(t *testing.T) {
		input := append([]byte{0xEF, 0xBB, 0xBF}, "#!/bin/sh\n"...)
		out, _, certain, err := handler.DetectAndDecode(input)
		require.NoError(t, err)
		assert.True(t, certain)
		assert.Equal(t, "#!/bin/sh\n", string(out))
	})

	t.Run("UTF-16LE with BOM", func(t *testing.T) {
		original := "Hello, UTF-16LE!"
		input := append([]byte{0xFF, 0xFE}, encodeBytes(t, original, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder())...)
		out, name, certain, err := handler.DetectAndDecode(input)
		require.NoError(t, err)
		assert.Contains(t, name, "utf-16le")
		assert.True(t, certain)
		assert.Equal(t, original, string(out))
	})

	t.Run("Latin-1 guess", func(t *testing.T) {
		original := "Héllo, Lätin-1!"
		input := encodeBytes(t, original, charmap.ISO8859_1.NewEncoder())
		out, name, certain, err := handler.DetectAndDecode(input)
		require.NoError(t, err)
		assert.Contains(t, []string{"iso-8859-1", "windows-1252"}, name)
		assert.False(t, certain)
		assert.Equal(t, original, string(out))
	})
}

func TestDetectAndDecodeDefaultEncoding(t *testing.T) {
	original := "Héllo again"
	input := encodeBytes(t, original, charmap.ISO8859_1.NewEncoder())

	out, name, certain, err := encoding.NewHandler("ISO-8859-1").DetectAndDecode(input)
	require.NoError(t, err)
	assert.Equal(t, "iso-8859-1", name)
	assert.True(t, certain)
	assert.Equal(t, original, string(out))

	_, _, certain, err = encoding.NewHandler("not-a-charset").DetectAndDecode(input)
	require.NoError(t, err)
	assert.False(t, certain, "unknown default is ignored")
}

func TestIsBinary(t *testing.T) {
	handler := encoding.NewHandler("")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	utf16 := append([]byte{0xFF, 0xFE}, encodeBytes(t, "text", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder())...)

	testCases := []struct {
		name     string
		path     string
		content  []byte
		expected bool
	}{
		{name: "Empty file", path: "empty", content: nil, expected: false},
		{name: "Plain text", path: "a.txt", content: []byte("hello world\n"), expected: false},
		{name: "JSON", path: "a.json", content: []byte(`{"a": 1}`), expected: false},
		{name: "SVG", path: "icon.svg", content: []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), expected: false},
		{name: "PostScript is text", path: "a.ps", content: []byte("%!PS-Adobe-3.0\n/Helvetica findfont 12 scalefont setfont\nshowpage\n"), expected: false},
		{name: "Encapsulated PostScript is text", path: "notes.eps", content: []byte("%!PS-Adobe-3.0 EPSF-3.0\n%%BoundingBox: 0 0 10 10\n"), expected: false},
		{name: "PNG signature", path: "noext", content: png, expected: true},
		{name: "Binary extension wins", path: "archive.ZIP", content: []byte("looks like text"), expected: true},
		{name: "High NUL ratio", path: "blob", content: bytes.Repeat([]byte{'a', 0, 0}, 100), expected: true},
		{name: "Single NUL", path: "blob", content: append([]byte("mostly text "), 0), expected: true},
		{name: "UTF-16 with BOM is text", path: "u.txt", content: utf16, expected: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, handler.IsBinary(tc.path, tc.content))
		})
	}
}

func TestReadFileAndFirstLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script")
	testutil.CreateDummyFile(t, path, "#!/usr/bin/env node\r\nconsole.log(1)\n")

	raw, err := encoding.ReadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env node", encoding.FirstLine(raw))

	raw, err = encoding.ReadFile(path, 5)
	require.NoError(t, err)
	assert.Equal(t, "#!/us", string(raw))
	assert.Equal(t, "#!/us", encoding.FirstLine(raw))

	_, err = encoding.ReadFile(filepath.Join(dir, "missing"), 0)
	assert.Error(t, err)
}
