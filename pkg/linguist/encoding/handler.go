// Package encoding reads file content for classification: it decodes text to
// UTF-8, extracts the first line for shebang checks and tells binary files
// apart from text.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/stackvity/stack-linguist/pkg/util"
)

const (
	// checkLen is a buffer size used for null byte checks.
	checkLen = 1024
	// Null byte threshold percentage to consider a file binary.
	nullThreshold = 0.15

	// DefaultMaxBytes caps how much of a file is read for classification.
	DefaultMaxBytes int64 = 16 << 20
)

// binaryExtensions short-circuits the content checks for well-known binary formats.
var binaryExtensions = map[string]bool{
	".7z": true, ".a": true, ".avi": true, ".bin": true, ".bmp": true, ".bz2": true,
	".class": true, ".db": true, ".dll": true, ".doc": true, ".docx": true, ".dylib": true,
	".eot": true, ".exe": true, ".flac": true, ".gif": true, ".gz": true, ".ico": true,
	".jar": true, ".jpeg": true, ".jpg": true, ".lib": true, ".mkv": true, ".mov": true,
	".mp3": true, ".mp4": true, ".o": true, ".obj": true, ".ogg": true, ".otf": true,
	".pdf": true, ".png": true, ".ppt": true, ".pptx": true, ".psd": true, ".pyc": true,
	".rar": true, ".so": true, ".sqlite": true, ".tar": true, ".tgz": true, ".tif": true,
	".tiff": true, ".ttf": true, ".war": true, ".wasm": true, ".wav": true, ".webm": true,
	".webp": true, ".woff": true, ".woff2": true, ".xls": true, ".xlsx": true, ".xz": true,
	".zip": true,
}

// Handler decodes content and detects binary files.
type Handler interface {
	// DetectAndDecode converts content to UTF-8. It returns the decoded bytes,
	// the IANA name of the detected encoding and whether detection was certain.
	// On a conversion error the original content is returned with the error.
	DetectAndDecode(content []byte) (utf8Content []byte, detectedEncoding string, certainty bool, err error)

	// IsBinary reports whether the file at path with the given leading
	// content is binary, using its extension and NUL bytes in the content.
	IsBinary(path string, content []byte) bool
}

type goCharsetHandler struct {
	defaultEncoding string
}

// NewHandler creates a Handler. defaultEncoding is used when detection is
// uncertain; "" keeps the detector's guess.
func NewHandler(defaultEncoding string) Handler {
	return &goCharsetHandler{defaultEncoding: defaultEncoding}
}

// DetectAndDecode implements Handler.
func (h *goCharsetHandler) DetectAndDecode(content []byte) ([]byte, string, bool, error) {
	enc, name, certain := charset.DetermineEncoding(content, "")
	if !certain && h.defaultEncoding != "" {
		if lookup, lookupName := charset.Lookup(h.defaultEncoding); lookup != nil {
			enc, name, certain = lookup, lookupName, true
		}
	}
	if enc == nil {
		if name == "" {
			name = "utf-8"
		}
		return content, name, certain, nil
	}
	if name == "utf-8" {
		return bytes.TrimPrefix(content, utf8BOM), name, certain, nil
	}
	utf8Content, err := io.ReadAll(transform.NewReader(bytes.NewReader(content), enc.NewDecoder()))
	if name == "" {
		name = "unknown"
	}
	if err != nil {
		return content, name, certain, fmt.Errorf("failed to convert from '%s': %w", name, err)
	}
	return utf8Content, name, certain, nil
}

// IsBinary implements Handler.
func (h *goCharsetHandler) IsBinary(path string, content []byte) bool {
	if binaryExtensions[strings.ToLower(util.Extname(path))] {
		return true
	}
	if len(content) == 0 {
		return false
	}
	if hasBOM(content) {
		return false
	}
	check := content
	if len(check) > checkLen {
		check = check[:checkLen]
	}
	if float64(bytes.Count(check, []byte{0}))/float64(len(check)) > nullThreshold {
		return true
	}
	return enry.IsBinary(content)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func hasBOM(content []byte) bool {
	return bytes.HasPrefix(content, utf8BOM) ||
		bytes.HasPrefix(content, []byte{0xFF, 0xFE}) ||
		bytes.HasPrefix(content, []byte{0xFE, 0xFF})
}

// ReadFile reads at most limit bytes of path (DefaultMaxBytes when limit <= 0).
func ReadFile(path string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

// FirstLine returns text up to the first line break, without the break.
func FirstLine(text []byte) string {
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSuffix(string(text), "\r")
}
