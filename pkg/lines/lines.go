// Package lines turns file content into the line sequences the aligner works
// on and back. Decoding records the byte order mark, line ending and trailing
// newline of the input so that Encode can reproduce them.
package lines

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Sentinel errors.
var (
	ErrBinary   = errors.New("lines: binary content")
	ErrTooLarge = errors.New("lines: file too large")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Line endings.
const (
	LF   = "\n"
	CRLF = "\r\n"
	CR   = "\r"
)

// Encoding is the character encoding of a file, as given by its byte order mark.
type Encoding uint8

// Encodings.
const (
	UTF8 Encoding = iota
	UTF8BOM
	UTF16LE
	UTF16BE
)

// String returns the name used in logs and API responses.
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF8BOM:
		return "utf-8-bom"
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	default:
		return "unknown"
	}
}

// Format describes how a sequence was laid out on disk.
type Format struct {
	Encoding     Encoding
	EOL          string
	FinalNewline bool
}

// DefaultFormat is plain UTF-8 with LF endings and a final newline.
var DefaultFormat = Format{Encoding: UTF8, EOL: LF, FinalNewline: true}

// Sequence is an ordered list of lines without their terminators.
type Sequence []string

// Equal reports whether s and other hold the same lines in the same order.
func (s Sequence) Equal(other Sequence) bool {
	return slices.Equal(s, other)
}

// Document is a decoded file.
type Document struct {
	Name     string
	Lines    Sequence
	Format   Format
	Language string
}

// Read loads and decodes path. A positive maxSize rejects larger files with
// ErrTooLarge before they are read.
func Read(path string, maxSize int64) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, path, info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := Decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return doc, nil
}

// Decode splits data into lines. CRLF and lone CR are normalised to LF; the
// dominant ending is kept in Format.EOL. name is only used to guess the language.
func Decode(name string, data []byte) (*Document, error) {
	enc := sniffBOM(data)

	text, err := decodeText(enc, data)
	if err != nil {
		return nil, err
	}

	if enry.IsBinary(text) {
		return nil, ErrBinary
	}

	doc := &Document{
		Name:     name,
		Format:   Format{Encoding: enc, EOL: dominantEOL(text)},
		Language: enry.GetLanguage(filepath.Base(name), text),
	}

	normalised := strings.ReplaceAll(string(text), CRLF, LF)
	normalised = strings.ReplaceAll(normalised, CR, LF)

	if normalised == "" {
		return doc, nil
	}

	if strings.HasSuffix(normalised, LF) {
		doc.Format.FinalNewline = true
		normalised = normalised[:len(normalised)-1]
	}

	doc.Lines = strings.Split(normalised, LF)

	return doc, nil
}

// Encode joins lines according to f.
func Encode(lines []string, f Format) ([]byte, error) {
	eol := f.EOL
	if eol == "" {
		eol = LF
	}

	var buf bytes.Buffer

	for idx, line := range lines {
		buf.WriteString(line)

		if idx < len(lines)-1 || f.FinalNewline {
			buf.WriteString(eol)
		}
	}

	var enc encoding.Encoding

	switch f.Encoding {
	case UTF8:
		return buf.Bytes(), nil
	case UTF8BOM:
		return append(slices.Clip(utf8BOM), buf.Bytes()...), nil
	case UTF16LE:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case UTF16BE:
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return nil, fmt.Errorf("lines: unknown encoding %d", f.Encoding)
	}

	out, _, err := transform.Bytes(enc.NewEncoder(), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Encoding, err)
	}

	return out, nil
}

// decodeText returns the UTF-8 (or raw 8-bit) text of data. UTF-8 input is
// passed through byte for byte: invalid sequences such as Latin-1 bytes are
// kept so that lines differing only in them still compare unequal and Encode
// reproduces the file exactly.
func decodeText(enc Encoding, data []byte) ([]byte, error) {
	switch enc {
	case UTF8:
		return data, nil
	case UTF8BOM:
		return data[len(utf8BOM):], nil
	default:
		text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", enc, err)
		}

		return text, nil
	}
}

func sniffBOM(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return UTF8BOM
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return UTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return UTF16BE
	default:
		return UTF8
	}
}

// dominantEOL returns the most frequent line ending, LF on ties or when the
// text has none.
func dominantEOL(text []byte) string {
	crlf := bytes.Count(text, []byte(CRLF))
	cr := bytes.Count(text, []byte(CR)) - crlf
	lf := bytes.Count(text, []byte(LF)) - crlf

	switch {
	case crlf > lf && crlf >= cr:
		return CRLF
	case cr > lf && cr > crlf:
		return CR
	default:
		return LF
	}
}
