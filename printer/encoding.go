package printer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// DefaultCharset is the wire charset used when none is configured. Printers
// must be set to accept UTF-8 field data (^CI28) for it to print correctly.
const DefaultCharset = "utf-8"

// EncodingError is returned when a document cannot be represented in the
// printer's wire charset.
type EncodingError struct {
	Charset string
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode as %s: %v", e.Charset, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Charset converts ZPL text to the bytes sent to a printer.
type Charset struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

var charsets = map[string]encoding.Encoding{
	"utf-8":        nil,
	"utf8":         nil,
	"cp437":        charmap.CodePage437,
	"ibm437":       charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"ibm850":       charmap.CodePage850,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"shift_jis":    japanese.ShiftJIS,
	"sjis":         japanese.ShiftJIS,
}

// LookupCharset resolves a charset name, case-insensitively. The empty name
// selects DefaultCharset.
func LookupCharset(name string) (Charset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultCharset
	}
	enc, ok := charsets[key]
	if !ok {
		return Charset{}, fmt.Errorf("unknown printer charset %q", name)
	}
	return Charset{name: key, enc: enc}, nil
}

// UTF8 is the default wire charset.
var UTF8 = Charset{name: DefaultCharset}

// Name returns the charset name.
func (c Charset) Name() string {
	if c.name == "" {
		return DefaultCharset
	}
	return c.name
}

// Encode converts text to wire bytes. Invalid UTF-8 input and runes the
// charset cannot represent produce an *EncodingError.
func (c Charset) Encode(text string) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, &EncodingError{Charset: c.Name(), Err: fmt.Errorf("invalid UTF-8 sequence")}
	}
	if c.enc == nil {
		return []byte(text), nil
	}
	out, _, err := transform.String(c.enc.NewEncoder(), text)
	if err != nil {
		return nil, &EncodingError{Charset: c.Name(), Err: err}
	}
	return []byte(out), nil
}

// Charsets returns the accepted charset names.
func Charsets() []string {
	return []string{"utf-8", "cp437", "cp850", "cp1252", "latin1", "shift_jis"}
}
