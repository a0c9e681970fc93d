// Package zpl generates Zebra Programming Language label documents and guards
// printer templates against state-mutating commands.
package zpl

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Ellipsis is appended to field values cut down to their maximum length.
const Ellipsis = "..."

// SanitizeField makes a value safe to embed inside a ^FD...^FS data field.
// It removes the ZPL command prefixes (^ and ~) and all ASCII control characters,
// then truncates to maxLength runes when maxLength > 0. A truncated value ends with
// Ellipsis and is exactly maxLength runes long.
func SanitizeField(value string, maxLength int) string {
	if value == "" {
		return ""
	}

	// ^, ~ and control characters are single ASCII bytes that never occur
	// inside a multi-byte UTF-8 sequence, so the value is filtered bytewise
	// and invalid bytes reach the charset encoder untouched.
	clean := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		if b := value[i]; b != '^' && b != '~' && b >= 0x20 {
			clean = append(clean, b)
		}
	}
	if len(clean) != len(value) {
		value = string(clean)
	}

	if maxLength <= 0 || utf8.RuneCountInString(value) <= maxLength {
		return value
	}
	if maxLength < len(Ellipsis) {
		return value[:runeOffset(value, maxLength)]
	}
	return value[:runeOffset(value, maxLength-len(Ellipsis))] + Ellipsis
}

// runeOffset returns the byte index just past the first n runes of s.
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

// FieldString converts an arbitrary attribute value to the text placed on a label.
// nil becomes the empty string.
func FieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

// StringAttributes converts decoded JSON/YAML attribute values to strings.
func StringAttributes(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = FieldString(v)
	}
	return out
}
