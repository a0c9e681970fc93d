package zpl

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Format delimiters.
const (
	FormatStart = "^XA"
	FormatEnd   = "^XZ"
)

// deniedCommands lists mnemonics that can delete or overwrite printer flash,
// execute stored formats, alter network configuration, change pause/power
// behaviour, or dump configuration. None of them belong in a label template.
var deniedCommands = []string{
	"^ID", // object delete
	"^DF", // download format to flash
	"^XF", // recall stored format
	"~DY", // download objects
	"~DG", // download graphic
	"~DN", // abort download
	"~NC", // network connect
	"~NR", // network reset
	"~JR", // power on reset
	"~PS", // print start
	"~PP", // programmable pause
	"~HS", // host status return
	"^HH", // configuration label return
	"~WC", // print configuration label
	"^JU", // configuration update
	"~JC", // set media sensor calibration
	"~RO", // reset advanced counters
}

// ErrInvalidTemplate is the sentinel wrapped by every template ValidationError.
var ErrInvalidTemplate = errors.New("invalid ZPL template")

// ValidationError describes why a template was rejected.
type ValidationError struct {
	Reason   string
	Commands []string // denylisted commands found, if any
}

func (e *ValidationError) Error() string {
	if len(e.Commands) > 0 {
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Commands, ", "))
	}
	return e.Reason
}

// Unwrap lets errors.Is match ErrInvalidTemplate.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidTemplate
}

// DeniedCommands returns a copy of the default command denylist.
func DeniedCommands() []string {
	out := make([]string, len(deniedCommands))
	copy(out, deniedCommands)
	return out
}

// Validator detects and strips denylisted commands from template text.
// A Validator is immutable once built and safe for concurrent use.
//
// Detection and stripping share one pattern, so anything Validate reports is
// removed by Sanitize.
type Validator struct {
	commands []string
	detect   *regexp.Regexp
	strip    *regexp.Regexp
}

// letterFolds maps each ASCII upper-case letter to the non-ASCII runes whose
// case mapping lands on it, such as dotless ı for I and long ſ for S.
var letterFolds = func() map[rune][]rune {
	m := make(map[rune][]rune)
	for r := rune(0x80); r <= 0xFFFF; r++ {
		if u := asciiUpper(unicode.ToUpper(r)); u != 0 {
			m[u] = append(m[u], r)
		} else if u := asciiUpper(unicode.ToLower(r)); u != 0 {
			m[u] = append(m[u], r)
		}
	}
	return m
}()

func asciiUpper(r rune) rune {
	switch {
	case r >= 'A' && r <= 'Z':
		return r
	case r >= 'a' && r <= 'z':
		return r - 'a' + 'A'
	}
	return 0
}

// commandPattern matches cmd in any case, including letters written with
// their non-ASCII case variants.
func commandPattern(cmd string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(cmd) {
		if r < 'A' || r > 'Z' {
			sb.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}
		sb.WriteByte('[')
		sb.WriteRune(r)
		sb.WriteRune(r - 'A' + 'a')
		for _, v := range letterFolds[r] {
			sb.WriteRune(v)
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

// canonicalCommand upper-cases a matched command to its ASCII mnemonic.
func canonicalCommand(m string) string {
	return strings.Map(func(r rune) rune {
		if u := asciiUpper(r); u != 0 {
			return u
		}
		for u, variants := range letterFolds {
			for _, v := range variants {
				if v == r {
					return u
				}
			}
		}
		return r
	}, m)
}

// NewValidator compiles a validator for the given command mnemonics.
func NewValidator(commands []string) *Validator {
	patterns := make([]string, len(commands))
	for i, cmd := range commands {
		patterns[i] = commandPattern(cmd)
	}
	alt := strings.Join(patterns, "|")

	return &Validator{
		commands: append([]string(nil), commands...),
		detect:   regexp.MustCompile(`(` + alt + `)`),
		strip:    regexp.MustCompile(`(` + alt + `)[^\^~]*`),
	}
}

var defaultValidator = NewValidator(deniedCommands)

// Commands returns the mnemonics this validator rejects.
func (v *Validator) Commands() []string {
	return append([]string(nil), v.commands...)
}

// Validate reports whether template is free of denylisted commands. The found
// commands are upper-cased, deduplicated, and listed in order of first appearance.
func (v *Validator) Validate(template string) (bool, []string) {
	matches := v.detect.FindAllString(template, -1)
	found := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		m = canonicalCommand(m)
		if !seen[m] {
			seen[m] = true
			found = append(found, m)
		}
	}
	return len(found) == 0, found
}

// Sanitize removes every denylisted command together with its parameters, i.e.
// everything up to the next ^ or ~ command prefix or the end of the text.
func (v *Validator) Sanitize(template string) string {
	return v.strip.ReplaceAllString(template, "")
}

// Check is the save-time template check: structure first, then the denylist.
func (v *Validator) Check(template string) error {
	trimmed := strings.TrimSpace(template)
	if trimmed == "" {
		return &ValidationError{Reason: "ZPL template is empty"}
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), FormatStart) {
		return &ValidationError{Reason: "ZPL template must start with ^XA (format start)"}
	}
	if !strings.HasSuffix(strings.ToUpper(trimmed), FormatEnd) {
		return &ValidationError{Reason: "ZPL template must end with ^XZ (format end)"}
	}
	if ok, found := v.Validate(trimmed); !ok {
		return &ValidationError{
			Reason:   "Template contains dangerous ZPL commands that are not allowed",
			Commands: found,
		}
	}
	return nil
}

// ValidateTemplate runs the default validator.
func ValidateTemplate(template string) (bool, []string) {
	return defaultValidator.Validate(template)
}

// SanitizeTemplate runs the default validator's sanitizer.
func SanitizeTemplate(template string) string {
	return defaultValidator.Sanitize(template)
}

// CheckTemplate runs the default save-time check.
func CheckTemplate(template string) error {
	return defaultValidator.Check(template)
}
