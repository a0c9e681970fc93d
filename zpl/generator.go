package zpl

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// DefaultDPI is used when a generator is created without a resolution.
const DefaultDPI = 300

// mmPerInch converts between millimetres and printer dots.
const mmPerInch = 25.4

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	quantityRe    = regexp.MustCompile(`(?i)\^PQ[^\^~\s]*`)
	formatEndRe   = regexp.MustCompile(`(?i)\^XZ`)
)

// Generator renders ZPL documents for one printer resolution.
// It holds no mutable state and may be shared between goroutines.
type Generator struct {
	dpi int
}

// NewGenerator returns a generator for the given resolution in dots per inch.
func NewGenerator(dpi int) *Generator {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Generator{dpi: dpi}
}

// DPI returns the generator's resolution.
func (g *Generator) DPI() int {
	return g.dpi
}

// MMToDots converts millimetres to whole printer dots, rounding down.
func (g *Generator) MMToDots(mm float64) int {
	return MMToDots(mm, g.dpi)
}

// MMToDots converts millimetres to whole dots at dpi, rounding down. The small
// bias absorbs binary floating point error so 25.4mm is exactly dpi dots.
func MMToDots(mm float64, dpi int) int {
	return int(math.Floor(mm*float64(dpi)/mmPerInch + 1e-9))
}

// Generate substitutes attrs into template and applies the print quantity.
//
// Every value is sanitized before substitution. Placeholders with no matching
// attribute are left as written. When quantity is greater than one the result
// carries exactly one ^PQ directive for that quantity.
func (g *Generator) Generate(template string, attrs map[string]string, quantity int) string {
	out := Substitute(template, attrs)
	if quantity > 1 {
		out = SetQuantity(out, quantity)
	}
	return out
}

// Substitute replaces {name} placeholders with sanitized attribute values.
// Unknown names are kept verbatim, braces included.
func Substitute(template string, attrs map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		value, ok := attrs[name]
		if !ok {
			return token
		}
		return SanitizeField(value, 0)
	})
}

// QuantityDirective returns the ^PQ command used for quantity copies:
// no pause between labels, one replicate, no pause-and-cut override.
func QuantityDirective(quantity int) string {
	return fmt.Sprintf("^PQ%d,0,1,Y", quantity)
}

// SetQuantity makes doc carry exactly one print quantity directive. An existing
// directive is rewritten in place and any further ones are dropped; otherwise the
// directive goes immediately before the last ^XZ.
func SetQuantity(doc string, quantity int) string {
	directive := QuantityDirective(quantity)

	locs := quantityRe.FindAllStringIndex(doc, -1)
	if len(locs) > 0 {
		var sb strings.Builder
		sb.Grow(len(doc) + len(directive))
		prev := 0
		for i, loc := range locs {
			sb.WriteString(doc[prev:loc[0]])
			if i == 0 {
				sb.WriteString(directive)
			}
			prev = loc[1]
		}
		sb.WriteString(doc[prev:])
		return sb.String()
	}

	ends := formatEndRe.FindAllStringIndex(doc, -1)
	if len(ends) == 0 {
		return doc + directive
	}
	last := ends[len(ends)-1][0]
	return doc[:last] + directive + doc[last:]
}
