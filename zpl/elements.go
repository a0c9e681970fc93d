package zpl

import (
	"fmt"
	"strings"
)

// Element is a single ZPL field snippet.
type Element interface {
	ZPL() string
}

// Justification values for ^FB field blocks.
type Justification string

const (
	JustifyLeft      Justification = "L"
	JustifyCenter    Justification = "C"
	JustifyRight     Justification = "R"
	JustifyJustified Justification = "J"
)

// QR code limits.
const (
	MinQRMagnification     = 1
	MaxQRMagnification     = 10
	DefaultQRMagnification = 4
	DefaultQRModel         = 2
)

// DefaultFontHeight is the ^A0 font height used when none is given.
const DefaultFontHeight = 28

// DefaultBoxThickness is the ^GB border thickness used when none is given.
const DefaultBoxThickness = 2

// QRCode is a ^BQ barcode. The URL is encoded in automatic mode with the LA prefix.
type QRCode struct {
	URL           string
	X, Y          int
	Magnification int // 0 selects DefaultQRMagnification; clamped to [1,10]
	Model         int // 0 selects DefaultQRModel
}

// ZPL renders the QR code field.
func (q QRCode) ZPL() string {
	mag := q.Magnification
	if mag == 0 {
		mag = DefaultQRMagnification
	}
	mag = ClampMagnification(mag)

	model := q.Model
	if model == 0 {
		model = DefaultQRModel
	}
	return fmt.Sprintf("^FO%d,%d^BQN,%d,%d^FDLA,%s^FS", q.X, q.Y, model, mag, q.URL)
}

// ClampMagnification limits a QR magnification to the range the printer accepts.
func ClampMagnification(mag int) int {
	if mag < MinQRMagnification {
		return MinQRMagnification
	}
	if mag > MaxQRMagnification {
		return MaxQRMagnification
	}
	return mag
}

// TextField is a scalable-font text field, optionally laid out in a ^FB block.
type TextField struct {
	Text       string
	X, Y       int
	FontHeight int // 0 selects DefaultFontHeight
	FontWidth  int // 0 selects 87% of the height
	MaxWidth   int // >0 wraps the field in a single-line block of this width
	Justify    Justification
}

// ZPL renders the text field. The text is sanitized.
func (t TextField) ZPL() string {
	height := t.FontHeight
	if height == 0 {
		height = DefaultFontHeight
	}
	width := t.FontWidth
	if width == 0 {
		width = int(float64(height) * 0.87)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "^FO%d,%d^A0N,%d,%d", t.X, t.Y, height, width)
	if t.MaxWidth > 0 {
		justify := t.Justify
		if justify == "" {
			justify = JustifyLeft
		}
		fmt.Fprintf(&sb, "^FB%d,1,0,%s", t.MaxWidth, justify)
	}
	fmt.Fprintf(&sb, "^FD%s^FS", SanitizeField(t.Text, 0))
	return sb.String()
}

// Box is a ^GB graphic box; a height or width equal to the thickness draws a line.
type Box struct {
	X, Y          int
	Width, Height int
	Thickness     int // 0 selects DefaultBoxThickness
}

// ZPL renders the box.
func (b Box) ZPL() string {
	thickness := b.Thickness
	if thickness == 0 {
		thickness = DefaultBoxThickness
	}
	return fmt.Sprintf("^FO%d,%d^GB%d,%d,%d^FS", b.X, b.Y, b.Width, b.Height, thickness)
}

// Compose builds a complete format from elements, with print width and label
// length in dots. Zero dimensions omit the corresponding command.
func Compose(widthDots, heightDots int, elements ...Element) string {
	var sb strings.Builder
	sb.WriteString(FormatStart)
	sb.WriteString("^MMT")
	if widthDots > 0 {
		fmt.Fprintf(&sb, "^PW%d", widthDots)
	}
	if heightDots > 0 {
		fmt.Fprintf(&sb, "^LL%d", heightDots)
	}
	sb.WriteString("^LS0")
	for _, el := range elements {
		sb.WriteString(el.ZPL())
	}
	sb.WriteString(FormatEnd)
	return sb.String()
}
