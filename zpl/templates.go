package zpl

import (
	"fmt"
	"sort"
)

// Supported printer resolutions.
const (
	DPI203 = 203
	DPI300 = 300
)

// ValidDPI reports whether dpi is a supported printer resolution.
func ValidDPI(dpi int) bool {
	return dpi == DPI203 || dpi == DPI300
}

// LabelDimensions is the geometry of a TE Raychem SBP label, in millimetres.
type LabelDimensions struct {
	PrintWidthMM  float64 `json:"print_width_mm"`
	PrintHeightMM float64 `json:"print_height_mm"`
	TotalHeightMM float64 `json:"total_height_mm"`
}

// Label size codes.
const (
	SizeSBP050100 = "sbp050100"
	SizeSBP100143 = "sbp100143"
	SizeSBP100225 = "sbp100225"
	SizeSBP100375 = "sbp100375"
	SizeSBP200375 = "sbp200375"
)

var labelSizes = map[string]LabelDimensions{
	SizeSBP050100: {8.5, 12.0, 25.4},
	SizeSBP100143: {12.7, 18.0, 36.5},
	SizeSBP100225: {19.1, 25.0, 57.2},
	SizeSBP100375: {25.4, 38.0, 95.3},
	SizeSBP200375: {25.4, 38.0, 95.3},
}

// LookupLabelSize returns the dimensions for a label size code.
func LookupLabelSize(code string) (LabelDimensions, bool) {
	d, ok := labelSizes[code]
	return d, ok
}

// LabelSizes returns all known label size codes, sorted.
func LabelSizes() []string {
	codes := make([]string, 0, len(labelSizes))
	for code := range labelSizes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TemplateDefinition describes a label template. Only ZPLTemplate is consumed by
// the generator; the rest is layout metadata for previews and operators.
type TemplateDefinition struct {
	Name            string  `yaml:"name" json:"name"`
	Description     string  `yaml:"description,omitempty" json:"description,omitempty"`
	LabelSize       string  `yaml:"label_size" json:"label_size"`
	WidthMM         float64 `yaml:"width_mm" json:"width_mm"`
	HeightMM        float64 `yaml:"height_mm" json:"height_mm"`
	DPI             int     `yaml:"dpi,omitempty" json:"dpi,omitempty"`
	ZPLTemplate     string  `yaml:"zpl_template" json:"zpl_template"`
	IncludeQR       bool    `yaml:"include_qr" json:"include_qr"`
	QRMagnification int     `yaml:"qr_magnification,omitempty" json:"qr_magnification,omitempty"`
	IsDefault       bool    `yaml:"is_default,omitempty" json:"is_default,omitempty"`
	BuiltIn         bool    `yaml:"-" json:"built_in,omitempty"`
}

// GetDPI returns the template's target resolution, defaulting to 300.
func (t *TemplateDefinition) GetDPI() int {
	if t.DPI == 0 {
		return DefaultDPI
	}
	return t.DPI
}

// WidthDots returns the print width in dots at the template's resolution.
func (t *TemplateDefinition) WidthDots() int {
	return MMToDots(t.WidthMM, t.GetDPI())
}

// HeightDots returns the print height in dots at the template's resolution.
func (t *TemplateDefinition) HeightDots() int {
	return MMToDots(t.HeightMM, t.GetDPI())
}

// Validate checks the template text and its layout metadata.
func (t *TemplateDefinition) Validate() error {
	if t.Name == "" {
		return &ValidationError{Reason: "template name is required"}
	}
	if t.WidthMM <= 0 {
		return &ValidationError{Reason: "Width must be greater than 0"}
	}
	if t.HeightMM <= 0 {
		return &ValidationError{Reason: "Height must be greater than 0"}
	}
	if t.DPI != 0 && !ValidDPI(t.DPI) {
		return &ValidationError{Reason: fmt.Sprintf("unsupported DPI %d (use 203 or 300)", t.DPI)}
	}
	if t.QRMagnification != 0 && (t.QRMagnification < MinQRMagnification || t.QRMagnification > MaxQRMagnification) {
		return &ValidationError{Reason: "QR magnification must be between 1 and 10"}
	}
	if t.LabelSize != "" {
		if _, ok := labelSizes[t.LabelSize]; !ok {
			return &ValidationError{Reason: fmt.Sprintf("unknown label size %q", t.LabelSize)}
		}
	}
	return CheckTemplate(t.ZPLTemplate)
}

// Built-in templates for TE Raychem SBP self-laminating cable labels at 300 DPI.
var (
	TemplateSBP100375Full = TemplateDefinition{
		Name:            "SBP100375 Full",
		Description:     "Full featured cable label with QR code, terminations, and details",
		LabelSize:       SizeSBP100375,
		WidthMM:         25.4,
		HeightMM:        38.0,
		DPI:             DPI300,
		IncludeQR:       true,
		QRMagnification: 5,
		BuiltIn:         true,
		ZPLTemplate: `^XA
^MMT
^PW300
^LL450
^LS0

^FO24,24
^A0N,42,36
^FB252,1,0,C
^FD{cable_id}^FS

^FO180,20
^BQN,2,5
^FDLA,{cable_url}^FS

^FO24,75
^A0N,22,18
^FDFrom: {term_a_device}^FS

^FO24,100
^A0N,20,16
^FD  {term_a_interface}^FS

^FO24,130
^A0N,22,18
^FDTo: {term_b_device}^FS

^FO24,155
^A0N,20,16
^FD  {term_b_interface}^FS

^FO24,185
^GB252,2,2^FS

^FO24,195
^A0N,20,16
^FD{type} {length}^FS

^FO24,220
^A0N,18,14
^FD{date}^FS

^PQ1,0,1,Y
^XZ`,
	}

	TemplateSBP100375Compact = TemplateDefinition{
		Name:            "SBP100375 Compact",
		Description:     "Compact cable label focusing on ID and QR code",
		LabelSize:       SizeSBP100375,
		WidthMM:         25.4,
		HeightMM:        38.0,
		DPI:             DPI300,
		IncludeQR:       true,
		QRMagnification: 5,
		BuiltIn:         true,
		ZPLTemplate: `^XA
^MMT
^PW300
^LL450
^LS0

^FO24,30
^A0N,50,44
^FB252,1,0,C
^FD{cable_id}^FS

^FO75,100
^BQN,2,6
^FDLA,{cable_url}^FS

^FO24,340
^A0N,24,20
^FB252,1,0,C
^FD{term_a_device}^FS

^FO24,370
^A0N,18,14
^FB252,1,0,C
^FD-> {term_b_device}^FS

^PQ1,0,1,Y
^XZ`,
	}

	TemplateSBP100225Standard = TemplateDefinition{
		Name:            "SBP100225 Standard",
		Description:     "Standard medium-sized cable label",
		LabelSize:       SizeSBP100225,
		WidthMM:         19.1,
		HeightMM:        25.0,
		DPI:             DPI300,
		IncludeQR:       true,
		QRMagnification: 4,
		BuiltIn:         true,
		ZPLTemplate: `^XA
^MMT
^PW225
^LL295
^LS0

^FO20,20
^A0N,36,30
^FD{cable_id}^FS

^FO130,15
^BQN,2,4
^FDLA,{cable_url}^FS

^FO20,65
^A0N,20,16
^FDA:{term_a_device}^FS

^FO20,90
^A0N,20,16
^FDB:{term_b_device}^FS

^FO20,120
^A0N,18,14
^FD{type} {length}^FS

^PQ1,0,1,Y
^XZ`,
	}

	TemplateSBP100143Minimal = TemplateDefinition{
		Name:            "SBP100143 Minimal",
		Description:     "Minimal small label with ID and QR only",
		LabelSize:       SizeSBP100143,
		WidthMM:         12.7,
		HeightMM:        18.0,
		DPI:             DPI300,
		IncludeQR:       true,
		QRMagnification: 3,
		BuiltIn:         true,
		ZPLTemplate: `^XA
^MMT
^PW150
^LL212
^LS0

^FO15,15
^A0N,30,24
^FD{cable_id}^FS

^FO40,55
^BQN,2,3
^FDLA,{cable_url}^FS

^PQ1,0,1,Y
^XZ`,
	}

	TemplateSBP100375Text = TemplateDefinition{
		Name:        "SBP100375 Text Only",
		Description: "Text-only label without QR code - maximum text space",
		LabelSize:   SizeSBP100375,
		WidthMM:     25.4,
		HeightMM:    38.0,
		DPI:         DPI300,
		IncludeQR:   false,
		BuiltIn:     true,
		ZPLTemplate: `^XA
^MMT
^PW300
^LL450
^LS0

^FO24,20
^A0N,50,44
^FB252,1,0,C
^FD{cable_id}^FS

^FO24,80
^GB252,2,2^FS

^FO24,95
^A0N,24,20
^FDFrom:^FS

^FO24,125
^A0N,22,18
^FB252,1,0,L
^FD{term_a_device}^FS

^FO24,150
^A0N,20,16
^FD{term_a_interface}^FS

^FO24,185
^A0N,24,20
^FDTo:^FS

^FO24,215
^A0N,22,18
^FB252,1,0,L
^FD{term_b_device}^FS

^FO24,240
^A0N,20,16
^FD{term_b_interface}^FS

^FO24,280
^GB252,2,2^FS

^FO24,295
^A0N,22,18
^FD{type}^FS

^FO24,320
^A0N,22,18
^FDLength: {length}^FS

^FO24,350
^A0N,18,14
^FD{date}^FS

^PQ1,0,1,Y
^XZ`,
	}

	// TemplateStoredFormat stores a format in printer flash for ^XF recall.
	// It uses ^DF and is therefore rejected by the template validator; it is
	// only sent by operators who provision printers out of band.
	TemplateStoredFormat = TemplateDefinition{
		Name:            "Stored Format (Batch)",
		Description:     "Template to store on printer for efficient batch printing",
		LabelSize:       SizeSBP100375,
		WidthMM:         25.4,
		HeightMM:        38.0,
		DPI:             DPI300,
		IncludeQR:       true,
		QRMagnification: 5,
		BuiltIn:         true,
		ZPLTemplate: `^XA
^DFE:NETBOX.ZPL^FS
^MMT^PW300^LL450^LS0
^FO24,24^A0N,42,36^FB252,1,0,C^FN1"CABLE_ID"^FS
^FO180,20^BQN,2,5^FN2"QR_URL"^FS
^FO24,75^A0N,22,18^FN3"FROM"^FS
^FO24,100^A0N,20,16^FN4"A_INT"^FS
^FO24,130^A0N,22,18^FN5"TO"^FS
^FO24,155^A0N,20,16^FN6"B_INT"^FS
^FO24,185^GB252,2,2^FS
^FO24,195^A0N,20,16^FN7"TYPE"^FS
^FO24,220^A0N,18,14^FN8"DATE"^FS
^XZ`,
	}
)

// RecallFormatTemplate fills the fields of TemplateStoredFormat. Like the stored
// format itself it uses a denylisted command (^XF).
const RecallFormatTemplate = `^XA
^XFE:NETBOX.ZPL^FS
^FN1^FD{cable_id}^FS
^FN2^FDLA,{cable_url}^FS
^FN3^FDFrom: {term_a_device}^FS
^FN4^FD  {term_a_interface}^FS
^FN5^FDTo: {term_b_device}^FS
^FN6^FD  {term_b_interface}^FS
^FN7^FD{type} {length}^FS
^FN8^FD{date}^FS
^PQ{quantity}
^XZ`

// DefaultLabelSize is used when no label size is requested.
const DefaultLabelSize = SizeSBP100375

// DefaultTemplates returns the built-in templates offered to operators.
func DefaultTemplates() []TemplateDefinition {
	return []TemplateDefinition{
		TemplateSBP100375Full,
		TemplateSBP100375Compact,
		TemplateSBP100225Standard,
		TemplateSBP100143Minimal,
		TemplateSBP100375Text,
	}
}

// DefaultTemplate returns the first built-in template for labelSize.
// An empty size selects DefaultLabelSize.
func DefaultTemplate(labelSize string) (TemplateDefinition, bool) {
	if labelSize == "" {
		labelSize = DefaultLabelSize
	}
	for _, t := range DefaultTemplates() {
		if t.LabelSize == labelSize {
			return t, true
		}
	}
	return TemplateDefinition{}, false
}

// TemplateByName returns the built-in template with the given name.
func TemplateByName(name string) (TemplateDefinition, bool) {
	for _, t := range DefaultTemplates() {
		if t.Name == name {
			return t, true
		}
	}
	return TemplateDefinition{}, false
}
