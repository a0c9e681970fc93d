// Package labeldata maps network inventory objects to the flat attribute sets
// that label templates are rendered with.
package labeldata

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the type of object a label is printed for.
type Kind int

const (
	KindCable Kind = iota + 1
	KindDevice
	KindRack
	KindModule
	KindCircuit
	KindPowerFeed
	KindPowerPanel
	KindLocation
	KindSite
)

var kindNames = map[Kind]string{
	KindCable:      "cable",
	KindDevice:     "device",
	KindRack:       "rack",
	KindModule:     "module",
	KindCircuit:    "circuit",
	KindPowerFeed:  "power-feed",
	KindPowerPanel: "power-panel",
	KindLocation:   "location",
	KindSite:       "site",
}

// URL path segments relative to the inventory base URL.
var kindPaths = map[Kind]string{
	KindCable:      "dcim/cables",
	KindDevice:     "dcim/devices",
	KindRack:       "dcim/racks",
	KindModule:     "dcim/modules",
	KindCircuit:    "circuits/circuits",
	KindPowerFeed:  "dcim/power-feeds",
	KindPowerPanel: "dcim/power-panels",
	KindLocation:   "dcim/locations",
	KindSite:       "dcim/sites",
}

// Attribute holding the human-readable name of each kind.
var kindTitles = map[Kind]string{
	KindCable:      "cable_id",
	KindDevice:     "device_name",
	KindRack:       "rack_name",
	KindModule:     "module_name",
	KindCircuit:    "circuit_id",
	KindPowerFeed:  "feed_name",
	KindPowerPanel: "panel_name",
	KindLocation:   "location_name",
	KindSite:       "site_name",
}

// String returns the canonical kind name, e.g. "power-feed".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Path returns the kind's URL path segment, e.g. "dcim/cables".
func (k Kind) Path() string {
	return kindPaths[k]
}

// TitleKey returns the attribute that names an object of this kind on a
// label, e.g. "cable_id" or "device_name".
func (k Kind) TitleKey() string {
	return kindTitles[k]
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, &UnsupportedObjectTypeError{Type: k.String(), Supported: SupportedKinds()}
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name accepted by ParseKind.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SupportedKinds returns the canonical kind names in declaration order.
func SupportedKinds() []string {
	out := make([]string, 0, len(kindNames))
	for k := KindCable; k <= KindSite; k++ {
		out = append(out, k.String())
	}
	return out
}

// ParseKind resolves a kind name. It accepts canonical names, app-qualified
// content types ("dcim.cable", "circuits.circuit") and the underscore or
// run-together spellings of multi-word kinds ("power_feed", "powerfeed").
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "_", "-")
	switch name {
	case "powerfeed":
		name = "power-feed"
	case "powerpanel":
		name = "power-panel"
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, &UnsupportedObjectTypeError{Type: s, Supported: SupportedKinds()}
}

// ErrUnsupportedObjectType is wrapped by UnsupportedObjectTypeError.
var ErrUnsupportedObjectType = errors.New("unsupported object type")

// UnsupportedObjectTypeError reports an object kind the mapper cannot handle.
type UnsupportedObjectTypeError struct {
	Type      string
	Supported []string
}

func (e *UnsupportedObjectTypeError) Error() string {
	return fmt.Sprintf("unsupported object type %q (supported: %s)", e.Type, strings.Join(e.Supported, ", "))
}

func (e *UnsupportedObjectTypeError) Unwrap() error {
	return ErrUnsupportedObjectType
}
