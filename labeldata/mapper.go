package labeldata

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zplink/zpl"
)

// Attributes is the flat placeholder map a template is rendered with.
type Attributes map[string]string

// Cross-kind attribute keys present in every mapping.
const (
	KeyObjectID   = "object_id"
	KeyObjectURL  = "object_url"
	KeyObjectType = "object_type"
	KeyDate       = "date"
)

// CustomFieldPrefix prefixes the attribute key of every custom field.
const CustomFieldPrefix = "cf_"

// DateLayout is the format of the date attribute.
const DateLayout = "2006-01-02"

// Mapper turns objects into label attributes. Object URLs are built from the
// base URL of the inventory web UI.
type Mapper struct {
	baseURL string
	now     func() time.Time
}

// NewMapper returns a mapper for the given inventory base URL. An empty base
// URL yields empty URL attributes.
func NewMapper(baseURL string) *Mapper {
	return &Mapper{baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// SetClock replaces the clock used for the date attribute.
func (m *Mapper) SetClock(now func() time.Time) {
	m.now = now
}

// BaseURL returns the normalized base URL.
func (m *Mapper) BaseURL() string {
	return m.baseURL
}

// Map is shorthand for NewMapper(baseURL).Map(obj).
func Map(obj Object, baseURL string) (Attributes, error) {
	return NewMapper(baseURL).Map(obj)
}

// ObjectURL returns the canonical URL of an object, or "" without a base URL.
func (m *Mapper) ObjectURL(kind Kind, id int) string {
	if m.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%d/", m.baseURL, kind.Path(), id)
}

// Map extracts the attribute set for obj. Every documented key for the
// object's kind is present; absent source fields map to "".
func (m *Mapper) Map(obj Object) (Attributes, error) {
	if obj == nil || reflect.ValueOf(obj).IsNil() {
		return nil, &UnsupportedObjectTypeError{Type: "<nil>", Supported: SupportedKinds()}
	}

	var attrs Attributes
	switch o := obj.(type) {
	case *Cable:
		attrs = m.mapCable(o)
	case *Device:
		attrs = m.mapDevice(o)
	case *Rack:
		attrs = m.mapRack(o)
	case *Module:
		attrs = m.mapModule(o)
	case *Circuit:
		attrs = m.mapCircuit(o)
	case *PowerFeed:
		attrs = m.mapPowerFeed(o)
	case *PowerPanel:
		attrs = m.mapPowerPanel(o)
	case *Location:
		attrs = m.mapLocation(o)
	case *Site:
		attrs = m.mapSite(o)
	default:
		return nil, &UnsupportedObjectTypeError{Type: fmt.Sprintf("%T", obj), Supported: SupportedKinds()}
	}

	kind := obj.Kind()
	attrs[KeyObjectID] = strconv.Itoa(obj.ObjectID())
	attrs[KeyObjectURL] = m.ObjectURL(kind, obj.ObjectID())
	attrs[KeyObjectType] = kind.String()
	attrs[KeyDate] = m.now().Format(DateLayout)
	if c, ok := obj.(interface{ customFields() map[string]any }); ok {
		for name, v := range zpl.StringAttributes(c.customFields()) {
			attrs[CustomFieldPrefix+name] = v
		}
	}
	return attrs, nil
}

func (m *Mapper) mapCable(c *Cable) Attributes {
	id := c.Label
	if id == "" {
		id = fmt.Sprintf("CBL-%d", c.ID)
	}
	aDev, aIf := firstTermination(c.ATerminations)
	bDev, bIf := firstTermination(c.BTerminations)

	length := ""
	if c.Length != nil {
		unit := c.LengthUnit
		if unit == "" {
			unit = "m"
		}
		length = formatLength(*c.Length) + unit
	}

	return Attributes{
		"cable_id":         id,
		"cable_url":        m.ObjectURL(KindCable, c.ID),
		"term_a_device":    aDev,
		"term_a_interface": aIf,
		"term_b_device":    bDev,
		"term_b_interface": bIf,
		"length":           length,
		"color":            c.Color,
		"type":             c.Type,
		"description":      c.Description,
	}
}

func (m *Mapper) mapDevice(d *Device) Attributes {
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("DEV-%d", d.ID)
	}
	position := ""
	if d.Position != nil {
		position = "U" + formatNumber(*d.Position)
	}
	return Attributes{
		"device_name":  name,
		"device_url":   m.ObjectURL(KindDevice, d.ID),
		"device_type":  d.DeviceType,
		"manufacturer": d.Manufacturer,
		"role":         d.Role,
		"site":         d.Site,
		"location":     d.Location,
		"rack":         d.Rack,
		"position":     position,
		"serial":       d.Serial,
		"asset_tag":    d.AssetTag,
		"primary_ip":   d.PrimaryIP,
		"description":  d.Description,
	}
}

func (m *Mapper) mapRack(r *Rack) Attributes {
	height := ""
	if r.UHeight > 0 {
		height = strconv.Itoa(r.UHeight)
	}
	return Attributes{
		"rack_name":   r.Name,
		"rack_url":    m.ObjectURL(KindRack, r.ID),
		"site":        r.Site,
		"location":    r.Location,
		"facility_id": r.FacilityID,
		"u_height":    height,
		"role":        r.Role,
		"serial":      r.Serial,
		"asset_tag":   r.AssetTag,
		"description": r.Description,
	}
}

func (m *Mapper) mapModule(mod *Module) Attributes {
	name := mod.ModuleType
	if name == "" {
		name = fmt.Sprintf("MOD-%d", mod.ID)
	}
	return Attributes{
		"module_name":  name,
		"module_url":   m.ObjectURL(KindModule, mod.ID),
		"device_name":  mod.Device,
		"module_bay":   mod.ModuleBay,
		"module_type":  mod.ModuleType,
		"manufacturer": mod.Manufacturer,
		"serial":       mod.Serial,
		"asset_tag":    mod.AssetTag,
		"description":  mod.Description,
	}
}

func (m *Mapper) mapCircuit(c *Circuit) Attributes {
	cid := c.CID
	if cid == "" {
		cid = fmt.Sprintf("CKT-%d", c.ID)
	}
	return Attributes{
		"circuit_id":   cid,
		"circuit_url":  m.ObjectURL(KindCircuit, c.ID),
		"provider":     c.Provider,
		"circuit_type": c.Type,
		"commit_rate":  formatUnit(c.CommitRate, " Kbps"),
		"term_a":       c.TermA,
		"term_z":       c.TermZ,
		"description":  c.Description,
	}
}

func (m *Mapper) mapPowerFeed(f *PowerFeed) Attributes {
	return Attributes{
		"feed_name":   f.Name,
		"feed_url":    m.ObjectURL(KindPowerFeed, f.ID),
		"power_panel": f.PowerPanel,
		"rack":        f.Rack,
		"voltage":     formatUnit(f.Voltage, "V"),
		"amperage":    formatUnit(f.Amperage, "A"),
		"phase":       f.Phase,
		"supply":      f.Supply,
		"description": f.Description,
	}
}

func (m *Mapper) mapPowerPanel(p *PowerPanel) Attributes {
	return Attributes{
		"panel_name":  p.Name,
		"panel_url":   m.ObjectURL(KindPowerPanel, p.ID),
		"site":        p.Site,
		"location":    p.Location,
		"description": p.Description,
	}
}

func (m *Mapper) mapLocation(l *Location) Attributes {
	return Attributes{
		"location_name": l.Name,
		"location_url":  m.ObjectURL(KindLocation, l.ID),
		"site":          l.Site,
		"parent":        l.Parent,
		"description":   l.Description,
	}
}

func (m *Mapper) mapSite(s *Site) Attributes {
	return Attributes{
		"site_name":        s.Name,
		"site_url":         m.ObjectURL(KindSite, s.ID),
		"facility":         s.Facility,
		"region":           s.Region,
		"physical_address": s.PhysicalAddress,
		"description":      s.Description,
	}
}

func firstTermination(terms []Termination) (device, iface string) {
	if len(terms) == 0 {
		return "", ""
	}
	return terms[0].Device, terms[0].Interface
}

// formatLength always shows a fractional part, so 5 becomes "5.0".
func formatLength(v float64) string {
	s := formatNumber(v)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatUnit(v *int, unit string) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v) + unit
}

// Decode builds an object of the named kind from JSON.
func Decode(kind string, data []byte) (Object, error) {
	obj, err := newNamed(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", obj.Kind(), err)
	}
	return obj, nil
}

// DecodeYAML builds an object of the named kind from YAML (or JSON) text.
func DecodeYAML(kind string, data []byte) (Object, error) {
	obj, err := newNamed(kind)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", obj.Kind(), err)
	}
	return obj, nil
}

func newNamed(kind string) (Object, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return New(k)
}
