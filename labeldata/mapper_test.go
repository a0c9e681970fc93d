package labeldata

import (
	"errors"
	"testing"
	"time"
)

func fixedMapper(baseURL string) *Mapper {
	m := NewMapper(baseURL)
	m.SetClock(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) })
	return m
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestMapper_Cable(t *testing.T) {
	cable := &Cable{
		ID:            42,
		ATerminations: []Termination{{Device: "sw-01", Interface: "Gi1/0/1"}},
		BTerminations: []Termination{{Device: "srv-07", Interface: "eth0"}},
		Length:        floatPtr(5),
		Color:         "0000ff",
		Type:          "CAT6",
		Description:   "uplink",
	}

	attrs, err := fixedMapper("https://netbox.example.com/").Map(cable)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}

	expected := map[string]string{
		"cable_id":         "CBL-42",
		"cable_url":        "https://netbox.example.com/dcim/cables/42/",
		"term_a_device":    "sw-01",
		"term_a_interface": "Gi1/0/1",
		"term_b_device":    "srv-07",
		"term_b_interface": "eth0",
		"length":           "5.0m",
		"color":            "0000ff",
		"type":             "CAT6",
		"description":      "uplink",
		"object_id":        "42",
		"object_url":       "https://netbox.example.com/dcim/cables/42/",
		"object_type":      "cable",
		"date":             "2026-03-14",
	}
	if len(attrs) != len(expected) {
		t.Errorf("got %d attributes, want %d: %v", len(attrs), len(expected), attrs)
	}
	for k, v := range expected {
		if attrs[k] != v {
			t.Errorf("attrs[%q] = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestMapper_CableOptionalFields(t *testing.T) {
	attrs, err := fixedMapper("").Map(&Cable{ID: 7, Label: "PATCH-7", Length: floatPtr(2.5), LengthUnit: "ft"})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if attrs["cable_id"] != "PATCH-7" {
		t.Errorf("cable_id = %q", attrs["cable_id"])
	}
	if attrs["length"] != "2.5ft" {
		t.Errorf("length = %q", attrs["length"])
	}
	for _, key := range []string{"cable_url", "object_url", "term_a_device", "term_b_interface", "color"} {
		v, ok := attrs[key]
		if !ok {
			t.Errorf("key %q missing", key)
		}
		if v != "" {
			t.Errorf("attrs[%q] = %q, want empty", key, v)
		}
	}

	attrs, _ = fixedMapper("").Map(&Cable{ID: 8})
	if v, ok := attrs["length"]; !ok || v != "" {
		t.Errorf("length without value = %q (present=%v)", v, ok)
	}
}

func TestMapper_AllKinds(t *testing.T) {
	tests := []struct {
		obj      Object
		urlKey   string
		url      string
		typeName string
		checks   map[string]string
	}{
		{
			&Device{ID: 1, Name: "sw-01", Position: floatPtr(12)},
			"device_url", "http://nb/dcim/devices/1/", "device",
			map[string]string{"device_name": "sw-01", "position": "U12", "serial": ""},
		},
		{
			&Device{ID: 2},
			"device_url", "http://nb/dcim/devices/2/", "device",
			map[string]string{"device_name": "DEV-2", "position": ""},
		},
		{
			&Rack{ID: 3, Name: "R01", UHeight: 42},
			"rack_url", "http://nb/dcim/racks/3/", "rack",
			map[string]string{"rack_name": "R01", "u_height": "42", "facility_id": ""},
		},
		{
			&Module{ID: 4, Device: "rtr-1", ModuleBay: "slot 2", ModuleType: "LC-8X10G"},
			"module_url", "http://nb/dcim/modules/4/", "module",
			map[string]string{"module_name": "LC-8X10G", "device_name": "rtr-1", "module_bay": "slot 2"},
		},
		{
			&Circuit{ID: 5, CID: "ACME-123", CommitRate: intPtr(100000)},
			"circuit_url", "http://nb/circuits/circuits/5/", "circuit",
			map[string]string{"circuit_id": "ACME-123", "commit_rate": "100000 Kbps", "term_z": ""},
		},
		{
			&PowerFeed{ID: 6, Name: "PF-A", Voltage: intPtr(230), Amperage: intPtr(16)},
			"feed_url", "http://nb/dcim/power-feeds/6/", "power-feed",
			map[string]string{"feed_name": "PF-A", "voltage": "230V", "amperage": "16A", "phase": ""},
		},
		{
			&PowerPanel{ID: 7, Name: "PP-1", Site: "HQ"},
			"panel_url", "http://nb/dcim/power-panels/7/", "power-panel",
			map[string]string{"panel_name": "PP-1", "site": "HQ"},
		},
		{
			&Location{ID: 8, Name: "Room 101", Parent: "Floor 1"},
			"location_url", "http://nb/dcim/locations/8/", "location",
			map[string]string{"location_name": "Room 101", "parent": "Floor 1"},
		},
		{
			&Site{ID: 9, Name: "HQ", Facility: "DC-1"},
			"site_url", "http://nb/dcim/sites/9/", "site",
			map[string]string{"site_name": "HQ", "facility": "DC-1", "physical_address": ""},
		},
	}

	m := fixedMapper("http://nb")
	for _, tc := range tests {
		t.Run(tc.typeName, func(t *testing.T) {
			attrs, err := m.Map(tc.obj)
			if err != nil {
				t.Fatalf("Map() error = %v", err)
			}
			if attrs[tc.urlKey] != tc.url || attrs[KeyObjectURL] != tc.url {
				t.Errorf("url = %q / %q, want %q", attrs[tc.urlKey], attrs[KeyObjectURL], tc.url)
			}
			if attrs[KeyObjectType] != tc.typeName {
				t.Errorf("object_type = %q, want %q", attrs[KeyObjectType], tc.typeName)
			}
			if attrs[KeyDate] != "2026-03-14" {
				t.Errorf("date = %q", attrs[KeyDate])
			}
			if _, ok := attrs[tc.obj.Kind().TitleKey()]; !ok {
				t.Errorf("title key %q missing", tc.obj.Kind().TitleKey())
			}
			for k, v := range tc.checks {
				got, ok := attrs[k]
				if !ok {
					t.Errorf("key %q missing", k)
				} else if got != v {
					t.Errorf("attrs[%q] = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestMapper_NilObject(t *testing.T) {
	var cable *Cable
	_, err := NewMapper("").Map(cable)
	if !errors.Is(err, ErrUnsupportedObjectType) {
		t.Errorf("Map(nil *Cable) error = %v", err)
	}
	if _, err := Map(nil, ""); !errors.Is(err, ErrUnsupportedObjectType) {
		t.Errorf("Map(nil) error = %v", err)
	}
}

func TestMapper_DefaultClock(t *testing.T) {
	attrs, err := Map(&Site{ID: 1}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := time.Parse(DateLayout, attrs[KeyDate]); err != nil {
		t.Errorf("date %q does not parse: %v", attrs[KeyDate], err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"cable", KindCable},
		{"dcim.cable", KindCable},
		{" Device ", KindDevice},
		{"power-feed", KindPowerFeed},
		{"power_feed", KindPowerFeed},
		{"powerfeed", KindPowerFeed},
		{"dcim.powerpanel", KindPowerPanel},
		{"circuits.circuit", KindCircuit},
		{"site", KindSite},
	}
	for _, tc := range tests {
		got, err := ParseKind(tc.input)
		if err != nil || got != tc.expected {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", tc.input, got, err, tc.expected)
		}
	}

	_, err := ParseKind("vlan")
	var uerr *UnsupportedObjectTypeError
	if !errors.As(err, &uerr) {
		t.Fatalf("ParseKind(vlan) error = %v", err)
	}
	if uerr.Type != "vlan" || len(uerr.Supported) != 9 {
		t.Errorf("error = %+v", uerr)
	}
}

func TestKind_Text(t *testing.T) {
	b, err := KindPowerPanel.MarshalText()
	if err != nil || string(b) != "power-panel" {
		t.Errorf("MarshalText() = %q, %v", b, err)
	}
	var k Kind
	if err := k.UnmarshalText([]byte("dcim.rack")); err != nil || k != KindRack {
		t.Errorf("UnmarshalText() = %v, %v", k, err)
	}
	if _, err := Kind(0).MarshalText(); err == nil {
		t.Error("expected error for zero kind")
	}
}

func TestDecode(t *testing.T) {
	obj, err := Decode("cable", []byte(`{"id": 3, "label": "X-3", "length": 1.5, "length_unit": "m",
		"a_terminations": [{"device": "a", "interface": "1"}]}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	cable, ok := obj.(*Cable)
	if !ok {
		t.Fatalf("Decode() = %T", obj)
	}
	if cable.ID != 3 || cable.Label != "X-3" || *cable.Length != 1.5 || cable.ATerminations[0].Device != "a" {
		t.Errorf("decoded = %+v", cable)
	}

	if _, err := Decode("vlan", []byte(`{}`)); !errors.Is(err, ErrUnsupportedObjectType) {
		t.Errorf("Decode(vlan) error = %v", err)
	}
	if _, err := Decode("site", []byte(`{`)); err == nil {
		t.Error("expected JSON error")
	}
}

func TestDecodeYAML(t *testing.T) {
	obj, err := DecodeYAML("power_feed", []byte("id: 4\nname: PF-B\nvoltage: 230\n"))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	feed := obj.(*PowerFeed)
	if feed.Name != "PF-B" || feed.Voltage == nil || *feed.Voltage != 230 {
		t.Errorf("decoded = %+v", feed)
	}
}

func TestMapper_CustomFields(t *testing.T) {
	obj, err := Decode("device", []byte(`{"id": 9, "name": "sw-09",
		"custom_fields": {"owner": "netops", "warranty_years": 3, "patched": true, "ticket": null}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	attrs, err := fixedMapper("").Map(obj)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	expected := map[string]string{
		"cf_owner":          "netops",
		"cf_warranty_years": "3",
		"cf_patched":        "true",
		"cf_ticket":         "",
		"device_name":       "sw-09",
	}
	for k, want := range expected {
		if got, ok := attrs[k]; !ok || got != want {
			t.Errorf("attrs[%q] = %q (present=%v), want %q", k, got, ok, want)
		}
	}

	yamlObj, err := DecodeYAML("rack", []byte("id: 2\nname: R2\ncustom_fields:\n  row: B\n  power_kw: 7.5\n"))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	attrs, err = fixedMapper("").Map(yamlObj)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if attrs["cf_row"] != "B" || attrs["cf_power_kw"] != "7.5" {
		t.Errorf("yaml custom fields = %q, %q", attrs["cf_row"], attrs["cf_power_kw"])
	}
	if attrs["rack_name"] != "R2" {
		t.Errorf("rack_name = %q", attrs["rack_name"])
	}
}
