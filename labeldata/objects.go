package labeldata

// Object is an inventory object that can be labelled. The set of
// implementations is closed: only the types in this package satisfy it.
type Object interface {
	Kind() Kind
	ObjectID() int
	isObject()
}

// Custom carries the user-defined fields of an object. Templates see each
// one as cf_{name}.
type Custom struct {
	CustomFields map[string]any `json:"custom_fields,omitempty" yaml:"custom_fields,omitempty"`
}

func (c *Custom) customFields() map[string]any { return c.CustomFields }

// Termination is one end of a cable.
type Termination struct {
	Device    string `json:"device" yaml:"device"`
	Interface string `json:"interface" yaml:"interface"`
}

// Cable is a physical cable between two terminations.
type Cable struct {
	ID            int           `json:"id" yaml:"id"`
	Label         string        `json:"label,omitempty" yaml:"label,omitempty"`
	ATerminations []Termination `json:"a_terminations,omitempty" yaml:"a_terminations,omitempty"`
	BTerminations []Termination `json:"b_terminations,omitempty" yaml:"b_terminations,omitempty"`
	Length        *float64      `json:"length,omitempty" yaml:"length,omitempty"`
	LengthUnit    string        `json:"length_unit,omitempty" yaml:"length_unit,omitempty"`
	Color         string        `json:"color,omitempty" yaml:"color,omitempty"`
	Type          string        `json:"type,omitempty" yaml:"type,omitempty"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// Device is a racked or standalone piece of equipment.
type Device struct {
	ID           int      `json:"id" yaml:"id"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	DeviceType   string   `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Role         string   `json:"role,omitempty" yaml:"role,omitempty"`
	Site         string   `json:"site,omitempty" yaml:"site,omitempty"`
	Location     string   `json:"location,omitempty" yaml:"location,omitempty"`
	Rack         string   `json:"rack,omitempty" yaml:"rack,omitempty"`
	Position     *float64 `json:"position,omitempty" yaml:"position,omitempty"`
	Serial       string   `json:"serial,omitempty" yaml:"serial,omitempty"`
	AssetTag     string   `json:"asset_tag,omitempty" yaml:"asset_tag,omitempty"`
	PrimaryIP    string   `json:"primary_ip,omitempty" yaml:"primary_ip,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// Rack is an equipment rack.
type Rack struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Site        string `json:"site,omitempty" yaml:"site,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
	FacilityID  string `json:"facility_id,omitempty" yaml:"facility_id,omitempty"`
	UHeight     int    `json:"u_height,omitempty" yaml:"u_height,omitempty"`
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	Serial      string `json:"serial,omitempty" yaml:"serial,omitempty"`
	AssetTag    string `json:"asset_tag,omitempty" yaml:"asset_tag,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// Module is a field-replaceable module installed in a device bay.
type Module struct {
	ID           int    `json:"id" yaml:"id"`
	Device       string `json:"device,omitempty" yaml:"device,omitempty"`
	ModuleBay    string `json:"module_bay,omitempty" yaml:"module_bay,omitempty"`
	ModuleType   string `json:"module_type,omitempty" yaml:"module_type,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Serial       string `json:"serial,omitempty" yaml:"serial,omitempty"`
	AssetTag     string `json:"asset_tag,omitempty" yaml:"asset_tag,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// Circuit is a provider circuit.
type Circuit struct {
	ID          int    `json:"id" yaml:"id"`
	CID         string `json:"cid,omitempty" yaml:"cid,omitempty"`
	Provider    string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	CommitRate  *int   `json:"commit_rate,omitempty" yaml:"commit_rate,omitempty"` // Kbps
	TermA       string `json:"termination_a,omitempty" yaml:"termination_a,omitempty"`
	TermZ       string `json:"termination_z,omitempty" yaml:"termination_z,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// PowerFeed is a power feed from a panel to a rack.
type PowerFeed struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	PowerPanel  string `json:"power_panel,omitempty" yaml:"power_panel,omitempty"`
	Rack        string `json:"rack,omitempty" yaml:"rack,omitempty"`
	Voltage     *int   `json:"voltage,omitempty" yaml:"voltage,omitempty"`
	Amperage    *int   `json:"amperage,omitempty" yaml:"amperage,omitempty"`
	Phase       string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Supply      string `json:"supply,omitempty" yaml:"supply,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// PowerPanel is an electrical distribution panel.
type PowerPanel struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Site        string `json:"site,omitempty" yaml:"site,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// Location is a room, floor or other area within a site.
type Location struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Site        string `json:"site,omitempty" yaml:"site,omitempty"`
	Parent      string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

// Site is a physical site.
type Site struct {
	ID              int    `json:"id" yaml:"id"`
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	Facility        string `json:"facility,omitempty" yaml:"facility,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	PhysicalAddress string `json:"physical_address,omitempty" yaml:"physical_address,omitempty"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`

	Custom `yaml:",inline"`
}

func (*Cable) Kind() Kind      { return KindCable }
func (*Device) Kind() Kind     { return KindDevice }
func (*Rack) Kind() Kind       { return KindRack }
func (*Module) Kind() Kind     { return KindModule }
func (*Circuit) Kind() Kind    { return KindCircuit }
func (*PowerFeed) Kind() Kind  { return KindPowerFeed }
func (*PowerPanel) Kind() Kind { return KindPowerPanel }
func (*Location) Kind() Kind   { return KindLocation }
func (*Site) Kind() Kind       { return KindSite }

func (o *Cable) ObjectID() int      { return o.ID }
func (o *Device) ObjectID() int     { return o.ID }
func (o *Rack) ObjectID() int       { return o.ID }
func (o *Module) ObjectID() int     { return o.ID }
func (o *Circuit) ObjectID() int    { return o.ID }
func (o *PowerFeed) ObjectID() int  { return o.ID }
func (o *PowerPanel) ObjectID() int { return o.ID }
func (o *Location) ObjectID() int   { return o.ID }
func (o *Site) ObjectID() int       { return o.ID }

func (*Cable) isObject()      {}
func (*Device) isObject()     {}
func (*Rack) isObject()       {}
func (*Module) isObject()     {}
func (*Circuit) isObject()    {}
func (*PowerFeed) isObject()  {}
func (*PowerPanel) isObject() {}
func (*Location) isObject()   {}
func (*Site) isObject()       {}

// New returns an empty object of the given kind.
func New(kind Kind) (Object, error) {
	switch kind {
	case KindCable:
		return &Cable{}, nil
	case KindDevice:
		return &Device{}, nil
	case KindRack:
		return &Rack{}, nil
	case KindModule:
		return &Module{}, nil
	case KindCircuit:
		return &Circuit{}, nil
	case KindPowerFeed:
		return &PowerFeed{}, nil
	case KindPowerPanel:
		return &PowerPanel{}, nil
	case KindLocation:
		return &Location{}, nil
	case KindSite:
		return &Site{}, nil
	}
	return nil, &UnsupportedObjectTypeError{Type: kind.String(), Supported: SupportedKinds()}
}
