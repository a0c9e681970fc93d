// Package config handles configuration persistence for zplink.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"zplink/zpl"
)

// ConfigListenerID is a unique identifier for a config change listener.
type ConfigListenerID string

// TemplateConfig is an alias for the template definition in the zpl package.
type TemplateConfig = zpl.TemplateDefinition

// Config holds the complete application configuration.
type Config struct {
	Namespace       string           `yaml:"namespace"`                  // Instance namespace for topic/key isolation
	BaseURL         string           `yaml:"base_url,omitempty"`         // Inventory web UI, used for object links on labels
	DefaultPrinter  string           `yaml:"default_printer,omitempty"`  // Used when a request names no printer
	DefaultTemplate string           `yaml:"default_template,omitempty"` // Used when a request names no template
	Printers        []PrinterConfig  `yaml:"printers"`
	Templates       []TemplateConfig `yaml:"templates,omitempty"`
	Monitor         MonitorConfig    `yaml:"monitor,omitempty"`
	Jobs            JobsConfig       `yaml:"jobs,omitempty"`
	Preview         PreviewConfig    `yaml:"preview"`
	Web             WebConfig        `yaml:"web"`
	MQTT            []MQTTConfig     `yaml:"mqtt"`
	Valkey          []ValkeyConfig   `yaml:"valkey,omitempty"`
	Kafka           []KafkaConfig    `yaml:"kafka,omitempty"`
	Webhooks        []WebhookConfig  `yaml:"webhooks,omitempty"`

	// Data mutex protects all config fields against concurrent access.
	// Callers that modify config should Lock(), modify, then call UnlockAndSave().
	// Save() acquires the lock internally for callers that don't hold it.
	dataMu sync.Mutex `yaml:"-"`

	// Change listeners (not serialized)
	changeListeners map[ConfigListenerID]func() `yaml:"-"`
	listenersMu     sync.RWMutex                `yaml:"-"`
	listenerCounter uint64                      `yaml:"-"`
}

// PrinterStatus is the operator-set availability of a printer.
type PrinterStatus string

const (
	PrinterActive      PrinterStatus = "active"
	PrinterOffline     PrinterStatus = "offline"
	PrinterMaintenance PrinterStatus = "maintenance"
)

// Valid reports whether s is a known status. Empty counts as active.
func (s PrinterStatus) Valid() bool {
	switch s {
	case "", PrinterActive, PrinterOffline, PrinterMaintenance:
		return true
	}
	return false
}

// String returns the status name, defaulting to active.
func (s PrinterStatus) String() string {
	if s == "" {
		return string(PrinterActive)
	}
	return string(s)
}

// PrinterConfig holds the connection settings of one network label printer.
type PrinterConfig struct {
	Name            string        `yaml:"name" json:"name"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port,omitempty" json:"port"`                   // default 9100
	DPI             int           `yaml:"dpi,omitempty" json:"dpi"`                     // 203 or 300, default 300
	Status          PrinterStatus `yaml:"status,omitempty" json:"status"`               // active, offline, maintenance
	Location        string        `yaml:"location,omitempty" json:"location,omitempty"` // Free-form placement note
	Description     string        `yaml:"description,omitempty" json:"description,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`                   // Connect/write timeout, default 5s
	Charset         string        `yaml:"charset,omitempty" json:"charset,omitempty"`                   // Wire charset, default utf-8
	DefaultTemplate string        `yaml:"default_template,omitempty" json:"default_template,omitempty"` // Overrides the global default
}

// GetPort returns the TCP port, defaulting to 9100.
func (p *PrinterConfig) GetPort() int {
	if p.Port == 0 {
		return 9100
	}
	return p.Port
}

// GetDPI returns the printer resolution, defaulting to 300.
func (p *PrinterConfig) GetDPI() int {
	if p.DPI == 0 {
		return zpl.DefaultDPI
	}
	return p.DPI
}

// IsActive reports whether the printer accepts print jobs.
func (p *PrinterConfig) IsActive() bool {
	return p.Status == "" || p.Status == PrinterActive
}

// Endpoint returns host:port, used to detect two printers sharing an address.
func (p *PrinterConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(strings.TrimSpace(p.Host)), p.GetPort())
}

// MonitorConfig controls background printer health checks.
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval,omitempty"` // default 1m
}

// JobsConfig controls print job handling.
type JobsConfig struct {
	HistorySize int `yaml:"history_size,omitempty"` // Jobs kept in memory, default 500
	Workers     int `yaml:"workers,omitempty"`      // Concurrent background batches, default 2
}

// Preview backends.
const (
	PreviewLabelary   = "labelary"
	PreviewBinaryKits = "binarykits"
)

// PreviewConfig selects and configures the label preview backend.
type PreviewConfig struct {
	Backend       string        `yaml:"backend"`                  // labelary (default) or binarykits
	LabelaryURL   string        `yaml:"labelary_url,omitempty"`   // default http://api.labelary.com/v1/printers
	BinaryKitsURL string        `yaml:"binarykits_url,omitempty"` // default http://localhost:4040
	Timeout       time.Duration `yaml:"timeout,omitempty"`        // default 30s
}

// WebConfig holds web server configuration.
type WebConfig struct {
	Enabled bool         `yaml:"enabled"`
	Host    string       `yaml:"host"`
	Port    int          `yaml:"port"`
	API     WebAPIConfig `yaml:"api"`
}

// WebAPIConfig holds REST API settings.
type WebAPIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig holds MQTT publisher configuration.
type MQTTConfig struct {
	Name     string `yaml:"name"`
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	ClientID string `yaml:"client_id"`
	Selector string `yaml:"selector,omitempty"` // Optional sub-namespace
	UseTLS   bool   `yaml:"use_tls,omitempty"`
}

// ValkeyConfig holds Valkey/Redis publisher configuration.
type ValkeyConfig struct {
	Name           string        `yaml:"name"`
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"` // host:port format
	Password       string        `yaml:"password,omitempty"`
	Database       int           `yaml:"database"`           // Redis DB number (default 0)
	Selector       string        `yaml:"selector,omitempty"` // Optional sub-namespace
	UseTLS         bool          `yaml:"use_tls,omitempty"`
	KeyTTL         time.Duration `yaml:"key_ttl,omitempty"`         // TTL for job keys (0 = no expiry)
	PublishChanges bool          `yaml:"publish_changes,omitempty"` // Publish to Pub/Sub on every job and status change
}

// KafkaConfig holds Kafka cluster configuration for YAML persistence.
// Note: This struct uses pointer types (e.g., *bool) for optional fields to distinguish
// between "not set" (nil = use default) and "explicitly set to false".
// The kafka package has its own Config struct with non-pointer types for runtime use.
type KafkaConfig struct {
	Name          string        `yaml:"name"`
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	UseTLS        bool          `yaml:"use_tls,omitempty"`
	TLSSkipVerify bool          `yaml:"tls_skip_verify,omitempty"`
	SASLMechanism string        `yaml:"sasl_mechanism,omitempty"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	RequiredAcks  int           `yaml:"required_acks,omitempty"` // -1=all, 0=none, 1=leader
	MaxRetries    int           `yaml:"max_retries,omitempty"`
	RetryBackoff  time.Duration `yaml:"retry_backoff,omitempty"`

	PublishChanges   bool   `yaml:"publish_changes,omitempty"`    // Publish print job events
	Selector         string `yaml:"selector,omitempty"`           // Optional sub-namespace
	AutoCreateTopics *bool  `yaml:"auto_create_topics,omitempty"` // Auto-create topics if they don't exist (default true)

	// Remote print requests
	ConsumePrintRequests bool          `yaml:"consume_print_requests,omitempty"` // Consume {ns}.print and answer on {ns}.print.responses
	ConsumerGroup        string        `yaml:"consumer_group,omitempty"`         // Default: zplink-{namespace}-print
	RequestMaxAge        time.Duration `yaml:"request_max_age,omitempty"`        // Older requests are answered as expired (default 1m)
}

// WebhookAuthType represents the authentication method for a webhook.
type WebhookAuthType string

const (
	WebhookAuthNone         WebhookAuthType = ""
	WebhookAuthBearer       WebhookAuthType = "bearer"
	WebhookAuthBasic        WebhookAuthType = "basic"
	WebhookAuthCustomHeader WebhookAuthType = "custom_header"
)

// WebhookAuthConfig holds authentication configuration for a webhook.
type WebhookAuthConfig struct {
	Type        WebhookAuthType `yaml:"type,omitempty" json:"type,omitempty"`
	Token       string          `yaml:"token,omitempty" json:"token,omitempty"`
	Username    string          `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string          `yaml:"password,omitempty" json:"password,omitempty"`
	HeaderName  string          `yaml:"header_name,omitempty" json:"header_name,omitempty"`
	HeaderValue string          `yaml:"header_value,omitempty" json:"header_value,omitempty"`
}

// WebhookConfig holds an outbound HTTP notification for engine events.
type WebhookConfig struct {
	Name        string            `yaml:"name"`
	Enabled     bool              `yaml:"enabled"`
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method,omitempty"`       // default POST
	ContentType string            `yaml:"content_type,omitempty"` // default application/json
	Headers     map[string]string `yaml:"headers,omitempty"`
	Auth        WebhookAuthConfig `yaml:"auth,omitempty"`
	Events      []string          `yaml:"events,omitempty"` // Event types to send; empty = print job events
	Body        string            `yaml:"body,omitempty"`   // Optional body template with #field references
	Timeout     time.Duration     `yaml:"timeout,omitempty"`
	CooldownMin time.Duration     `yaml:"cooldown_min,omitempty"` // Minimum interval between sends
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Printers:  []PrinterConfig{},
		Templates: []TemplateConfig{},
		Monitor: MonitorConfig{
			Interval: time.Minute,
		},
		Jobs: JobsConfig{
			HistorySize: 500,
			Workers:     2,
		},
		Preview: PreviewConfig{
			Backend: PreviewLabelary,
			Timeout: 30 * time.Second,
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			API: WebAPIConfig{
				Enabled: true,
			},
		},
		MQTT:     []MQTTConfig{},
		Valkey:   []ValkeyConfig{},
		Kafka:    []KafkaConfig{},
		Webhooks: []WebhookConfig{},
	}
}

// DefaultPath returns the default configuration file path (~/.zplink/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".zplink", "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults, which are written back to path. Stored templates are checked
// the same way as templates added at runtime.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// File doesn't exist - use defaults
		cfg.Save(path) // Best-effort save
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// AddOnChangeListener registers a callback to be called when the config is saved.
// Returns an ID that can be used to remove the listener later.
func (c *Config) AddOnChangeListener(cb func()) ConfigListenerID {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	if c.changeListeners == nil {
		c.changeListeners = make(map[ConfigListenerID]func())
	}

	id := ConfigListenerID(fmt.Sprintf("listener-%d", atomic.AddUint64(&c.listenerCounter, 1)))
	c.changeListeners[id] = cb
	return id
}

// RemoveOnChangeListener removes a previously registered listener.
func (c *Config) RemoveOnChangeListener(id ConfigListenerID) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	delete(c.changeListeners, id)
}

// notifyChangeListeners calls all registered change listeners.
func (c *Config) notifyChangeListeners() {
	c.listenersMu.RLock()
	listeners := make([]func(), 0, len(c.changeListeners))
	for _, cb := range c.changeListeners {
		listeners = append(listeners, cb)
	}
	c.listenersMu.RUnlock()

	// Call listeners outside the lock to avoid deadlocks
	for _, cb := range listeners {
		go cb() // Run in goroutine to avoid blocking
	}
}

// Lock acquires the config data mutex for exclusive access.
// Use this before modifying config fields, then call UnlockAndSave.
func (c *Config) Lock() { c.dataMu.Lock() }

// Unlock releases the config data mutex without saving.
// Prefer UnlockAndSave when modifications were made.
func (c *Config) Unlock() { c.dataMu.Unlock() }

// Save acquires the lock, marshals, writes, and notifies.
// Use this when the caller does not already hold the lock.
func (c *Config) Save(path string) error {
	c.dataMu.Lock()
	return c.saveLocked(path)
}

// UnlockAndSave marshals, releases the lock, writes, and notifies.
// The caller must already hold the lock via Lock().
func (c *Config) UnlockAndSave(path string) error {
	return c.saveLocked(path)
}

// saveLocked marshals config (lock must be held), unlocks, then writes and notifies.
func (c *Config) saveLocked(path string) error {
	data, err := yaml.Marshal(c)
	c.dataMu.Unlock() // Release lock after marshal, before I/O

	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	// Notify listeners after successful save
	c.notifyChangeListeners()
	return nil
}

// FindPrinter returns the printer config with the given name, or nil if not found.
func (c *Config) FindPrinter(name string) *PrinterConfig {
	for i := range c.Printers {
		if c.Printers[i].Name == name {
			return &c.Printers[i]
		}
	}
	return nil
}

// AddPrinter adds a new printer configuration.
func (c *Config) AddPrinter(p PrinterConfig) {
	c.Printers = append(c.Printers, p)
}

// RemovePrinter removes a printer by name.
func (c *Config) RemovePrinter(name string) bool {
	for i, p := range c.Printers {
		if p.Name == name {
			c.Printers = append(c.Printers[:i], c.Printers[i+1:]...)
			return true
		}
	}
	return false
}

// UpdatePrinter updates an existing printer configuration.
func (c *Config) UpdatePrinter(name string, updated PrinterConfig) bool {
	for i, p := range c.Printers {
		if p.Name == name {
			c.Printers[i] = updated
			return true
		}
	}
	return false
}

// FindTemplate returns the stored template with the given name, or nil if not found.
func (c *Config) FindTemplate(name string) *TemplateConfig {
	for i := range c.Templates {
		if c.Templates[i].Name == name {
			return &c.Templates[i]
		}
	}
	return nil
}

// AddTemplate adds a new template.
func (c *Config) AddTemplate(t TemplateConfig) {
	c.Templates = append(c.Templates, t)
}

// RemoveTemplate removes a template by name.
func (c *Config) RemoveTemplate(name string) bool {
	for i, t := range c.Templates {
		if t.Name == name {
			c.Templates = append(c.Templates[:i], c.Templates[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateTemplate updates an existing template.
func (c *Config) UpdateTemplate(name string, updated TemplateConfig) bool {
	for i, t := range c.Templates {
		if t.Name == name {
			c.Templates[i] = updated
			return true
		}
	}
	return false
}

// FindMQTT returns the MQTT config with the given name, or nil if not found.
func (c *Config) FindMQTT(name string) *MQTTConfig {
	for i := range c.MQTT {
		if c.MQTT[i].Name == name {
			return &c.MQTT[i]
		}
	}
	return nil
}

// AddMQTT adds a new MQTT configuration.
func (c *Config) AddMQTT(mqtt MQTTConfig) {
	c.MQTT = append(c.MQTT, mqtt)
}

// RemoveMQTT removes an MQTT config by name.
func (c *Config) RemoveMQTT(name string) bool {
	for i, m := range c.MQTT {
		if m.Name == name {
			c.MQTT = append(c.MQTT[:i], c.MQTT[i+1:]...)
			return true
		}
	}
	return false
}

// FindValkey returns the Valkey config with the given name, or nil if not found.
func (c *Config) FindValkey(name string) *ValkeyConfig {
	for i := range c.Valkey {
		if c.Valkey[i].Name == name {
			return &c.Valkey[i]
		}
	}
	return nil
}

// AddValkey adds a new Valkey configuration.
func (c *Config) AddValkey(valkey ValkeyConfig) {
	c.Valkey = append(c.Valkey, valkey)
}

// RemoveValkey removes a Valkey config by name.
func (c *Config) RemoveValkey(name string) bool {
	for i, v := range c.Valkey {
		if v.Name == name {
			c.Valkey = append(c.Valkey[:i], c.Valkey[i+1:]...)
			return true
		}
	}
	return false
}

// FindKafka returns the Kafka config with the given name, or nil if not found.
func (c *Config) FindKafka(name string) *KafkaConfig {
	for i := range c.Kafka {
		if c.Kafka[i].Name == name {
			return &c.Kafka[i]
		}
	}
	return nil
}

// AddKafka adds a new Kafka configuration.
func (c *Config) AddKafka(kafka KafkaConfig) {
	c.Kafka = append(c.Kafka, kafka)
}

// RemoveKafka removes a Kafka config by name.
func (c *Config) RemoveKafka(name string) bool {
	for i, k := range c.Kafka {
		if k.Name == name {
			c.Kafka = append(c.Kafka[:i], c.Kafka[i+1:]...)
			return true
		}
	}
	return false
}

// FindWebhook returns the webhook config with the given name, or nil if not found.
func (c *Config) FindWebhook(name string) *WebhookConfig {
	for i := range c.Webhooks {
		if c.Webhooks[i].Name == name {
			return &c.Webhooks[i]
		}
	}
	return nil
}

// AddWebhook adds a new webhook configuration.
func (c *Config) AddWebhook(w WebhookConfig) {
	c.Webhooks = append(c.Webhooks, w)
}

// RemoveWebhook removes a webhook by name.
func (c *Config) RemoveWebhook(name string) bool {
	for i, w := range c.Webhooks {
		if w.Name == name {
			c.Webhooks = append(c.Webhooks[:i], c.Webhooks[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Only validate namespace format if one is set
	if c.Namespace != "" && !IsValidNamespace(c.Namespace) {
		return fmt.Errorf("invalid namespace: must contain only alphanumeric characters, hyphens, and underscores")
	}
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base_url %q: must be an absolute URL", c.BaseURL)
		}
	}

	names := make(map[string]bool, len(c.Printers))
	endpoints := make(map[string]string, len(c.Printers))
	for i := range c.Printers {
		p := &c.Printers[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("printer %q: %w", p.Name, err)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate printer name %q", p.Name)
		}
		names[p.Name] = true
		if other, ok := endpoints[p.Endpoint()]; ok {
			return fmt.Errorf("printers %q and %q share %s", other, p.Name, p.Endpoint())
		}
		endpoints[p.Endpoint()] = p.Name
	}

	tmplNames := make(map[string]bool, len(c.Templates))
	for i := range c.Templates {
		t := &c.Templates[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
		if tmplNames[t.Name] {
			return fmt.Errorf("duplicate template name %q", t.Name)
		}
		tmplNames[t.Name] = true
	}

	switch c.Preview.Backend {
	case "", PreviewLabelary, PreviewBinaryKits:
	default:
		return fmt.Errorf("unknown preview backend %q", c.Preview.Backend)
	}
	return nil
}

// Validate checks a single printer's settings.
func (p *PrinterConfig) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", p.Port)
	}
	if p.DPI != 0 && !zpl.ValidDPI(p.DPI) {
		return fmt.Errorf("unsupported DPI %d (use 203 or 300)", p.DPI)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// IsValidNamespace returns true if the namespace is valid.
// Valid namespaces contain only alphanumeric characters, hyphens, underscores, and dots.
func IsValidNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, r := range ns {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}
