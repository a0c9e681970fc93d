package engine

import (
	"fmt"
	"strings"
	"time"

	"zplink/config"
)

// parseDuration reads an optional Go duration string such as "5s".
func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrInvalidInput, field, s)
	}
	return d, nil
}

// PrinterHTTPRequest is the JSON-serializable form of printer create/update fields.
type PrinterHTTPRequest struct {
	Name            string `json:"name"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	DPI             int    `json:"dpi"`
	Status          string `json:"status"`
	Location        string `json:"location"`
	Description     string `json:"description"`
	Timeout         string `json:"timeout"`
	Charset         string `json:"charset"`
	DefaultTemplate string `json:"default_template"`
}

// ToConfig converts to a printer config. A missing status means active.
func (r PrinterHTTPRequest) ToConfig() (config.PrinterConfig, error) {
	timeout, err := parseDuration("timeout", r.Timeout)
	if err != nil {
		return config.PrinterConfig{}, err
	}
	status := config.PrinterStatus(r.Status)
	if status == "" {
		status = config.PrinterActive
	}
	return config.PrinterConfig{
		Name: r.Name, Host: r.Host, Port: r.Port, DPI: r.DPI,
		Status: status, Location: r.Location, Description: r.Description,
		Timeout: timeout, Charset: r.Charset, DefaultTemplate: r.DefaultTemplate,
	}, nil
}

// MQTTHTTPRequest is the JSON-serializable form of MQTT create/update fields.
type MQTTHTTPRequest struct {
	Name     string `json:"name"`
	Broker   string `json:"broker"`
	Port     int    `json:"port"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Selector string `json:"selector"`
	UseTLS   bool   `json:"use_tls"`
	Enabled  bool   `json:"enabled"`
}

// ToConfig converts to an MQTT config.
func (r MQTTHTTPRequest) ToConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Name: r.Name, Broker: r.Broker, Port: r.Port,
		ClientID: r.ClientID, Username: r.Username, Password: r.Password,
		Selector: r.Selector, UseTLS: r.UseTLS, Enabled: r.Enabled,
	}
}

// ValkeyHTTPRequest is the JSON-serializable form of Valkey create/update fields.
type ValkeyHTTPRequest struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Password       string `json:"password"`
	Database       int    `json:"database"`
	Selector       string `json:"selector"`
	KeyTTL         string `json:"key_ttl"`
	UseTLS         bool   `json:"use_tls"`
	PublishChanges bool   `json:"publish_changes"`
	Enabled        bool   `json:"enabled"`
}

// ToConfig converts to a Valkey config.
func (r ValkeyHTTPRequest) ToConfig() (config.ValkeyConfig, error) {
	ttl, err := parseDuration("key_ttl", r.KeyTTL)
	if err != nil {
		return config.ValkeyConfig{}, err
	}
	return config.ValkeyConfig{
		Name: r.Name, Address: r.Address, Password: r.Password,
		Database: r.Database, Selector: r.Selector, KeyTTL: ttl,
		UseTLS: r.UseTLS, PublishChanges: r.PublishChanges, Enabled: r.Enabled,
	}, nil
}

// KafkaHTTPRequest is the JSON-serializable form of Kafka create/update fields.
// Supports both comma-separated "brokers" string and "broker_list" array.
type KafkaHTTPRequest struct {
	Name                 string   `json:"name"`
	Brokers              string   `json:"brokers"`               // comma-separated
	BrokerList           []string `json:"broker_list,omitempty"` // alternative to comma-separated
	UseTLS               bool     `json:"use_tls"`
	TLSSkipVerify        bool     `json:"tls_skip_verify"`
	SASLMechanism        string   `json:"sasl_mechanism"`
	Username             string   `json:"username"`
	Password             string   `json:"password"`
	Selector             string   `json:"selector"`
	PublishChanges       bool     `json:"publish_changes"`
	AutoCreateTopics     *bool    `json:"auto_create_topics,omitempty"`
	Enabled              bool     `json:"enabled"`
	RequiredAcks         int      `json:"required_acks"`
	MaxRetries           int      `json:"max_retries"`
	RetryBackoff         string   `json:"retry_backoff"`
	ConsumePrintRequests bool     `json:"consume_print_requests"`
	ConsumerGroup        string   `json:"consumer_group"`
	RequestMaxAge        string   `json:"request_max_age"`
}

// ParseBrokers returns the broker list, preferring BrokerList over comma-separated Brokers.
func (r KafkaHTTPRequest) ParseBrokers() []string {
	if len(r.BrokerList) > 0 {
		return r.BrokerList
	}
	if r.Brokers == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(r.Brokers, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ToConfig converts to a Kafka config.
func (r KafkaHTTPRequest) ToConfig() (config.KafkaConfig, error) {
	backoff, err := parseDuration("retry_backoff", r.RetryBackoff)
	if err != nil {
		return config.KafkaConfig{}, err
	}
	maxAge, err := parseDuration("request_max_age", r.RequestMaxAge)
	if err != nil {
		return config.KafkaConfig{}, err
	}
	return config.KafkaConfig{
		Name: r.Name, Brokers: r.ParseBrokers(), UseTLS: r.UseTLS,
		TLSSkipVerify: r.TLSSkipVerify, SASLMechanism: r.SASLMechanism,
		Username: r.Username, Password: r.Password, Selector: r.Selector,
		PublishChanges: r.PublishChanges, AutoCreateTopics: r.AutoCreateTopics,
		Enabled: r.Enabled, RequiredAcks: r.RequiredAcks, MaxRetries: r.MaxRetries,
		RetryBackoff: backoff, ConsumePrintRequests: r.ConsumePrintRequests,
		ConsumerGroup: r.ConsumerGroup, RequestMaxAge: maxAge,
	}, nil
}

// WebhookHTTPRequest is the JSON-serializable form of webhook create/update fields.
type WebhookHTTPRequest struct {
	Name        string                   `json:"name"`
	Enabled     bool                     `json:"enabled"`
	URL         string                   `json:"url"`
	Method      string                   `json:"method"`
	ContentType string                   `json:"content_type"`
	Headers     map[string]string        `json:"headers"`
	Auth        config.WebhookAuthConfig `json:"auth"`
	Events      []string                 `json:"events"`
	Body        string                   `json:"body"`
	Timeout     string                   `json:"timeout"`
	CooldownMin string                   `json:"cooldown_min"`
}

// ToConfig converts to a webhook config.
func (r WebhookHTTPRequest) ToConfig() (config.WebhookConfig, error) {
	timeout, err := parseDuration("timeout", r.Timeout)
	if err != nil {
		return config.WebhookConfig{}, err
	}
	cooldown, err := parseDuration("cooldown_min", r.CooldownMin)
	if err != nil {
		return config.WebhookConfig{}, err
	}
	return config.WebhookConfig{
		Name: r.Name, Enabled: r.Enabled, URL: r.URL, Method: r.Method,
		ContentType: r.ContentType, Headers: r.Headers, Auth: r.Auth,
		Events: r.Events, Body: r.Body, Timeout: timeout, CooldownMin: cooldown,
	}, nil
}
