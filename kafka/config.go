// Package kafka produces print job events to Kafka and consumes remote print
// requests.
package kafka

import (
	"crypto/tls"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// SASLMechanism represents the SASL authentication mechanism.
type SASLMechanism string

const (
	SASLNone        SASLMechanism = ""
	SASLPlain       SASLMechanism = "PLAIN"
	SASLSCRAMSHA256 SASLMechanism = "SCRAM-SHA-256"
	SASLSCRAMSHA512 SASLMechanism = "SCRAM-SHA-512"
)

// DefaultRequestMaxAge is how old a print request may be before it is answered as expired.
const DefaultRequestMaxAge = time.Minute

// Config holds runtime configuration for a Kafka cluster connection.
type Config struct {
	Name          string
	Enabled       bool
	Brokers       []string
	UseTLS        bool
	TLSSkipVerify bool
	SASLMechanism SASLMechanism
	Username      string
	Password      string

	// Producer settings
	RequiredAcks     int // -1=all, 0=none, 1=leader only
	MaxRetries       int
	RetryBackoff     time.Duration
	AutoCreateTopics bool

	// Event publishing
	PublishChanges bool
	Selector       string

	// Remote print requests
	ConsumePrintRequests bool
	ConsumerGroup        string
	RequestMaxAge        time.Duration
}

// DefaultConfig returns a Kafka configuration with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Brokers:          []string{"localhost:9092"},
		RequiredAcks:     -1, // All replicas must acknowledge
		MaxRetries:       3,
		RetryBackoff:     100 * time.Millisecond,
		AutoCreateTopics: true,
	}
}

// GetTLSConfig returns a TLS configuration if TLS is enabled.
func (c *Config) GetTLSConfig() *tls.Config {
	if !c.UseTLS {
		return nil
	}
	return &tls.Config{
		InsecureSkipVerify: c.TLSSkipVerify,
	}
}

// GetConsumerGroup returns the consumer group for print requests.
func (c *Config) GetConsumerGroup(namespace string) string {
	if c.ConsumerGroup != "" {
		return c.ConsumerGroup
	}
	return "zplink-" + namespace + "-print"
}

// GetRequestMaxAge returns the print request expiry.
func (c *Config) GetRequestMaxAge() time.Duration {
	if c.RequestMaxAge > 0 {
		return c.RequestMaxAge
	}
	return DefaultRequestMaxAge
}

// Mechanism returns the configured SASL mechanism, or nil without credentials.
func (c *Config) Mechanism() sasl.Mechanism {
	if c.Username == "" {
		return nil
	}

	switch c.SASLMechanism {
	case SASLPlain:
		return plain.Mechanism{
			Username: c.Username,
			Password: c.Password,
		}
	case SASLSCRAMSHA256:
		mechanism, _ := scram.Mechanism(scram.SHA256, c.Username, c.Password)
		return mechanism
	case SASLSCRAMSHA512:
		mechanism, _ := scram.Mechanism(scram.SHA512, c.Username, c.Password)
		return mechanism
	default:
		return nil
	}
}

// Dialer creates a Kafka dialer with auth and TLS.
func (c *Config) Dialer() *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if c.UseTLS {
		dialer.TLS = c.GetTLSConfig()
	}
	if mechanism := c.Mechanism(); mechanism != nil {
		dialer.SASLMechanism = mechanism
	}
	return dialer
}

// Transport creates a Kafka transport with auth and TLS.
func (c *Config) Transport() *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: 10 * time.Second,
	}
	if c.UseTLS {
		transport.TLS = c.GetTLSConfig()
	}
	if mechanism := c.Mechanism(); mechanism != nil {
		transport.SASL = mechanism
	}
	return transport
}
