package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"zplink/logging"
)

// ConnectionStatus represents the state of a Kafka connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// HeaderMessageType names the record header carrying the message type
// (job, status, batch or print_response).
const HeaderMessageType = "zplink-type"

// Message types written in HeaderMessageType.
const (
	TypeJob           = "job"
	TypeStatus        = "status"
	TypeBatch         = "batch"
	TypePrintResponse = "print_response"
)

// Stats counts the records a producer has written.
type Stats struct {
	Sent     int64     `json:"sent"`
	Failed   int64     `json:"failed"`
	LastSend time.Time `json:"last_send,omitempty"`
	Broker   string    `json:"broker,omitempty"` // broker that answered Connect
}

// Producer writes label events to one Kafka cluster, one writer per topic.
type Producer struct {
	config  *Config
	writers map[string]*kafka.Writer
	status  ConnectionStatus
	lastErr error
	stats   Stats
	mu      sync.RWMutex
}

// NewProducer creates a disconnected producer.
func NewProducer(config *Config) *Producer {
	return &Producer{
		config:  config,
		writers: make(map[string]*kafka.Writer),
		status:  StatusDisconnected,
	}
}

// Config returns the producer's configuration.
func (p *Producer) Config() *Config {
	return p.config
}

// GetStatus returns the current connection status.
func (p *Producer) GetStatus() ConnectionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// GetError returns the last error.
func (p *Producer) GetError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// Stats returns a snapshot of the producer counters.
func (p *Producer) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Connect tries each configured broker in order and succeeds on the first
// one that answers a controller lookup.
func (p *Producer) Connect(ctx context.Context) error {
	p.mu.Lock()
	p.status = StatusConnecting
	p.lastErr = nil
	name := p.config.Name
	brokers := p.config.Brokers
	p.mu.Unlock()

	if len(brokers) == 0 {
		return p.fail(errors.New("no brokers configured"))
	}

	dialer := p.config.Dialer()
	var errs []string
	for _, broker := range brokers {
		logging.DebugConnect("kafka", broker)
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			logging.DebugConnectError("kafka", broker, err)
			errs = append(errs, fmt.Sprintf("%s: %v", broker, err))
			continue
		}
		_, err = conn.Controller()
		conn.Close()
		if err != nil {
			logging.DebugConnectError("kafka", broker, err)
			errs = append(errs, fmt.Sprintf("%s: %v", broker, err))
			continue
		}

		p.mu.Lock()
		p.status = StatusConnected
		p.stats.Broker = broker
		p.mu.Unlock()
		logging.DebugConnectSuccess("kafka", broker, "cluster "+name)
		return nil
	}
	return p.fail(fmt.Errorf("no broker reachable (%s)", strings.Join(errs, "; ")))
}

func (p *Producer) fail(err error) error {
	p.mu.Lock()
	p.status = StatusError
	p.lastErr = err
	p.mu.Unlock()
	return err
}

// Disconnect closes all topic writers.
func (p *Producer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.writers) > 0 {
		logging.DebugDisconnect("kafka", p.stats.Broker, fmt.Sprintf("closing %d topic writers", len(p.writers)))
	}
	for topic, writer := range p.writers {
		writer.Close()
		delete(p.writers, topic)
	}
	p.status = StatusDisconnected
	p.lastErr = nil
}

// Produce writes one record and blocks until it is acknowledged. msgType is
// stored in the HeaderMessageType header so consumers can route without
// parsing the body.
func (p *Producer) Produce(ctx context.Context, msgType, topic string, key, value []byte) error {
	writer, err := p.writer(topic)
	if err != nil {
		return err
	}

	start := time.Now()
	err = writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Time:    start,
		Headers: []kafka.Header{{Key: HeaderMessageType, Value: []byte(msgType)}},
	})

	p.mu.Lock()
	if err != nil {
		p.stats.Failed++
		p.lastErr = err
	} else {
		p.stats.Sent++
		p.stats.LastSend = time.Now()
		p.lastErr = nil
	}
	p.mu.Unlock()

	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			logging.DebugLog("kafka", "%s: topic '%s' does not exist and auto-create is off", p.config.Name, topic)
		}
		return fmt.Errorf("kafka produce %s to %s: %w", msgType, topic, err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		logging.DebugLog("kafka", "%s: slow %s write to '%s' (%v)", p.config.Name, msgType, topic, d)
	}
	return nil
}

// writer returns the writer for topic, creating it on first use.
func (p *Producer) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusConnected {
		return nil, fmt.Errorf("kafka cluster '%s' not connected", p.config.Name)
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}

	// Hash balancing keeps every record for one printer (or batch) on one
	// partition, so consumers see them in order.
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Transport:              p.config.Transport(),
		RequiredAcks:           kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:            p.config.MaxRetries,
		WriteBackoffMin:        p.config.RetryBackoff,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: p.config.AutoCreateTopics,
	}
	p.writers[topic] = w
	logging.DebugLog("kafka", "%s: writer for '%s' (auto-create=%v)", p.config.Name, topic, p.config.AutoCreateTopics)
	return w, nil
}
