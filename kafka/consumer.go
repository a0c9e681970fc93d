package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"zplink/logging"
	"zplink/namespace"
)

// PrintRequest is the JSON structure for incoming print requests.
type PrintRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Printer   string          `json:"printer"`
	Kind      string          `json:"kind"`
	Object    json.RawMessage `json:"object"`
	Template  string          `json:"template,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	PrintedBy string          `json:"printed_by,omitempty"`
}

// PrintResponse is the JSON structure for print responses.
type PrintResponse struct {
	RequestID string    `json:"request_id,omitempty"`
	Printer   string    `json:"printer"`
	JobID     string    `json:"print_job_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"` // True if request was too old
	Timestamp time.Time `json:"timestamp"`
}

// PrintHandler prints a request and returns the job ID.
type PrintHandler func(req PrintRequest) (jobID string, err error)

// Consumer consumes print requests from Kafka.
type Consumer struct {
	config   *Config
	producer *Producer // For producing responses
	builder  *namespace.Builder
	group    string
	reader   *kafka.Reader
	running  bool
	mu       sync.RWMutex

	handler PrintHandler

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer for print requests.
func NewConsumer(config *Config, producer *Producer, ns string) *Consumer {
	return &Consumer{
		config:   config,
		producer: producer,
		builder:  namespace.New(ns, config.Selector),
		group:    config.GetConsumerGroup(ns),
		stopChan: make(chan struct{}),
	}
}

// SetPrintHandler sets the callback for print requests.
func (c *Consumer) SetPrintHandler(handler PrintHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Start begins consuming print requests.
func (c *Consumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	topic := c.builder.KafkaPrintTopic()
	logConsumer("Starting consumer for topic '%s' with group '%s'", topic, c.group)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		Topic:          topic,
		GroupID:        c.group,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        100 * time.Millisecond,
		StartOffset:    kafka.LastOffset, // Start from latest on first join
		CommitInterval: time.Second,
		Dialer:         c.config.Dialer(),
	})

	c.reader = reader
	c.running = true
	c.stopChan = make(chan struct{})
	stop := c.stopChan
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consumeLoop(reader, stop)
	return nil
}

// Stop stops the consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	logConsumer("Stopping consumer")
	c.running = false
	close(c.stopChan)
	reader := c.reader
	c.reader = nil
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		logConsumer("Consumer stop timeout")
	}

	if reader != nil {
		reader.Close()
	}
}

// IsRunning returns whether the consumer is running.
func (c *Consumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Consumer) consumeLoop(reader *kafka.Reader, stop <-chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		msg, err := reader.FetchMessage(ctx)
		cancel()
		if err != nil {
			continue
		}

		logConsumer("Received print request: partition=%d offset=%d key=%s", msg.Partition, msg.Offset, string(msg.Key))

		resp, ok := c.process(msg.Value, msg.Time, time.Now())
		if ok {
			c.sendResponse(resp)
		}
		c.commitMessage(reader, msg)
	}
}

// process handles one request. It reports false for payloads that cannot be
// answered because they carry no printer.
func (c *Consumer) process(value []byte, sent, now time.Time) (PrintResponse, bool) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	var req PrintRequest
	if err := json.Unmarshal(value, &req); err != nil {
		logConsumer("JSON parse error: %v", err)
		return PrintResponse{}, false
	}

	resp := PrintResponse{
		RequestID: req.RequestID,
		Printer:   req.Printer,
		Timestamp: now.UTC(),
	}

	maxAge := c.config.GetRequestMaxAge()
	if age := now.Sub(sent); !sent.IsZero() && age > maxAge {
		logConsumer("Skipping stale print request %s (age: %v > max: %v)", req.RequestID, age, maxAge)
		resp.Skipped = true
		resp.Error = fmt.Sprintf("request expired (age: %v, max: %v)", age.Round(time.Millisecond), maxAge)
		return resp, true
	}

	switch {
	case handler == nil:
		resp.Error = "no print handler configured"
	case req.Printer == "" || req.Kind == "" || len(req.Object) == 0:
		resp.Error = "printer, kind and object are required"
	default:
		jobID, err := handler(req)
		resp.JobID = jobID
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}
	}
	return resp, true
}

// sendResponse publishes a print response to the response topic.
func (c *Consumer) sendResponse(resp PrintResponse) {
	if c.producer == nil || c.producer.GetStatus() != StatusConnected {
		logConsumer("Cannot send response: producer not connected")
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	topic := c.builder.KafkaPrintResponseTopic()
	if err := c.producer.Produce(ctx, TypePrintResponse, topic, []byte(resp.Printer), payload); err != nil {
		logConsumer("Failed to publish response to %s: %v", topic, err)
	}
}

func (c *Consumer) commitMessage(reader *kafka.Reader, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := reader.CommitMessages(ctx, msg); err != nil {
		logConsumer("Failed to commit message: %v", err)
	}
}

func logConsumer(format string, args ...interface{}) {
	logging.DebugLog("kafka", "[Consumer] "+format, args...)
}
