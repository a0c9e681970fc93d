package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"zplink/logging"
	"zplink/namespace"
)

// StatusMessage is the JSON structure published to Kafka for printer status.
type StatusMessage struct {
	Printer   string `json:"printer"`
	Online    bool   `json:"online"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// publishJob represents a pending Kafka publish operation.
type publishJob struct {
	producer *Producer
	msgType  string
	topic    string
	key      []byte
	payload  []byte
}

// Manager manages multiple Kafka producer connections.
type Manager struct {
	namespace string
	producers map[string]*Producer
	consumers map[string]*Consumer
	handler   PrintHandler
	mu        sync.RWMutex

	// Worker pool for bounded publish goroutines
	publishQueue chan publishJob
	wg           sync.WaitGroup
	stopChan     chan struct{}
	started      bool
}

// MaxPublishWorkers is the maximum number of concurrent publish goroutines.
const MaxPublishWorkers = 10

// MaxPublishQueueSize is the maximum number of pending publish jobs.
const MaxPublishQueueSize = 1000

// NewManager creates a new Kafka manager for the given namespace.
func NewManager(ns string) *Manager {
	return &Manager{
		namespace:    ns,
		producers:    make(map[string]*Producer),
		consumers:    make(map[string]*Consumer),
		publishQueue: make(chan publishJob, MaxPublishQueueSize),
		stopChan:     make(chan struct{}),
	}
}

func logKafka(format string, args ...interface{}) {
	logging.DebugLog("kafka", format, args...)
}

// startWorkers starts the publish worker goroutines.
func (m *Manager) startWorkers() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	stop := m.stopChan
	queue := m.publishQueue
	m.mu.Unlock()

	for i := 0; i < MaxPublishWorkers; i++ {
		m.wg.Add(1)
		go m.publishWorker(stop, queue)
	}
}

// publishWorker processes publish jobs from the queue.
func (m *Manager) publishWorker(stop <-chan struct{}, queue <-chan publishJob) {
	defer m.wg.Done()

	for {
		select {
		case <-stop:
			return
		case job := <-queue:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := job.producer.Produce(ctx, job.msgType, job.topic, job.key, job.payload); err != nil {
				logKafka("Failed to publish to %s on %s: %v", job.topic, job.producer.config.Name, err)
			}
			cancel()
		}
	}
}

// AddCluster adds a new Kafka cluster configuration.
func (m *Manager) AddCluster(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.producers[config.Name]; exists {
		return
	}
	m.producers[config.Name] = NewProducer(config)
}

// RemoveCluster removes a Kafka cluster and disconnects.
func (m *Manager) RemoveCluster(name string) {
	m.mu.Lock()
	producer, exists := m.producers[name]
	consumer := m.consumers[name]
	delete(m.producers, name)
	delete(m.consumers, name)
	m.mu.Unlock()

	if consumer != nil {
		consumer.Stop()
	}
	if exists {
		producer.Disconnect()
	}
}

// GetProducer returns the producer for the named cluster.
func (m *Manager) GetProducer(name string) *Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.producers[name]
}

// ListClusters returns all cluster names, sorted.
func (m *Manager) ListClusters() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.producers))
	for name := range m.producers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Connect connects to the named Kafka cluster and starts its print request
// consumer when configured.
func (m *Manager) Connect(name string) error {
	m.mu.RLock()
	producer, exists := m.producers[name]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("kafka cluster not found: %s", name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := producer.Connect(ctx)
	cancel()
	if err != nil {
		return err
	}
	m.startWorkers()

	if producer.config.ConsumePrintRequests {
		m.mu.Lock()
		consumer, ok := m.consumers[name]
		if !ok {
			consumer = NewConsumer(producer.config, producer, m.namespace)
			m.consumers[name] = consumer
		}
		handler := m.handler
		m.mu.Unlock()

		consumer.SetPrintHandler(handler)
		if err := consumer.Start(); err != nil {
			logKafka("Failed to start print consumer on %s: %v", name, err)
		}
	}
	return nil
}

// Disconnect disconnects from the named Kafka cluster.
func (m *Manager) Disconnect(name string) {
	m.mu.RLock()
	producer, exists := m.producers[name]
	consumer := m.consumers[name]
	m.mu.RUnlock()

	if consumer != nil {
		consumer.Stop()
	}
	if exists {
		producer.Disconnect()
	}
}

// ConnectEnabled connects to all enabled Kafka clusters in the background.
func (m *Manager) ConnectEnabled() {
	for _, name := range m.ListClusters() {
		p := m.GetProducer(name)
		if p != nil && p.config.Enabled {
			go func(name string) {
				if err := m.Connect(name); err != nil {
					logKafka("Failed to connect %s: %v", name, err)
				}
			}(name)
		}
	}
}

// StopAll stops the workers, consumers and producers.
func (m *Manager) StopAll() {
	m.mu.Lock()
	wasStarted := m.started
	oldStopChan := m.stopChan
	if wasStarted {
		m.stopChan = make(chan struct{})
		m.publishQueue = make(chan publishJob, MaxPublishQueueSize)
		m.started = false
	}
	consumers := make([]*Consumer, 0, len(m.consumers))
	for _, c := range m.consumers {
		consumers = append(consumers, c)
	}
	producers := make([]*Producer, 0, len(m.producers))
	for _, p := range m.producers {
		producers = append(producers, p)
	}
	m.mu.Unlock()

	if wasStarted {
		close(oldStopChan)
		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			logKafka("Timeout waiting for publish workers to stop")
		}
	}

	for _, c := range consumers {
		c.Stop()
	}
	for _, p := range producers {
		p.Disconnect()
	}
}

// GetClusterStatus returns the status of a specific cluster.
func (m *Manager) GetClusterStatus(name string) (ConnectionStatus, error) {
	producer := m.GetProducer(name)
	if producer == nil {
		return StatusDisconnected, fmt.Errorf("cluster not found")
	}
	return producer.GetStatus(), producer.GetError()
}

// LoadFromConfigs loads multiple cluster configurations.
func (m *Manager) LoadFromConfigs(configs []Config) {
	for i := range configs {
		m.AddCluster(&configs[i])
	}
}

// SetPrintHandler sets the handler used by print request consumers.
func (m *Manager) SetPrintHandler(handler PrintHandler) {
	m.mu.Lock()
	m.handler = handler
	consumers := make([]*Consumer, 0, len(m.consumers))
	for _, c := range m.consumers {
		consumers = append(consumers, c)
	}
	m.mu.Unlock()

	for _, c := range consumers {
		c.SetPrintHandler(handler)
	}
}

// publishing returns the connected producers with PublishChanges enabled.
func (m *Manager) publishing() []*Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Producer
	for _, p := range m.producers {
		if p.config.PublishChanges && p.GetStatus() == StatusConnected {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) builder(p *Producer) *namespace.Builder {
	return namespace.New(m.namespace, p.config.Selector)
}

// enqueue queues a message without blocking; it is dropped when the queue is full.
func (m *Manager) enqueue(job publishJob) bool {
	m.mu.RLock()
	queue := m.publishQueue
	m.mu.RUnlock()

	select {
	case queue <- job:
		return true
	default:
		logKafka("Publish queue full, dropping message for %s", job.topic)
		return false
	}
}

// PublishJob queues a job document on every publishing cluster, keyed by printer.
func (m *Manager) PublishJob(printer string, payload []byte) {
	for _, p := range m.publishing() {
		m.enqueue(publishJob{producer: p, msgType: TypeJob, topic: m.builder(p).KafkaJobTopic(), key: []byte(printer), payload: payload})
	}
}

// PublishStatus queues printer status on every publishing cluster.
func (m *Manager) PublishStatus(printer string, online bool, status, errMsg string) {
	payload, err := json.Marshal(StatusMessage{
		Printer:   printer,
		Online:    online,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	for _, p := range m.publishing() {
		m.enqueue(publishJob{producer: p, msgType: TypeStatus, topic: m.builder(p).KafkaStatusTopic(), key: []byte(printer), payload: payload})
	}
}

// PublishBatch queues a finished batch document, keyed by batch ID.
func (m *Manager) PublishBatch(batchID string, payload []byte) {
	for _, p := range m.publishing() {
		m.enqueue(publishJob{producer: p, msgType: TypeBatch, topic: m.builder(p).KafkaBatchTopic(), key: []byte(batchID), payload: payload})
	}
}

// AnyPublishing returns true if any cluster has PublishChanges enabled and is connected.
func (m *Manager) AnyPublishing() bool {
	return len(m.publishing()) > 0
}
