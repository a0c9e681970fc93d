// Package mqtt publishes print job and printer status events to MQTT brokers
// and accepts remote print requests.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zplink/config"
	"zplink/logging"
	"zplink/namespace"
)

func logMQTT(format string, args ...interface{}) {
	logging.DebugLog("mqtt", format, args...)
}

// printJob represents a pending remote print request.
type printJob struct {
	client  pahomqtt.Client
	printer string
	request PrintRequest
	handler PrintHandler
}

// MaxPrintWorkers is the maximum number of concurrent print request goroutines per publisher.
const MaxPrintWorkers = 5

// MaxPrintQueueSize is the maximum number of pending print requests per publisher.
const MaxPrintQueueSize = 100

// publishTimeout bounds how long a publish waits for the broker.
const publishTimeout = 2 * time.Second

// Publisher handles the connection to a single broker.
type Publisher struct {
	config  *config.MQTTConfig
	builder *namespace.Builder
	client  pahomqtt.Client
	running bool
	mu      sync.RWMutex

	printHandler PrintHandler

	// Worker pool for bounded print request goroutines
	printQueue chan printJob
	wg         sync.WaitGroup
	stopChan   chan struct{}
}

// StatusMessage is the retained JSON document describing a printer.
type StatusMessage struct {
	Topic     string `json:"topic"`
	Printer   string `json:"printer"`
	Online    bool   `json:"online"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PrintRequest is the JSON structure for incoming print requests.
type PrintRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Kind      string          `json:"kind"`
	Object    json.RawMessage `json:"object"`
	Template  string          `json:"template,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	PrintedBy string          `json:"printed_by,omitempty"`
}

// PrintResponse is the JSON structure published after a print request.
type PrintResponse struct {
	Topic     string `json:"topic"`
	Printer   string `json:"printer"`
	RequestID string `json:"request_id,omitempty"`
	JobID     string `json:"print_job_id,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PrintHandler prints a remote request on the named printer and returns the job ID.
type PrintHandler func(printer string, req PrintRequest) (jobID string, err error)

// NewPublisher creates a new publisher for a single broker. Topics are built
// from ns and the broker's selector.
func NewPublisher(cfg *config.MQTTConfig, ns string) *Publisher {
	return &Publisher{
		config:     cfg,
		builder:    namespace.New(ns, cfg.Selector),
		printQueue: make(chan printJob, MaxPrintQueueSize),
		stopChan:   make(chan struct{}),
	}
}

// Name returns the publisher's name.
func (p *Publisher) Name() string {
	return p.config.Name
}

// Builder returns the topic builder.
func (p *Publisher) Builder() *namespace.Builder {
	return p.builder
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Start connects to the broker.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	// Build options WITHOUT holding the lock
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.Address())
	if p.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	// Subscriptions are lost on reconnect with a clean session.
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.subscribePrintTopic(c)
	})

	client := pahomqtt.NewClient(opts)
	logMQTT("Attempting to connect to MQTT broker %s", p.Address())

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		logMQTT("MQTT connection timeout")
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		logMQTT("MQTT connection error: %v", token.Error())
		return token.Error()
	}

	logMQTT("Successfully connected to MQTT broker %s", p.Address())

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		client.Disconnect(100)
		return nil
	}
	p.client = client
	p.running = true
	p.mu.Unlock()

	p.startPrintWorkers()
	return nil
}

func (p *Publisher) startPrintWorkers() {
	p.mu.RLock()
	stop := p.stopChan
	queue := p.printQueue
	p.mu.RUnlock()

	for i := 0; i < MaxPrintWorkers; i++ {
		p.wg.Add(1)
		go p.printWorker(stop, queue)
	}
}

// printWorker processes print requests from the queue.
func (p *Publisher) printWorker(stop <-chan struct{}, queue <-chan printJob) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		case job := <-queue:
			resp := p.handlePrint(job.printer, job.request, job.handler)
			p.publishPrintResponse(job.client, resp)
		}
	}
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running || p.client == nil {
		p.mu.Unlock()
		return
	}

	p.running = false
	client := p.client
	p.client = nil

	oldStopChan := p.stopChan
	p.stopChan = make(chan struct{})
	p.printQueue = make(chan printJob, MaxPrintQueueSize)
	p.mu.Unlock()

	close(oldStopChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logMQTT("Timeout waiting for print workers to stop")
	}

	client.Disconnect(500)
}

// publish sends payload and waits briefly for the broker acknowledgement.
func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return fmt.Errorf("publisher %s not running", p.config.Name)
	}

	token := client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// PublishJob publishes a print job document on the printer's job topic.
func (p *Publisher) PublishJob(printer string, payload []byte) error {
	return p.publish(p.builder.MQTTJobTopic(printer), payload, false)
}

// PublishStatus publishes the printer status as a retained message.
func (p *Publisher) PublishStatus(printer string, online bool, status, errMsg string) error {
	data, err := json.Marshal(p.statusMessage(printer, online, status, errMsg))
	if err != nil {
		return err
	}
	return p.publish(p.builder.MQTTStatusTopic(printer), data, true)
}

func (p *Publisher) statusMessage(printer string, online bool, status, errMsg string) StatusMessage {
	return StatusMessage{
		Topic:     p.builder.MQTTBase(),
		Printer:   printer,
		Online:    online,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// PublishBatch publishes a finished batch document.
func (p *Publisher) PublishBatch(payload []byte) error {
	return p.publish(p.builder.MQTTBatchTopic(), payload, false)
}

// PublishEvent publishes any other engine event under the events topic.
func (p *Publisher) PublishEvent(event string, payload []byte) error {
	return p.publish(p.builder.MQTTEventTopic(event), payload, false)
}

// Address returns the broker address string.
func (p *Publisher) Address() string {
	if p.config.UseTLS {
		return fmt.Sprintf("ssl://%s:%d", p.config.Broker, p.config.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
}

// Config returns the publisher's configuration.
func (p *Publisher) Config() *config.MQTTConfig {
	return p.config
}

// SetPrintHandler sets the callback for remote print requests.
func (p *Publisher) SetPrintHandler(handler PrintHandler) {
	p.mu.Lock()
	p.printHandler = handler
	p.mu.Unlock()
}

// subscribePrintTopic subscribes to print requests for every printer.
func (p *Publisher) subscribePrintTopic(client pahomqtt.Client) {
	p.mu.RLock()
	handler := p.printHandler
	p.mu.RUnlock()
	if handler == nil {
		return
	}

	topic := p.builder.MQTTPrintTopic("+")
	token := client.Subscribe(topic, 1, p.handlePrintMessage)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		logMQTT("Failed to subscribe to %s: %v", topic, token.Error())
		return
	}
	logMQTT("Subscribed to %s", topic)
}

// parsePrintTopic extracts the printer name from a print request topic.
func (p *Publisher) parsePrintTopic(topic string) (string, bool) {
	prefix := p.builder.MQTTBase() + "/printers/"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/print") {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/print")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (p *Publisher) handlePrintMessage(client pahomqtt.Client, msg pahomqtt.Message) {
	printer, ok := p.parsePrintTopic(msg.Topic())
	if !ok {
		return
	}

	p.mu.RLock()
	handler := p.printHandler
	queue := p.printQueue
	p.mu.RUnlock()

	var req PrintRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		logMQTT("Invalid print request on %s: %v", msg.Topic(), err)
		p.publishPrintResponse(client, p.printResponse(printer, req, "", fmt.Errorf("invalid JSON: %w", err)))
		return
	}

	select {
	case queue <- printJob{client: client, printer: printer, request: req, handler: handler}:
	default:
		logMQTT("Print queue full, rejecting request for %s", printer)
		p.publishPrintResponse(client, p.printResponse(printer, req, "", fmt.Errorf("print queue full")))
	}
}

// handlePrint runs a print request through the handler.
func (p *Publisher) handlePrint(printer string, req PrintRequest, handler PrintHandler) PrintResponse {
	if handler == nil {
		return p.printResponse(printer, req, "", fmt.Errorf("no print handler configured"))
	}
	if req.Kind == "" || len(req.Object) == 0 {
		return p.printResponse(printer, req, "", fmt.Errorf("kind and object are required"))
	}
	logMQTT("Print request %s on %s (%s)", req.RequestID, printer, req.Kind)
	jobID, err := handler(printer, req)
	if err != nil {
		logMQTT("Print request on %s failed: %v", printer, err)
	}
	return p.printResponse(printer, req, jobID, err)
}

func (p *Publisher) printResponse(printer string, req PrintRequest, jobID string, err error) PrintResponse {
	resp := PrintResponse{
		Topic:     p.builder.MQTTBase(),
		Printer:   printer,
		RequestID: req.RequestID,
		JobID:     jobID,
		Success:   err == nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (p *Publisher) publishPrintResponse(client pahomqtt.Client, resp PrintResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	token := client.Publish(p.builder.MQTTPrintResponseTopic(resp.Printer), 1, false, data)
	token.WaitTimeout(publishTimeout)
}

// Manager manages multiple MQTT publishers.
type Manager struct {
	publishers   map[string]*Publisher
	mu           sync.RWMutex
	printHandler PrintHandler
}

// NewManager creates a new MQTT manager.
func NewManager() *Manager {
	return &Manager{
		publishers: make(map[string]*Publisher),
	}
}

// Add adds a publisher to the manager.
func (m *Manager) Add(pub *Publisher) {
	m.mu.Lock()
	m.publishers[pub.Name()] = pub
	handler := m.printHandler
	m.mu.Unlock()

	if handler != nil {
		pub.SetPrintHandler(handler)
	}
}

// Remove removes a publisher by name.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	pub, exists := m.publishers[name]
	if exists {
		delete(m.publishers, name)
	}
	m.mu.Unlock()

	if exists {
		pub.Stop()
	}
}

// Get returns a publisher by name.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishers[name]
}

// List returns all publishers sorted by name.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	result := make([]*Publisher, 0, len(m.publishers))
	for _, pub := range m.publishers {
		result = append(result, pub)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// StartAll starts all publishers that are configured as enabled.
// Returns the number of publishers successfully started.
func (m *Manager) StartAll() int {
	started := 0
	for _, pub := range m.List() {
		if pub.config.Enabled && !pub.IsRunning() {
			logMQTT("Auto-starting MQTT publisher: %s", pub.Name())
			if err := pub.Start(); err != nil {
				logMQTT("Failed to auto-start %s: %v", pub.Name(), err)
			} else {
				logMQTT("Successfully started %s (%s)", pub.Name(), pub.Address())
				started++
			}
		}
	}
	return started
}

// StopAll stops all publishers.
func (m *Manager) StopAll() {
	for _, pub := range m.List() {
		pub.Stop()
	}
}

// running returns the connected publishers.
func (m *Manager) running() []*Publisher {
	var pubs []*Publisher
	for _, pub := range m.List() {
		if pub.IsRunning() {
			pubs = append(pubs, pub)
		}
	}
	return pubs
}

// PublishJob publishes a job document to all running publishers.
func (m *Manager) PublishJob(printer string, payload []byte) {
	for _, pub := range m.running() {
		if err := pub.PublishJob(printer, payload); err != nil {
			logMQTT("Job publish error (%s): %v", pub.Name(), err)
		}
	}
}

// PublishStatus publishes printer status to all running publishers.
func (m *Manager) PublishStatus(printer string, online bool, status, errMsg string) {
	for _, pub := range m.running() {
		if err := pub.PublishStatus(printer, online, status, errMsg); err != nil {
			logMQTT("Status publish error (%s): %v", pub.Name(), err)
		}
	}
}

// PublishBatch publishes a batch document to all running publishers.
func (m *Manager) PublishBatch(payload []byte) {
	for _, pub := range m.running() {
		if err := pub.PublishBatch(payload); err != nil {
			logMQTT("Batch publish error (%s): %v", pub.Name(), err)
		}
	}
}

// PublishEvent publishes an engine event to all running publishers.
func (m *Manager) PublishEvent(event string, payload []byte) {
	for _, pub := range m.running() {
		if err := pub.PublishEvent(event, payload); err != nil {
			logMQTT("Event publish error (%s): %v", pub.Name(), err)
		}
	}
}

// AnyRunning returns true if any publisher is running.
func (m *Manager) AnyRunning() bool {
	return len(m.running()) > 0
}

// LoadFromConfig creates publishers from configuration.
func (m *Manager) LoadFromConfig(cfgs []config.MQTTConfig, ns string) {
	for i := range cfgs {
		m.Add(NewPublisher(&cfgs[i], ns))
	}
}

// SetPrintHandler sets the remote print handler for all publishers.
func (m *Manager) SetPrintHandler(handler PrintHandler) {
	m.mu.Lock()
	m.printHandler = handler
	pubs := make([]*Publisher, 0, len(m.publishers))
	for _, pub := range m.publishers {
		pubs = append(pubs, pub)
	}
	m.mu.Unlock()

	for _, pub := range pubs {
		pub.SetPrintHandler(handler)
	}
}
