// Package valkey stores print job records and printer status in Valkey/Redis
// and consumes a remote print queue.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"zplink/config"
	"zplink/logging"
	"zplink/namespace"
)

// RecentJobsLimit is the length of the recent job id list.
const RecentJobsLimit = 500

// opTimeout bounds each Valkey round trip.
const opTimeout = 2 * time.Second

// StatusMessage represents printer status stored in Valkey.
type StatusMessage struct {
	Instance  string    `json:"instance"`
	Printer   string    `json:"printer"`
	Online    bool      `json:"online"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PrintRequest represents a request taken from the print queue.
type PrintRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Printer   string          `json:"printer"`
	Kind      string          `json:"kind"`
	Object    json.RawMessage `json:"object"`
	Template  string          `json:"template,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	PrintedBy string          `json:"printed_by,omitempty"`
}

// PrintResponse represents the outcome of a queued print request.
type PrintResponse struct {
	Instance  string    `json:"instance"`
	RequestID string    `json:"request_id,omitempty"`
	Printer   string    `json:"printer"`
	JobID     string    `json:"print_job_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PrintHandler prints a queued request and returns the job ID.
type PrintHandler func(req PrintRequest) (jobID string, err error)

// Publisher handles publishing to a Valkey server.
type Publisher struct {
	config  *config.ValkeyConfig
	builder *namespace.Builder
	client  *redis.Client
	running bool
	mu      sync.RWMutex

	printHandler      PrintHandler
	onConnectCallback func()

	// Print queue processing
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPublisher creates a new Valkey publisher. Keys are built from ns and
// the server's selector.
func NewPublisher(cfg *config.ValkeyConfig, ns string) *Publisher {
	return &Publisher{
		config:   cfg,
		builder:  namespace.New(ns, cfg.Selector),
		stopChan: make(chan struct{}),
	}
}

// Start connects to the Valkey server.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := &redis.Options{
		Addr:         p.config.Address,
		Password:     p.config.Password,
		DB:           p.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}

	if p.config.UseTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	// Create client and test connection WITHOUT holding the lock
	client := redis.NewClient(opts)

	logging.DebugConnect("valkey", p.config.Address)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.DebugConnectError("valkey", p.config.Address, err)
		client.Close()
		return fmt.Errorf("failed to connect to Valkey at %s: %w", p.config.Address, err)
	}

	logging.DebugConnectSuccess("valkey", p.config.Address, fmt.Sprintf("db=%d tls=%v", p.config.Database, p.config.UseTLS))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		client.Close()
		return nil
	}

	p.client = client
	p.running = true
	p.stopChan = make(chan struct{})

	if p.printHandler != nil {
		p.wg.Add(1)
		go p.printQueueListener(client, p.stopChan)
	}

	if p.onConnectCallback != nil {
		go p.onConnectCallback()
	}

	return nil
}

// Stop disconnects from the Valkey server.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}

	p.running = false
	close(p.stopChan)

	client := p.client
	p.client = nil
	p.mu.Unlock()

	// printQueueListener uses a 1s BLPop timeout; do not wait for it longer than needed.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}

	logging.DebugDisconnect("valkey", p.config.Address, "stopped")
	if client != nil {
		return client.Close()
	}
	return nil
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Config returns the publisher's configuration.
func (p *Publisher) Config() *config.ValkeyConfig {
	return p.config
}

// Builder returns the key builder.
func (p *Publisher) Builder() *namespace.Builder {
	return p.builder
}

// Address returns the server address.
func (p *Publisher) Address() string {
	scheme := "redis"
	if p.config.UseTLS {
		scheme = "rediss"
	}
	return fmt.Sprintf("%s://%s", scheme, p.config.Address)
}

func (p *Publisher) connected() (*redis.Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running || p.client == nil {
		return nil, false
	}
	return p.client, true
}

// PublishJob stores a job record, prepends its id to the recent list and,
// with PublishChanges, announces it on the printer and _all channels.
func (p *Publisher) PublishJob(jobID, printer string, payload []byte) error {
	client, ok := p.connected()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	recent := p.builder.ValkeyRecentJobsKey()
	pipe := client.TxPipeline()
	pipe.Set(ctx, p.builder.ValkeyJobKey(jobID), payload, p.config.KeyTTL)
	pipe.LPush(ctx, recent, jobID)
	pipe.LTrim(ctx, recent, 0, RecentJobsLimit-1)
	if p.config.PublishChanges {
		pipe.Publish(ctx, p.builder.ValkeyJobsChannel(printer), payload)
		pipe.Publish(ctx, p.builder.ValkeyAllJobsChannel(), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store job %s: %w", jobID, err)
	}
	return nil
}

func (p *Publisher) statusMessage(printer string, online bool, status, errMsg string) StatusMessage {
	return StatusMessage{
		Instance:  p.builder.ValkeyInstance(),
		Printer:   printer,
		Online:    online,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

// PublishStatus stores printer status and announces the change.
func (p *Publisher) PublishStatus(printer string, online bool, status, errMsg string) error {
	client, ok := p.connected()
	if !ok {
		return nil
	}

	data, err := json.Marshal(p.statusMessage(printer, online, status, errMsg))
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Status reflects the last check and does not expire.
	if err := client.Set(ctx, p.builder.ValkeyStatusKey(printer), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set status key: %w", err)
	}
	if p.config.PublishChanges {
		client.Publish(ctx, p.builder.ValkeyStatusChannel(), data)
	}
	return nil
}

// PublishBatch announces a finished batch.
func (p *Publisher) PublishBatch(payload []byte) error {
	client, ok := p.connected()
	if !ok || !p.config.PublishChanges {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return client.Publish(ctx, p.builder.ValkeyBatchChannel(), payload).Err()
}

// SetPrintHandler sets the callback for queued print requests. It takes
// effect on the next Start.
func (p *Publisher) SetPrintHandler(handler PrintHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printHandler = handler
}

// SetOnConnectCallback sets the callback invoked after connection is established.
func (p *Publisher) SetOnConnectCallback(callback func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnectCallback = callback
}

// printQueueListener pops print requests from the queue until stopped.
func (p *Publisher) printQueueListener(client *redis.Client, stop <-chan struct{}) {
	defer p.wg.Done()

	queueKey := p.builder.ValkeyPrintQueueKey()
	responseChannel := p.builder.ValkeyPrintResponseChannel()

	for {
		select {
		case <-stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		result, err := client.BLPop(ctx, 1*time.Second, queueKey).Result()
		cancel()

		if err != nil {
			if err != redis.Nil {
				logging.DebugLog("valkey", "print queue error: %v", err)
				select {
				case <-stop:
					return
				case <-time.After(time.Second):
				}
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		resp := p.processPrintRequest([]byte(result[1]))
		data, _ := json.Marshal(resp)
		pctx, pcancel := context.WithTimeout(context.Background(), opTimeout)
		client.Publish(pctx, responseChannel, data)
		pcancel()
	}
}

// processPrintRequest decodes and runs one queued request.
func (p *Publisher) processPrintRequest(raw []byte) PrintResponse {
	p.mu.RLock()
	handler := p.printHandler
	p.mu.RUnlock()

	resp := PrintResponse{
		Instance:  p.builder.ValkeyInstance(),
		Timestamp: time.Now().UTC(),
	}

	var req PrintRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		resp.Error = fmt.Sprintf("invalid JSON: %v", err)
		return resp
	}
	resp.RequestID = req.RequestID
	resp.Printer = req.Printer

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

	logging.DebugLog("valkey", "print request %s on %s -> success=%v", req.RequestID, req.Printer, resp.Success)
	return resp
}
