// Package push delivers engine events to outbound HTTP webhooks.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"zplink/config"
	"zplink/logging"
)

// Status represents the current state of a webhook.
type Status int

const (
	StatusDisabled Status = iota
	StatusIdle            // Waiting for events
	StatusSending         // Sending HTTP request
	StatusCooldown        // Sent recently, dropping events until CooldownMin elapses
	StatusError           // Last delivery failed
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "Disabled"
	case StatusIdle:
		return "Idle"
	case StatusSending:
		return "Sending"
	case StatusCooldown:
		return "Cooldown"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// DefaultEvents are delivered when a webhook lists no events.
var DefaultEvents = []string{"print_job_success", "print_job_failure"}

// MaxPendingEvents bounds the per-webhook delivery queue.
const MaxPendingEvents = 100

// fieldRefRegex matches #field and #field.sub references in body templates.
var fieldRefRegex = regexp.MustCompile(`#([a-zA-Z_]\w*(?:\.\w+)*)`)

// Event is one engine event offered to webhooks.
type Event struct {
	Type      string
	Timestamp time.Time
	Data      json.RawMessage
}

// Push sends matching events to one webhook URL.
type Push struct {
	config *config.WebhookConfig

	status       Status
	lastErr      error
	sendCount    int64
	dropCount    int64
	lastSend     time.Time
	lastHTTPCode int
	mu           sync.RWMutex

	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	httpClient *http.Client
	logFn      func(format string, args ...interface{})
}

// NewPush creates a webhook from configuration.
func NewPush(cfg *config.WebhookConfig) (*Push, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook %s: url is required", cfg.Name)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Push{
		config:     cfg,
		status:     StatusDisabled,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the webhook name.
func (p *Push) Name() string {
	return p.config.Name
}

// SetLogFunc sets the logging callback.
func (p *Push) SetLogFunc(fn func(format string, args ...interface{})) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logFn = fn
}

func (p *Push) log(format string, args ...interface{}) {
	p.mu.RLock()
	fn := p.logFn
	p.mu.RUnlock()
	if fn != nil {
		fn("[Push:%s] "+format, append([]interface{}{p.config.Name}, args...)...)
	}
	logging.DebugLog("push", p.config.Name+": "+format, args...)
}

// GetStatus returns the current webhook status.
func (p *Push) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.status == StatusCooldown && time.Since(p.lastSend) >= p.config.CooldownMin {
		return StatusIdle
	}
	return p.status
}

// GetError returns the last error.
func (p *Push) GetError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// GetStats returns webhook statistics.
func (p *Push) GetStats() (sendCount, dropCount int64, lastSend time.Time, lastHTTPCode int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sendCount, p.dropCount, p.lastSend, p.lastHTTPCode
}

// Matches reports whether the webhook subscribes to eventType.
func (p *Push) Matches(eventType string) bool {
	events := p.config.Events
	if len(events) == 0 {
		events = DefaultEvents
	}
	for _, e := range events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// Start begins delivering queued events.
func (p *Push) Start() {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return
	}
	if !p.config.Enabled {
		p.status = StatusDisabled
		p.mu.Unlock()
		return
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.queue = make(chan Event, MaxPendingEvents)
	p.status = StatusIdle
	ctx, queue := p.ctx, p.queue
	p.mu.Unlock()

	p.wg.Add(1)
	go p.deliverLoop(ctx, queue)

	p.log("started, events %v", p.config.Events)
}

// Stop halts delivery. Pending events are discarded.
func (p *Push) Stop() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
	}

	p.mu.Lock()
	p.ctx = nil
	p.cancel = nil
	p.queue = nil
	p.status = StatusDisabled
	p.mu.Unlock()

	p.log("stopped")
}

// Notify offers an event. It never blocks; events that do not match, arrive
// while stopped, or overflow the queue are dropped.
func (p *Push) Notify(ev Event) bool {
	if !p.Matches(ev.Type) {
		return false
	}

	p.mu.RLock()
	queue := p.queue
	p.mu.RUnlock()
	if queue == nil {
		return false
	}

	select {
	case queue <- ev:
		return true
	default:
		p.mu.Lock()
		p.dropCount++
		p.mu.Unlock()
		p.log("queue full, dropping %s", ev.Type)
		return false
	}
}

func (p *Push) deliverLoop(ctx context.Context, queue <-chan Event) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			if p.inCooldown() {
				p.mu.Lock()
				p.dropCount++
				p.mu.Unlock()
				p.log("cooldown active, dropping %s", ev.Type)
				continue
			}
			if err := p.send(ctx, ev); err != nil {
				p.handleError(err)
			}
		}
	}
}

func (p *Push) inCooldown() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.CooldownMin > 0 && !p.lastSend.IsZero() && time.Since(p.lastSend) < p.config.CooldownMin
}

// send delivers one event and records the outcome.
func (p *Push) send(ctx context.Context, ev Event) error {
	p.mu.Lock()
	started := p.ctx != nil
	if started {
		p.status = StatusSending
	}
	p.mu.Unlock()

	req, err := p.buildRequest(ctx, p.resolveBody(ev))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	p.log("sent %s via HTTP %s to %s, status=%d", ev.Type, req.Method, p.config.URL, resp.StatusCode)

	p.mu.Lock()
	p.sendCount++
	p.lastSend = time.Now()
	p.lastHTTPCode = resp.StatusCode
	p.lastErr = nil
	if started {
		p.status = StatusIdle
		if p.config.CooldownMin > 0 {
			p.status = StatusCooldown
		}
	}
	p.mu.Unlock()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// TestFire sends a test event immediately, bypassing the event filter and cooldown.
func (p *Push) TestFire(ctx context.Context) error {
	p.log("TEST FIRE triggered manually")
	data, _ := json.Marshal(map[string]interface{}{
		"test":    true,
		"webhook": p.config.Name,
	})
	err := p.send(ctx, Event{Type: "test", Timestamp: time.Now(), Data: data})
	if err != nil {
		p.handleError(err)
	}
	return err
}

// resolveBody renders the configured body template for ev, or a JSON
// envelope when no template is set.
func (p *Push) resolveBody(ev Event) string {
	fields := map[string]interface{}{}
	if len(ev.Data) > 0 {
		json.Unmarshal(ev.Data, &fields)
	}

	if p.config.Body == "" {
		data := ev.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		envelope, _ := json.Marshal(struct {
			Event     string          `json:"event"`
			Timestamp time.Time       `json:"timestamp"`
			Data      json.RawMessage `json:"data"`
		}{ev.Type, ev.Timestamp.UTC(), data})
		return string(envelope)
	}

	jsonBody := strings.Contains(p.contentType(), "json")
	return fieldRefRegex.ReplaceAllStringFunc(p.config.Body, func(match string) string {
		ref := match[1:]
		if ref == "event" {
			return ev.Type
		}
		value, ok := lookup(fields, ref)
		if !ok {
			return match
		}
		return formatValue(value, jsonBody)
	})
}

// lookup resolves a dotted path in decoded JSON.
func lookup(fields map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// formatValue renders a field for substitution. Strings in JSON bodies are
// escaped but not quoted so templates can place them inside quotes.
func formatValue(v interface{}, jsonBody bool) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if !jsonBody {
			return val
		}
		b, _ := json.Marshal(val)
		return string(b[1 : len(b)-1])
	case float64, bool:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func (p *Push) contentType() string {
	if p.config.ContentType == "" {
		return "application/json"
	}
	return p.config.ContentType
}

// buildRequest constructs the HTTP request with headers and auth.
func (p *Push) buildRequest(ctx context.Context, body string) (*http.Request, error) {
	method := p.config.Method
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", p.contentType())
	}

	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}

	switch p.config.Auth.Type {
	case config.WebhookAuthBearer:
		req.Header.Set("Authorization", "Bearer "+p.config.Auth.Token)
	case config.WebhookAuthBasic:
		req.SetBasicAuth(p.config.Auth.Username, p.config.Auth.Password)
	case config.WebhookAuthCustomHeader:
		if p.config.Auth.HeaderName != "" {
			req.Header.Set(p.config.Auth.HeaderName, p.config.Auth.HeaderValue)
		}
	}

	return req, nil
}

// handleError records a delivery error.
func (p *Push) handleError(err error) {
	p.log("error: %v", err)

	p.mu.Lock()
	p.lastErr = err
	if p.ctx != nil {
		p.status = StatusError
	}
	p.mu.Unlock()
}

// Reset clears the error state.
func (p *Push) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusError || p.status == StatusCooldown {
		p.lastErr = nil
		p.lastSend = time.Time{}
		if p.ctx != nil {
			p.status = StatusIdle
		} else {
			p.status = StatusDisabled
		}
	}
}
