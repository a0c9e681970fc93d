package push

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"zplink/config"
)

// Manager manages all configured webhooks.
type Manager struct {
	pushes map[string]*Push
	mu     sync.RWMutex

	logFn func(format string, args ...interface{})
}

// NewManager creates a new webhook manager.
func NewManager() *Manager {
	return &Manager{
		pushes: make(map[string]*Push),
	}
}

// SetLogFunc sets the logging callback for all webhooks.
func (m *Manager) SetLogFunc(fn func(format string, args ...interface{})) {
	m.mu.Lock()
	m.logFn = fn
	for _, p := range m.pushes {
		p.SetLogFunc(fn)
	}
	m.mu.Unlock()
}

func (m *Manager) log(format string, args ...interface{}) {
	m.mu.RLock()
	fn := m.logFn
	m.mu.RUnlock()
	if fn != nil {
		fn("[PushMgr] "+format, args...)
	}
}

func (m *Manager) snapshot() []*Push {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pushes := make([]*Push, 0, len(m.pushes))
	for _, p := range m.pushes {
		pushes = append(pushes, p)
	}
	return pushes
}

// AddPush adds a new webhook configuration.
func (m *Manager) AddPush(cfg *config.WebhookConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pushes[cfg.Name]; exists {
		return fmt.Errorf("webhook already exists: %s", cfg.Name)
	}

	push, err := NewPush(cfg)
	if err != nil {
		return err
	}

	push.SetLogFunc(m.logFn)
	m.pushes[cfg.Name] = push
	return nil
}

// RemovePush removes and stops a webhook.
func (m *Manager) RemovePush(name string) {
	m.mu.Lock()
	push, exists := m.pushes[name]
	if exists {
		delete(m.pushes, name)
	}
	m.mu.Unlock()

	if exists {
		push.Stop()
	}
}

// UpdatePush replaces an existing webhook configuration.
func (m *Manager) UpdatePush(cfg *config.WebhookConfig) error {
	m.RemovePush(cfg.Name)
	return m.AddPush(cfg)
}

// GetPush returns the webhook with the given name.
func (m *Manager) GetPush(name string) *Push {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pushes[name]
}

// ListPushes returns all webhook names, sorted.
func (m *Manager) ListPushes() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.pushes))
	for name := range m.pushes {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Start starts all enabled webhooks.
func (m *Manager) Start() {
	pushes := m.snapshot()
	for _, p := range pushes {
		p.Start()
	}
	m.log("started %d webhooks", len(pushes))
}

// Stop stops all webhooks.
func (m *Manager) Stop() {
	for _, p := range m.snapshot() {
		p.Stop()
	}
	m.log("stopped all webhooks")
}

// Notify offers ev to every webhook and returns how many queued it.
func (m *Manager) Notify(ev Event) int {
	queued := 0
	for _, p := range m.snapshot() {
		if p.Notify(ev) {
			queued++
		}
	}
	return queued
}

// StartPush starts a specific webhook.
func (m *Manager) StartPush(name string) error {
	push := m.GetPush(name)
	if push == nil {
		return fmt.Errorf("webhook not found: %s", name)
	}
	push.Start()
	return nil
}

// StopPush stops a specific webhook.
func (m *Manager) StopPush(name string) error {
	push := m.GetPush(name)
	if push == nil {
		return fmt.Errorf("webhook not found: %s", name)
	}
	push.Stop()
	return nil
}

// TestFirePush sends a test request for the named webhook.
func (m *Manager) TestFirePush(ctx context.Context, name string) error {
	push := m.GetPush(name)
	if push == nil {
		return fmt.Errorf("webhook not found: %s", name)
	}
	return push.TestFire(ctx)
}

// ResetPush resets a webhook from error state.
func (m *Manager) ResetPush(name string) error {
	push := m.GetPush(name)
	if push == nil {
		return fmt.Errorf("webhook not found: %s", name)
	}
	push.Reset()
	return nil
}

// LoadFromConfig loads webhooks from configuration.
func (m *Manager) LoadFromConfig(configs []config.WebhookConfig) {
	for i := range configs {
		if err := m.AddPush(&configs[i]); err != nil {
			m.log("error adding webhook %s: %v", configs[i].Name, err)
		}
	}
}

// PushInfo holds summary information about a webhook.
type PushInfo struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Method       string    `json:"method"`
	Events       []string  `json:"events"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	SendCount    int64     `json:"send_count"`
	DropCount    int64     `json:"drop_count"`
	LastSend     time.Time `json:"last_send,omitempty"`
	LastHTTPCode int       `json:"last_http_code,omitempty"`
}

// GetAllPushInfo returns info for all webhooks, sorted by name.
func (m *Manager) GetAllPushInfo() []PushInfo {
	pushes := m.snapshot()
	infos := make([]PushInfo, 0, len(pushes))
	for _, p := range pushes {
		count, drops, lastSend, lastCode := p.GetStats()
		info := PushInfo{
			Name:         p.config.Name,
			URL:          p.config.URL,
			Method:       p.config.Method,
			Events:       p.config.Events,
			Status:       p.GetStatus().String(),
			SendCount:    count,
			DropCount:    drops,
			LastSend:     lastSend,
			LastHTTPCode: lastCode,
		}
		if len(info.Events) == 0 {
			info.Events = DefaultEvents
		}
		if err := p.GetError(); err != nil {
			info.Error = err.Error()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
