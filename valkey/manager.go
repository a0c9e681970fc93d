package valkey

import (
	"fmt"
	"sync"

	"zplink/config"
	"zplink/logging"
)

// Manager owns the Valkey publishers and fans label events out to the
// running ones.
type Manager struct {
	publishers []*Publisher
	mu         sync.RWMutex

	// Applied to publishers added later as well as existing ones
	printHandler      PrintHandler
	onConnectCallback func()
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// LoadFromConfig adds a publisher per configured server.
func (m *Manager) LoadFromConfig(configs []config.ValkeyConfig, ns string) {
	for i := range configs {
		m.Add(&configs[i], ns)
	}
}

// Add creates a publisher for cfg with the shared callbacks installed.
func (m *Manager) Add(cfg *config.ValkeyConfig, ns string) *Publisher {
	m.mu.Lock()
	defer m.mu.Unlock()

	pub := NewPublisher(cfg, ns)
	pub.SetPrintHandler(m.printHandler)
	pub.SetOnConnectCallback(m.onConnectCallback)
	m.publishers = append(m.publishers, pub)
	return pub
}

// Remove stops and drops the named publisher.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	var removed *Publisher
	for i, pub := range m.publishers {
		if pub.config.Name == name {
			removed = pub
			m.publishers = append(m.publishers[:i], m.publishers[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if removed == nil {
		return false
	}
	// Stopping waits for the print queue reader, so it runs unlocked.
	removed.Stop()
	return true
}

// Get returns a publisher by name, or nil.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, pub := range m.publishers {
		if pub.config.Name == name {
			return pub
		}
	}
	return nil
}

// List returns a snapshot of all publishers.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Publisher, len(m.publishers))
	copy(out, m.publishers)
	return out
}

// Start connects the named publisher.
func (m *Manager) Start(name string) error {
	pub := m.Get(name)
	if pub == nil {
		return fmt.Errorf("valkey server not found: %s", name)
	}
	return pub.Start()
}

// Stop disconnects the named publisher.
func (m *Manager) Stop(name string) error {
	pub := m.Get(name)
	if pub == nil {
		return fmt.Errorf("valkey server not found: %s", name)
	}
	return pub.Stop()
}

// StartAll starts every enabled publisher and returns how many came up.
func (m *Manager) StartAll() int {
	started := 0
	for _, pub := range m.List() {
		if !pub.config.Enabled {
			continue
		}
		if err := pub.Start(); err != nil {
			logging.DebugLog("valkey", "Failed to start %s: %v", pub.config.Name, err)
			continue
		}
		logging.DebugLog("valkey", "Started %s at %s", pub.config.Name, pub.Address())
		started++
	}
	return started
}

// StopAll stops every publisher.
func (m *Manager) StopAll() {
	for _, pub := range m.List() {
		pub.Stop()
	}
}

// AnyRunning reports whether any publisher is connected.
func (m *Manager) AnyRunning() bool {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			return true
		}
	}
	return false
}

// eachRunning calls fn for every connected publisher and logs failures
// under what.
func (m *Manager) eachRunning(what string, fn func(*Publisher) error) {
	for _, pub := range m.List() {
		if !pub.IsRunning() {
			continue
		}
		if err := fn(pub); err != nil {
			logging.DebugLog("valkey", "%s publish error (%s): %v", what, pub.config.Name, err)
		}
	}
}

// PublishJob stores a job record on all running publishers.
func (m *Manager) PublishJob(jobID, printer string, payload []byte) {
	m.eachRunning("job", func(pub *Publisher) error {
		return pub.PublishJob(jobID, printer, payload)
	})
}

// PublishStatus writes printer status to all running publishers.
func (m *Manager) PublishStatus(printer string, online bool, status, errMsg string) {
	m.eachRunning("status", func(pub *Publisher) error {
		return pub.PublishStatus(printer, online, status, errMsg)
	})
}

// PublishBatch announces a finished batch on all running publishers.
func (m *Manager) PublishBatch(payload []byte) {
	m.eachRunning("batch", func(pub *Publisher) error {
		return pub.PublishBatch(payload)
	})
}

// SetPrintHandler sets the print queue handler for all publishers.
func (m *Manager) SetPrintHandler(handler PrintHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.printHandler = handler
	for _, pub := range m.publishers {
		pub.SetPrintHandler(handler)
	}
}

// SetOnConnectCallback sets the callback run after each (re)connect.
func (m *Manager) SetOnConnectCallback(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onConnectCallback = callback
	for _, pub := range m.publishers {
		pub.SetOnConnectCallback(callback)
	}
}
