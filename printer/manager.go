package printer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"zplink/config"
	"zplink/logging"
)

// ErrUnknownPrinter is returned for operations on a printer that is not loaded.
var ErrUnknownPrinter = errors.New("printer not found")

// State is the last observed health of a printer.
type State struct {
	Online      bool      `json:"online"`
	LastChecked time.Time `json:"last_checked,omitempty"`
	LastOnline  time.Time `json:"last_online,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Status      *Status   `json:"status,omitempty"`
}

// Info is a printer's configuration together with its state.
type Info struct {
	config.PrinterConfig
	Address string `json:"address"`
	Charset string `json:"charset"`
	State   State  `json:"state"`
}

// StatusChangeFunc is called when a printer's online state changes.
type StatusChangeFunc func(name string, online bool, state State)

type managedPrinter struct {
	cfg    config.PrinterConfig
	client *Client

	// io serialises all traffic to one printer so documents from concurrent
	// requests are never interleaved on the wire. Replacing the printer's
	// config keeps the same lock.
	io *sync.Mutex

	mu      sync.RWMutex
	state   State
	checked bool
}

// Manager owns the configured printers and serialises access to each one.
type Manager struct {
	mu       sync.RWMutex
	printers map[string]*managedPrinter
	dialer   Dialer
	onChange StatusChangeFunc

	monitorMu sync.Mutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates an empty printer manager.
func NewManager() *Manager {
	return &Manager{
		printers: make(map[string]*managedPrinter),
	}
}

// SetDialer sets the connection factory used by all printers, current and future.
func (m *Manager) SetDialer(d Dialer) {
	m.mu.Lock()
	m.dialer = d
	printers := make([]*managedPrinter, 0, len(m.printers))
	for _, p := range m.printers {
		printers = append(printers, p)
	}
	m.mu.Unlock()

	for _, p := range printers {
		p.client.SetDialer(d)
	}
}

// SetOnStatusChange registers the callback for online/offline transitions.
func (m *Manager) SetOnStatusChange(fn StatusChangeFunc) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Add loads or replaces a printer. Its recorded state is kept when the
// printer is replaced.
func (m *Manager) Add(cfg config.PrinterConfig) error {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("printer %q: %w", cfg.Name, err)
	}
	cs, err := LookupCharset(cfg.Charset)
	if err != nil {
		return fmt.Errorf("printer %q: %w", cfg.Name, err)
	}

	client := NewClient(cfg.Host, cfg.GetPort(), cfg.Timeout)
	client.SetCharset(cs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dialer != nil {
		client.SetDialer(m.dialer)
	}
	p := &managedPrinter{cfg: cfg, client: client, io: &sync.Mutex{}}
	if old, ok := m.printers[cfg.Name]; ok {
		p.io = old.io
		old.mu.RLock()
		p.state, p.checked = old.state, old.checked
		old.mu.RUnlock()
	}
	m.printers[cfg.Name] = p
	return nil
}

// Remove unloads a printer.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.printers[name]; !ok {
		return false
	}
	delete(m.printers, name)
	return true
}

// LoadFromConfig loads every printer in cfgs. Printers that fail validation
// are skipped and reported in the returned error.
func (m *Manager) LoadFromConfig(cfgs []config.PrinterConfig) error {
	var errs []error
	for _, cfg := range cfgs {
		if err := m.Add(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) get(name string) (*managedPrinter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.printers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrinter, name)
	}
	return p, nil
}

// Config returns a printer's configuration.
func (m *Manager) Config(name string) (config.PrinterConfig, bool) {
	p, err := m.get(name)
	if err != nil {
		return config.PrinterConfig{}, false
	}
	return p.cfg, true
}

// Get returns a printer's configuration and state.
func (m *Manager) Get(name string) (Info, bool) {
	p, err := m.get(name)
	if err != nil {
		return Info{}, false
	}
	return p.info(), true
}

// List returns all printers sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	printers := make([]*managedPrinter, 0, len(m.printers))
	for _, p := range m.printers {
		printers = append(printers, p)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(printers))
	for _, p := range printers {
		out = append(out, p.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the printer names sorted.
func (m *Manager) Names() []string {
	infos := m.List()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func (p *managedPrinter) info() Info {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Info{
		PrinterConfig: p.cfg,
		Address:       p.client.Address(),
		Charset:       p.client.charset.Name(),
		State:         p.state,
	}
}

// Send writes one document to the named printer.
func (m *Manager) Send(ctx context.Context, name, doc string) (Result, error) {
	p, err := m.get(name)
	if err != nil {
		return Result{}, err
	}
	p.io.Lock()
	res := p.client.Send(ctx, doc)
	p.io.Unlock()

	if res.Success {
		m.markOnline(name, p)
	}
	return res, nil
}

// SendBatch writes documents to the named printer over one connection.
func (m *Manager) SendBatch(ctx context.Context, name string, docs []string) ([]Result, error) {
	p, err := m.get(name)
	if err != nil {
		return nil, err
	}
	p.io.Lock()
	results := p.client.SendBatch(ctx, docs)
	p.io.Unlock()

	for _, r := range results {
		if r.Success {
			m.markOnline(name, p)
			break
		}
	}
	return results, nil
}

// Status queries the named printer's host status. A nil status means the
// printer did not answer.
func (m *Manager) Status(ctx context.Context, name string) (*Status, error) {
	p, err := m.get(name)
	if err != nil {
		return nil, err
	}
	p.io.Lock()
	defer p.io.Unlock()
	return p.client.GetStatus(ctx), nil
}

// Check tests connectivity, queries the status when reachable, and records
// the outcome.
func (m *Manager) Check(ctx context.Context, name string) (State, Result, error) {
	p, err := m.get(name)
	if err != nil {
		return State{}, Result{}, err
	}

	p.io.Lock()
	res := p.client.TestConnection(ctx)
	var st *Status
	if res.Success {
		st = p.client.GetStatus(ctx)
	}
	p.io.Unlock()

	now := time.Now()
	p.mu.Lock()
	wasOnline, first := p.state.Online, !p.checked
	p.checked = true
	p.state.LastChecked = now
	p.state.Online = res.Success
	p.state.LastError = res.Error
	if res.Success {
		p.state.LastOnline = now
		p.state.Status = st
	}
	state := p.state
	p.mu.Unlock()

	logging.DebugLog("printer", "check %s (%s): online=%v %s", name, p.client.Address(), res.Success, res.Error)
	if first || wasOnline != res.Success {
		m.notify(name, res.Success, state)
	}
	return state, res, nil
}

func (m *Manager) markOnline(name string, p *managedPrinter) {
	now := time.Now()
	p.mu.Lock()
	changed := p.checked && !p.state.Online
	p.checked = true
	p.state.Online = true
	p.state.LastOnline = now
	p.state.LastError = ""
	state := p.state
	p.mu.Unlock()

	if changed {
		m.notify(name, true, state)
	}
}

func (m *Manager) notify(name string, online bool, state State) {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	if fn != nil {
		fn(name, online, state)
	}
}

// CheckAll checks every active printer in turn.
func (m *Manager) CheckAll(ctx context.Context) {
	for _, info := range m.List() {
		if !info.IsActive() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		m.Check(ctx, info.Name)
	}
}

// StartMonitor checks all active printers every interval until Stop is called.
func (m *Manager) StartMonitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.stopChan != nil {
		return
	}
	stop := make(chan struct{})
	m.stopChan = stop

	ctx, cancel := context.WithCancel(context.Background())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		go func() {
			<-stop
			cancel()
		}()

		m.CheckAll(ctx)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.CheckAll(ctx)
			}
		}
	}()
}

// Stop ends the monitor and waits for an in-flight check to finish.
func (m *Manager) Stop() {
	m.monitorMu.Lock()
	stop := m.stopChan
	m.stopChan = nil
	m.monitorMu.Unlock()

	if stop != nil {
		close(stop)
		m.wg.Wait()
	}
}
