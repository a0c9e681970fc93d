package engine

import (
	"fmt"
	"strings"

	"zplink/config"
	"zplink/kafka"
)

// ServiceInfo is the runtime state of one broker connection.
type ServiceInfo struct {
	Type    string `json:"type"` // mqtt, valkey or kafka
	Name    string `json:"name"`
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`

	// Kafka only
	Stats *kafka.Stats `json:"stats,omitempty"`
}

// Services lists every configured MQTT broker, Valkey server and Kafka cluster.
func (e *Engine) Services() []ServiceInfo {
	var out []ServiceInfo
	for _, pub := range e.mqttMgr.List() {
		out = append(out, ServiceInfo{
			Type:    "mqtt",
			Name:    pub.Name(),
			Address: pub.Address(),
			Enabled: pub.Config().Enabled,
			Running: pub.IsRunning(),
		})
	}
	for _, pub := range e.valkeyMgr.List() {
		out = append(out, ServiceInfo{
			Type:    "valkey",
			Name:    pub.Config().Name,
			Address: pub.Address(),
			Enabled: pub.Config().Enabled,
			Running: pub.IsRunning(),
		})
	}
	for _, name := range e.kafkaMgr.ListClusters() {
		p := e.kafkaMgr.GetProducer(name)
		if p == nil {
			continue
		}
		st := p.GetStatus()
		info := ServiceInfo{
			Type:    "kafka",
			Name:    name,
			Address: strings.Join(p.Config().Brokers, ","),
			Enabled: p.Config().Enabled,
			Running: st == kafka.StatusConnected,
			Status:  st.String(),
		}
		if err := p.GetError(); err != nil {
			info.Error = err.Error()
		}
		stats := p.Stats()
		info.Stats = &stats
		out = append(out, info)
	}
	return out
}

// SetNamespace updates the namespace in config and saves. Running broker
// connections keep their topics until they are restarted.
func (e *Engine) SetNamespace(ns string) error {
	if !config.IsValidNamespace(ns) {
		return fmt.Errorf("%w: invalid namespace %q", ErrInvalidInput, ns)
	}

	e.cfg.Lock()
	e.cfg.Namespace = ns
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventNamespaceChanged, SystemEvent{Detail: ns})
	return nil
}

// SetDefaultPrinter sets the printer used when a request names none. An
// empty name clears the default.
func (e *Engine) SetDefaultPrinter(name string) error {
	e.cfg.Lock()
	if name != "" && e.cfg.FindPrinter(name) == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: printer '%s'", ErrNotFound, name)
	}
	e.cfg.DefaultPrinter = name
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// SetDefaultTemplate sets the template used when a request names none. The
// name may refer to a stored or built-in template. An empty name clears it.
func (e *Engine) SetDefaultTemplate(name string) error {
	if name != "" {
		if _, ok := e.Template(name); !ok {
			return fmt.Errorf("%w: template '%s'", ErrNotFound, name)
		}
	}

	e.cfg.Lock()
	e.cfg.DefaultTemplate = name
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// Settings is the instance-wide part of the configuration.
type Settings struct {
	Namespace       string `json:"namespace"`
	BaseURL         string `json:"base_url,omitempty"`
	DefaultPrinter  string `json:"default_printer,omitempty"`
	DefaultTemplate string `json:"default_template,omitempty"`
	Monitor         bool   `json:"monitor"`
	PreviewBackend  string `json:"preview_backend"`
}

// GetSettings returns the instance-wide settings.
func (e *Engine) GetSettings() Settings {
	e.cfg.Lock()
	defer e.cfg.Unlock()
	return Settings{
		Namespace:       e.cfg.Namespace,
		BaseURL:         e.cfg.BaseURL,
		DefaultPrinter:  e.cfg.DefaultPrinter,
		DefaultTemplate: e.cfg.DefaultTemplate,
		Monitor:         e.cfg.Monitor.Enabled,
		PreviewBackend:  e.cfg.Preview.Backend,
	}
}
