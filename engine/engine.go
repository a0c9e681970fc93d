package engine

import (
	"zplink/config"
	"zplink/jobs"
	"zplink/kafka"
	"zplink/labeldata"
	"zplink/mqtt"
	"zplink/preview"
	"zplink/printer"
	"zplink/push"
	"zplink/valkey"
	"zplink/zpl"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	LogFunc    LogFunc

	// Renderer overrides the preview backend selected by AppConfig.Preview.
	Renderer preview.Renderer
}

// Engine centralizes all business logic: config mutations, printing,
// manager orchestration, and callback wiring. The REST API and CLI are thin
// consumers.
type Engine struct {
	cfg        *config.Config
	configPath string
	logFn      LogFunc

	printers  *printer.Manager
	jobs      *jobs.Service
	renderer  preview.Renderer
	mqttMgr   *mqtt.Manager
	valkeyMgr *valkey.Manager
	kafkaMgr  *kafka.Manager
	pushMgr   *push.Manager

	Events *EventBus

	stopChan chan struct{}
}

// New creates an Engine with all managers loaded from configuration and
// wired together. Nothing touches the network until Start is called, so a
// one-shot command can render or print without starting any service.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	cfg := c.AppConfig

	e := &Engine{
		cfg:        cfg,
		configPath: c.ConfigPath,
		logFn:      logFn,
		renderer:   c.Renderer,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
	if e.renderer == nil {
		e.renderer = preview.New(cfg.Preview)
	}

	// Printers
	e.printers = printer.NewManager()
	if err := e.printers.LoadFromConfig(cfg.Printers); err != nil {
		logFn("Printer configuration: %v", err)
	}

	// Job service
	e.jobs = jobs.NewService(e.printers, jobs.TemplateFunc(e.Template), labeldata.NewMapper(cfg.BaseURL), jobs.Options{
		HistorySize: cfg.Jobs.HistorySize,
		Workers:     cfg.Jobs.Workers,
	})

	// Broker sinks
	e.mqttMgr = mqtt.NewManager()
	e.mqttMgr.LoadFromConfig(cfg.MQTT, cfg.Namespace)

	e.valkeyMgr = valkey.NewManager()
	e.valkeyMgr.LoadFromConfig(cfg.Valkey, cfg.Namespace)

	e.kafkaMgr = kafka.NewManager(cfg.Namespace)
	for i := range cfg.Kafka {
		e.kafkaMgr.AddCluster(buildKafkaRuntimeConfig(&cfg.Kafka[i]))
	}

	// Webhooks
	e.pushMgr = push.NewManager()
	e.pushMgr.SetLogFunc(func(format string, args ...interface{}) {
		e.logFn(format, args...)
	})
	e.pushMgr.LoadFromConfig(cfg.Webhooks)

	e.wire()
	return e
}

// Start connects enabled brokers, starts webhooks and the printer monitor.
func (e *Engine) Start() {
	cfg := e.cfg

	// Auto-start enabled MQTT publishers, then publish retained printer status
	go func() {
		if started := e.mqttMgr.StartAll(); started > 0 {
			e.publishAllStatusToMQTT()
		}
	}()

	// Valkey status keys are rewritten on every (re)connect
	e.valkeyMgr.SetOnConnectCallback(func() {
		e.publishAllStatusToValkey()
	})
	go e.valkeyMgr.StartAll()

	// Auto-connect enabled Kafka clusters
	go e.kafkaMgr.ConnectEnabled()

	e.pushMgr.Start()

	if cfg.Monitor.Enabled {
		e.printers.StartMonitor(cfg.Monitor.Interval)
		e.logFn("Printer monitor started (every %v)", cfg.Monitor.Interval)
	}
}

// Stop shuts down all managers gracefully.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
		return
	default:
		close(e.stopChan)
	}

	e.printers.Stop()
	e.jobs.Close()
	e.pushMgr.Stop()
	e.mqttMgr.StopAll()
	e.valkeyMgr.StopAll()
	e.kafkaMgr.StopAll()
}

// Managers provides access to shared backend managers.
// *Engine satisfies this interface via its accessor methods.
type Managers interface {
	GetConfig() *config.Config
	GetConfigPath() string
	GetPrinters() *printer.Manager
	GetJobs() *jobs.Service
	GetMQTTMgr() *mqtt.Manager
	GetValkeyMgr() *valkey.Manager
	GetKafkaMgr() *kafka.Manager
	GetPushMgr() *push.Manager
}

// Verify *Engine implements Managers at compile time.
var _ Managers = (*Engine)(nil)

func (e *Engine) GetConfig() *config.Config     { return e.cfg }
func (e *Engine) GetConfigPath() string         { return e.configPath }
func (e *Engine) GetPrinters() *printer.Manager { return e.printers }
func (e *Engine) GetJobs() *jobs.Service        { return e.jobs }
func (e *Engine) GetMQTTMgr() *mqtt.Manager     { return e.mqttMgr }
func (e *Engine) GetValkeyMgr() *valkey.Manager { return e.valkeyMgr }
func (e *Engine) GetKafkaMgr() *kafka.Manager   { return e.kafkaMgr }
func (e *Engine) GetPushMgr() *push.Manager     { return e.pushMgr }
func (e *Engine) GetRenderer() preview.Renderer { return e.renderer }

// Template resolves a template name: stored templates first, then the
// built-in catalog. The empty name selects the configured default, then a
// stored template marked as default, then the built-in default.
func (e *Engine) Template(name string) (zpl.TemplateDefinition, bool) {
	e.cfg.Lock()
	if name == "" {
		name = e.cfg.DefaultTemplate
	}
	if name == "" {
		for _, t := range e.cfg.Templates {
			if t.IsDefault {
				e.cfg.Unlock()
				return t, true
			}
		}
	} else if t := e.cfg.FindTemplate(name); t != nil {
		found := *t
		e.cfg.Unlock()
		return found, true
	}
	e.cfg.Unlock()
	return jobs.BuiltinTemplates(name)
}

// saveConfig is a helper that saves and unlocks. The caller holds the lock.
func (e *Engine) saveConfig() error {
	return e.cfg.UnlockAndSave(e.configPath)
}

func (e *Engine) emit(t EventType, payload interface{}) {
	e.Events.Emit(Event{Type: t, Payload: payload})
}
