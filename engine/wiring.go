package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"zplink/config"
	"zplink/jobs"
	"zplink/kafka"
	"zplink/logging"
	"zplink/mqtt"
	"zplink/printer"
	"zplink/push"
	"zplink/valkey"
)

// remotePrintTimeout bounds one print request received from a broker.
const remotePrintTimeout = time.Minute

// wire connects job, batch and printer callbacks to the event bus and the
// broker sinks, and installs the broker print handlers.
func (e *Engine) wire() {
	e.jobs.SetLogFunc(func(format string, args ...interface{}) {
		e.logFn(format, args...)
	})
	e.jobs.SetOnJob(e.onJob)
	e.jobs.SetOnBatch(e.onBatch)
	e.printers.SetOnStatusChange(e.onPrinterStatus)

	e.Events.Subscribe(e.forwardToWebhooks)

	e.mqttMgr.SetPrintHandler(func(printerName string, req mqtt.PrintRequest) (string, error) {
		return e.remotePrint("mqtt", LabelRequest{
			Printer: printerName, Kind: req.Kind, Object: req.Object,
			Template: req.Template, Quantity: req.Quantity, PrintedBy: req.PrintedBy,
		})
	})
	e.valkeyMgr.SetPrintHandler(func(req valkey.PrintRequest) (string, error) {
		return e.remotePrint("valkey", LabelRequest{
			Printer: req.Printer, Kind: req.Kind, Object: req.Object,
			Template: req.Template, Quantity: req.Quantity, PrintedBy: req.PrintedBy,
		})
	})
	e.kafkaMgr.SetPrintHandler(func(req kafka.PrintRequest) (string, error) {
		return e.remotePrint("kafka", LabelRequest{
			Printer: req.Printer, Kind: req.Kind, Object: req.Object,
			Template: req.Template, Quantity: req.Quantity, PrintedBy: req.PrintedBy,
		})
	})
}

// onJob publishes a recorded job to every sink and emits its event.
func (e *Engine) onJob(j jobs.Job) {
	ev := NewPrintJobEvent(j)
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.DebugLog("engine", "JSON marshal error for job %s: %v", j.ID, err)
		return
	}

	mqttRunning := e.mqttMgr.AnyRunning()
	valkeyRunning := e.valkeyMgr.AnyRunning()
	logging.DebugLog("engine", "OnJob %s success=%v, MQTT: %v, Valkey: %v, Kafka: %v",
		j.ID, j.Success, mqttRunning, valkeyRunning, e.kafkaMgr.AnyPublishing())

	if mqttRunning {
		go e.mqttMgr.PublishJob(j.Printer, payload)
	}
	if valkeyRunning {
		go e.valkeyMgr.PublishJob(j.ID, j.Printer, payload)
	}
	e.kafkaMgr.PublishJob(j.Printer, payload)

	t := EventPrintJobSuccess
	if !j.Success {
		t = EventPrintJobFailure
	}
	e.emit(t, ev)
}

// onBatch publishes a finished background batch and emits batch_completed.
func (e *Engine) onBatch(st jobs.BatchStatus) {
	payload, err := json.Marshal(st)
	if err != nil {
		logging.DebugLog("engine", "JSON marshal error for batch %s: %v", st.ID, err)
		return
	}
	if e.mqttMgr.AnyRunning() {
		go e.mqttMgr.PublishBatch(payload)
	}
	if e.valkeyMgr.AnyRunning() {
		go e.valkeyMgr.PublishBatch(payload)
	}
	e.kafkaMgr.PublishBatch(st.ID, payload)

	e.emit(EventBatchCompleted, st)
}

// onPrinterStatus publishes printer online/offline transitions.
func (e *Engine) onPrinterStatus(name string, online bool, state printer.State) {
	status := config.PrinterActive.String()
	if pc, ok := e.printers.Config(name); ok {
		status = pc.Status.String()
	}

	if online {
		e.logFn("Printer %s is online", name)
	} else {
		e.logFn("Printer %s is offline: %s", name, state.LastError)
	}

	if e.mqttMgr.AnyRunning() {
		go e.mqttMgr.PublishStatus(name, online, status, state.LastError)
	}
	if e.valkeyMgr.AnyRunning() {
		go e.valkeyMgr.PublishStatus(name, online, status, state.LastError)
	}
	e.kafkaMgr.PublishStatus(name, online, status, state.LastError)

	t := EventPrinterOnline
	if !online {
		t = EventPrinterOffline
	}
	e.emit(t, PrinterEvent{Name: name, State: &state})
}

// forwardToWebhooks offers every engine event to the webhooks.
func (e *Engine) forwardToWebhooks(ev Event) {
	var data json.RawMessage
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			logging.DebugLog("push", "JSON marshal error for %s: %v", ev.Type, err)
			return
		}
		data = b
	}
	e.pushMgr.Notify(push.Event{Type: ev.Type.String(), Timestamp: ev.Timestamp, Data: data})
}

// remotePrint runs a print request received from a broker. A delivery
// failure returns the job id together with the printer's error.
func (e *Engine) remotePrint(source string, req LabelRequest) (string, error) {
	if req.PrintedBy == "" {
		req.PrintedBy = source
	}

	ctx, cancel := context.WithTimeout(context.Background(), remotePrintTimeout)
	defer cancel()

	job, err := e.PrintLabel(ctx, req)
	if err != nil {
		e.logFn("Remote print via %s rejected: %v", source, err)
		return "", err
	}
	if !job.Success {
		return job.ID, errors.New(job.Error)
	}
	return job.ID, nil
}

// publishAllStatusToMQTT publishes the last known state of every printer.
func (e *Engine) publishAllStatusToMQTT() {
	infos := e.printers.List()
	e.logFn("Publishing status for %d printers to MQTT", len(infos))
	for _, info := range infos {
		e.mqttMgr.PublishStatus(info.Name, info.State.Online, info.Status.String(), info.State.LastError)
	}
}

// publishAllStatusToValkey writes the last known state of every printer.
func (e *Engine) publishAllStatusToValkey() {
	infos := e.printers.List()
	e.logFn("Publishing status for %d printers to Valkey", len(infos))
	for _, info := range infos {
		e.valkeyMgr.PublishStatus(info.Name, info.State.Online, info.Status.String(), info.State.LastError)
	}
}

// buildKafkaRuntimeConfig converts a config.KafkaConfig to a kafka.Config.
func buildKafkaRuntimeConfig(kc *config.KafkaConfig) *kafka.Config {
	return &kafka.Config{
		Name:                 kc.Name,
		Enabled:              kc.Enabled,
		Brokers:              kc.Brokers,
		UseTLS:               kc.UseTLS,
		TLSSkipVerify:        kc.TLSSkipVerify,
		SASLMechanism:        kafka.SASLMechanism(kc.SASLMechanism),
		Username:             kc.Username,
		Password:             kc.Password,
		RequiredAcks:         kc.RequiredAcks,
		MaxRetries:           kc.MaxRetries,
		RetryBackoff:         kc.RetryBackoff,
		PublishChanges:       kc.PublishChanges,
		Selector:             kc.Selector,
		AutoCreateTopics:     kc.AutoCreateTopics == nil || *kc.AutoCreateTopics,
		ConsumePrintRequests: kc.ConsumePrintRequests,
		ConsumerGroup:        kc.ConsumerGroup,
		RequestMaxAge:        kc.RequestMaxAge,
	}
}
