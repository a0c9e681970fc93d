package engine

import (
	"time"

	"zplink/jobs"
	"zplink/printer"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Print events
	EventPrintJobSuccess EventType = iota + 1
	EventPrintJobFailure
	EventBatchCompleted

	// Printer events
	EventPrinterOnline
	EventPrinterOffline
	EventPrinterCreated
	EventPrinterUpdated
	EventPrinterDeleted

	// Template events
	EventTemplateSaved
	EventTemplateDeleted

	// MQTT events
	EventMQTTCreated
	EventMQTTUpdated
	EventMQTTDeleted
	EventMQTTStarted
	EventMQTTStopped

	// Valkey events
	EventValkeyCreated
	EventValkeyUpdated
	EventValkeyDeleted
	EventValkeyStarted
	EventValkeyStopped

	// Kafka events
	EventKafkaCreated
	EventKafkaUpdated
	EventKafkaDeleted
	EventKafkaConnected
	EventKafkaDisconnected

	// Webhook events
	EventWebhookCreated
	EventWebhookUpdated
	EventWebhookDeleted
	EventWebhookTestFired

	// System events
	EventNamespaceChanged
)

var eventNames = map[EventType]string{
	EventPrintJobSuccess:   "print_job_success",
	EventPrintJobFailure:   "print_job_failure",
	EventBatchCompleted:    "batch_completed",
	EventPrinterOnline:     "printer_online",
	EventPrinterOffline:    "printer_offline",
	EventPrinterCreated:    "printer_created",
	EventPrinterUpdated:    "printer_updated",
	EventPrinterDeleted:    "printer_deleted",
	EventTemplateSaved:     "template_saved",
	EventTemplateDeleted:   "template_deleted",
	EventMQTTCreated:       "mqtt_created",
	EventMQTTUpdated:       "mqtt_updated",
	EventMQTTDeleted:       "mqtt_deleted",
	EventMQTTStarted:       "mqtt_started",
	EventMQTTStopped:       "mqtt_stopped",
	EventValkeyCreated:     "valkey_created",
	EventValkeyUpdated:     "valkey_updated",
	EventValkeyDeleted:     "valkey_deleted",
	EventValkeyStarted:     "valkey_started",
	EventValkeyStopped:     "valkey_stopped",
	EventKafkaCreated:      "kafka_created",
	EventKafkaUpdated:      "kafka_updated",
	EventKafkaDeleted:      "kafka_deleted",
	EventKafkaConnected:    "kafka_connected",
	EventKafkaDisconnected: "kafka_disconnected",
	EventWebhookCreated:    "webhook_created",
	EventWebhookUpdated:    "webhook_updated",
	EventWebhookDeleted:    "webhook_deleted",
	EventWebhookTestFired:  "webhook_test_fired",
	EventNamespaceChanged:  "namespace_changed",
}

// String returns the wire name used in topics, webhooks and the event stream.
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the event type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// PrintJobEvent is the payload of print_job_success and print_job_failure.
type PrintJobEvent struct {
	JobID      string    `json:"print_job_id"`
	ObjectType string    `json:"object_type"`
	ObjectID   int       `json:"object_id"`
	Object     string    `json:"object"`
	Printer    string    `json:"printer"`
	Template   string    `json:"template"`
	Quantity   int       `json:"quantity"`
	Success    bool      `json:"success"`
	Error      string    `json:"error_message,omitempty"`
	PrintedBy  string    `json:"printed_by,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	Created    time.Time `json:"created"`
}

// NewPrintJobEvent builds the event payload for a recorded job.
func NewPrintJobEvent(j jobs.Job) PrintJobEvent {
	return PrintJobEvent{
		JobID:      j.ID,
		ObjectType: j.ObjectType,
		ObjectID:   j.ObjectID,
		Object:     j.Object,
		Printer:    j.Printer,
		Template:   j.Template,
		Quantity:   j.Quantity,
		Success:    j.Success,
		Error:      j.Error,
		PrintedBy:  j.PrintedBy,
		BatchID:    j.BatchID,
		Created:    j.Created,
	}
}

// PrinterEvent is the payload for printer lifecycle and health events.
type PrinterEvent struct {
	Name  string         `json:"printer"`
	State *printer.State `json:"state,omitempty"`
}

// TemplateEvent is the payload for template mutations.
type TemplateEvent struct {
	Name string `json:"template"`
}

// ServiceEvent is the payload for MQTT/Valkey/Kafka/webhook lifecycle events.
type ServiceEvent struct {
	Name string `json:"name"`
}

// SystemEvent is the payload for system-level events.
type SystemEvent struct {
	Detail string `json:"detail"`
}
