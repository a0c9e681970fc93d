// Package namespace provides utilities for constructing topic and key paths
// with consistent namespace prefixing across all services (MQTT, Valkey, Kafka).
package namespace

// Builder constructs namespace-prefixed topics and keys.
type Builder struct {
	namespace string
	selector  string
}

// New creates a new namespace builder.
func New(namespace, selector string) *Builder {
	return &Builder{
		namespace: namespace,
		selector:  selector,
	}
}

// --- MQTT (delimiter: /) ---

// MQTTJobTopic returns the topic for print jobs: {ns}[/{sel}]/printers/{printer}/jobs
func (b *Builder) MQTTJobTopic(printer string) string {
	return b.mqttBase() + "/printers/" + printer + "/jobs"
}

// MQTTStatusTopic returns the retained topic for printer status: {ns}[/{sel}]/printers/{printer}/status
func (b *Builder) MQTTStatusTopic(printer string) string {
	return b.mqttBase() + "/printers/" + printer + "/status"
}

// MQTTPrintTopic returns the topic accepting remote print requests: {ns}[/{sel}]/printers/{printer}/print
func (b *Builder) MQTTPrintTopic(printer string) string {
	return b.mqttBase() + "/printers/" + printer + "/print"
}

// MQTTPrintResponseTopic returns the topic for print request responses: {ns}[/{sel}]/printers/{printer}/print/response
func (b *Builder) MQTTPrintResponseTopic(printer string) string {
	return b.MQTTPrintTopic(printer) + "/response"
}

// MQTTBatchTopic returns the topic for finished batches: {ns}[/{sel}]/batches
func (b *Builder) MQTTBatchTopic() string {
	return b.mqttBase() + "/batches"
}

// MQTTEventTopic returns the topic for other engine events: {ns}[/{sel}]/events/{event}
func (b *Builder) MQTTEventTopic(event string) string {
	return b.mqttBase() + "/events/" + event
}

// MQTTBase returns the base topic for JSON messages: {ns}[/{sel}]
func (b *Builder) MQTTBase() string {
	return b.mqttBase()
}

func (b *Builder) mqttBase() string {
	if b.selector != "" {
		return b.namespace + "/" + b.selector
	}
	return b.namespace
}

// --- Valkey (delimiter: :) ---

// ValkeyJobKey returns the key holding one job record: {ns}[:{sel}]:jobs:{id}
func (b *Builder) ValkeyJobKey(id string) string {
	return b.valkeyBase() + ":jobs:" + id
}

// ValkeyRecentJobsKey returns the list of recent job ids: {ns}[:{sel}]:jobs:recent
func (b *Builder) ValkeyRecentJobsKey() string {
	return b.valkeyBase() + ":jobs:recent"
}

// ValkeyStatusKey returns the key for printer status: {ns}[:{sel}]:printers:{printer}:status
func (b *Builder) ValkeyStatusKey(printer string) string {
	return b.valkeyBase() + ":printers:" + printer + ":status"
}

// ValkeyJobsChannel returns the channel for print jobs on one printer: {ns}[:{sel}]:printers:{printer}:jobs
func (b *Builder) ValkeyJobsChannel(printer string) string {
	return b.valkeyBase() + ":printers:" + printer + ":jobs"
}

// ValkeyAllJobsChannel returns the channel for all print jobs: {ns}[:{sel}]:_all:jobs
func (b *Builder) ValkeyAllJobsChannel() string {
	return b.valkeyBase() + ":_all:jobs"
}

// ValkeyStatusChannel returns the channel for printer status changes: {ns}[:{sel}]:_all:status
func (b *Builder) ValkeyStatusChannel() string {
	return b.valkeyBase() + ":_all:status"
}

// ValkeyBatchChannel returns the channel for finished batches: {ns}[:{sel}]:_all:batches
func (b *Builder) ValkeyBatchChannel() string {
	return b.valkeyBase() + ":_all:batches"
}

// ValkeyPrintQueueKey returns the list consumed for remote print requests: {ns}[:{sel}]:print:queue
func (b *Builder) ValkeyPrintQueueKey() string {
	return b.valkeyBase() + ":print:queue"
}

// ValkeyPrintResponseChannel returns the channel for print request responses: {ns}[:{sel}]:print:responses
func (b *Builder) ValkeyPrintResponseChannel() string {
	return b.valkeyBase() + ":print:responses"
}

// ValkeyInstance returns the instance identifier for JSON messages: {ns}[:{sel}]
func (b *Builder) ValkeyInstance() string {
	return b.valkeyBase()
}

func (b *Builder) valkeyBase() string {
	if b.selector != "" {
		return b.namespace + ":" + b.selector
	}
	return b.namespace
}

// --- Kafka (delimiter: - for topics, . for sub-streams) ---

// KafkaJobTopic returns the topic for print jobs: {ns}[-{sel}].jobs
// The printer name is used as the message key for partitioning.
func (b *Builder) KafkaJobTopic() string {
	return b.kafkaBase() + ".jobs"
}

// KafkaStatusTopic returns the topic for printer status: {ns}[-{sel}].status
func (b *Builder) KafkaStatusTopic() string {
	return b.kafkaBase() + ".status"
}

// KafkaBatchTopic returns the topic for finished batches: {ns}[-{sel}].batches
func (b *Builder) KafkaBatchTopic() string {
	return b.kafkaBase() + ".batches"
}

// KafkaPrintTopic returns the topic consumed for remote print requests: {ns}[-{sel}].print
func (b *Builder) KafkaPrintTopic() string {
	return b.kafkaBase() + ".print"
}

// KafkaPrintResponseTopic returns the topic for print request responses: {ns}[-{sel}].print.responses
func (b *Builder) KafkaPrintResponseTopic() string {
	return b.KafkaPrintTopic() + ".responses"
}

func (b *Builder) kafkaBase() string {
	if b.selector != "" {
		return b.namespace + "-" + b.selector
	}
	return b.namespace
}
