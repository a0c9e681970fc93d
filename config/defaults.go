package config

import "time"

// DefaultPrinterConfig returns a printer entry with the standard raw TCP port.
func DefaultPrinterConfig(name, host string) PrinterConfig {
	return PrinterConfig{
		Name:    name,
		Host:    host,
		Port:    9100,
		DPI:     300,
		Status:  PrinterActive,
		Timeout: 5 * time.Second,
	}
}

// DefaultMQTTConfig returns an MQTT broker entry for a local broker.
func DefaultMQTTConfig(name string) MQTTConfig {
	return MQTTConfig{
		Name:     name,
		Broker:   "localhost",
		Port:     1883,
		ClientID: "zplink-" + name,
	}
}

// DefaultValkeyConfig returns a Valkey entry for a local server.
func DefaultValkeyConfig(name string) ValkeyConfig {
	return ValkeyConfig{
		Name:           name,
		Address:        "localhost:6379",
		PublishChanges: true,
	}
}

// DefaultKafkaConfig returns a Kafka entry for a local single-broker cluster.
func DefaultKafkaConfig(name string) KafkaConfig {
	return KafkaConfig{
		Name:           name,
		Brokers:        []string{"localhost:9092"},
		RequiredAcks:   -1,
		MaxRetries:     3,
		RetryBackoff:   100 * time.Millisecond,
		PublishChanges: true,
	}
}

// DefaultWebhookConfig returns a webhook posting JSON to url.
func DefaultWebhookConfig(name, url string) WebhookConfig {
	return WebhookConfig{
		Name:        name,
		URL:         url,
		Method:      "POST",
		ContentType: "application/json",
		Timeout:     10 * time.Second,
	}
}
