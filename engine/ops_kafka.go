package engine

import (
	"fmt"

	"zplink/config"
)

func validateKafka(kc config.KafkaConfig) error {
	if kc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(kc.Brokers) == 0 {
		return fmt.Errorf("%w: at least one broker is required", ErrInvalidInput)
	}
	switch kc.SASLMechanism {
	case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
	default:
		return fmt.Errorf("%w: unsupported SASL mechanism %q", ErrInvalidInput, kc.SASLMechanism)
	}
	return nil
}

// CreateKafka creates a new Kafka cluster, saves config, and adds to the manager.
func (e *Engine) CreateKafka(kc config.KafkaConfig) error {
	if err := validateKafka(kc); err != nil {
		return err
	}

	e.cfg.Lock()
	if e.cfg.FindKafka(kc.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: Kafka cluster '%s'", ErrAlreadyExists, kc.Name)
	}
	e.cfg.AddKafka(kc)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.kafkaMgr.AddCluster(buildKafkaRuntimeConfig(&kc))

	if kc.Enabled {
		go e.connectKafka(kc.Name)
	}

	e.emit(EventKafkaCreated, ServiceEvent{Name: kc.Name})
	return nil
}

// UpdateKafka updates a Kafka cluster, saves config, and recreates the producer.
func (e *Engine) UpdateKafka(name string, kc config.KafkaConfig) error {
	kc.Name = name
	if err := validateKafka(kc); err != nil {
		return err
	}

	e.cfg.Lock()
	existing := e.cfg.FindKafka(name)
	if existing == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: Kafka cluster '%s'", ErrNotFound, name)
	}
	// Preserve password if not provided
	if kc.Password == "" {
		kc.Password = existing.Password
	}
	*existing = kc
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.kafkaMgr.RemoveCluster(name)
	e.kafkaMgr.AddCluster(buildKafkaRuntimeConfig(&kc))

	if kc.Enabled {
		go e.connectKafka(name)
	}

	e.emit(EventKafkaUpdated, ServiceEvent{Name: name})
	return nil
}

// DeleteKafka removes a Kafka cluster from config and the running manager.
func (e *Engine) DeleteKafka(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemoveKafka(name) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: Kafka cluster '%s'", ErrNotFound, name)
	}

	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.kafkaMgr.RemoveCluster(name)

	e.emit(EventKafkaDeleted, ServiceEvent{Name: name})
	return nil
}

func (e *Engine) connectKafka(name string) {
	if err := e.ConnectKafka(name); err != nil {
		e.logFn("Kafka %s failed to connect: %v", name, err)
	}
}

// ConnectKafka connects a Kafka cluster.
func (e *Engine) ConnectKafka(name string) error {
	if e.kafkaMgr.GetProducer(name) == nil {
		return fmt.Errorf("%w: Kafka cluster '%s'", ErrNotFound, name)
	}
	if err := e.kafkaMgr.Connect(name); err != nil {
		return err
	}
	e.emit(EventKafkaConnected, ServiceEvent{Name: name})
	return nil
}

// DisconnectKafka disconnects a Kafka cluster.
func (e *Engine) DisconnectKafka(name string) error {
	if e.kafkaMgr.GetProducer(name) == nil {
		return fmt.Errorf("%w: Kafka cluster '%s'", ErrNotFound, name)
	}
	e.kafkaMgr.Disconnect(name)
	e.emit(EventKafkaDisconnected, ServiceEvent{Name: name})
	return nil
}
