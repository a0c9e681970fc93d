package engine

import (
	"fmt"

	"zplink/config"
	"zplink/mqtt"
)

func validateMQTT(mc *config.MQTTConfig) error {
	if mc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if mc.Broker == "" {
		return fmt.Errorf("%w: broker address is required", ErrInvalidInput)
	}
	if mc.Port == 0 {
		mc.Port = 1883
	}
	if mc.ClientID == "" {
		mc.ClientID = "zplink-" + mc.Name
	}
	return nil
}

// CreateMQTT creates a new MQTT broker, saves config, and adds to the manager.
func (e *Engine) CreateMQTT(mc config.MQTTConfig) error {
	if err := validateMQTT(&mc); err != nil {
		return err
	}

	e.cfg.Lock()
	if e.cfg.FindMQTT(mc.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: MQTT broker '%s'", ErrAlreadyExists, mc.Name)
	}
	e.cfg.AddMQTT(mc)
	ns := e.cfg.Namespace
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	pub := mqtt.NewPublisher(e.cfg.FindMQTT(mc.Name), ns)
	e.mqttMgr.Add(pub)

	if mc.Enabled {
		if err := pub.Start(); err != nil {
			e.logFn("MQTT %s created but failed to start: %v", mc.Name, err)
		}
	}

	e.emit(EventMQTTCreated, ServiceEvent{Name: mc.Name})
	return nil
}

// UpdateMQTT updates an MQTT broker, saves config, and recreates the publisher.
func (e *Engine) UpdateMQTT(name string, mc config.MQTTConfig) error {
	mc.Name = name
	if err := validateMQTT(&mc); err != nil {
		return err
	}

	e.cfg.Lock()
	existing := e.cfg.FindMQTT(name)
	if existing == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: MQTT broker '%s'", ErrNotFound, name)
	}
	// Preserve password if not provided
	if mc.Password == "" {
		mc.Password = existing.Password
	}
	*existing = mc
	ns := e.cfg.Namespace
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	// Recreate publisher with new config
	e.mqttMgr.Remove(name)
	pub := mqtt.NewPublisher(e.cfg.FindMQTT(name), ns)
	e.mqttMgr.Add(pub)
	if mc.Enabled {
		if err := pub.Start(); err != nil {
			e.logFn("MQTT %s updated but failed to start: %v", name, err)
		}
	}

	e.emit(EventMQTTUpdated, ServiceEvent{Name: name})
	return nil
}

// DeleteMQTT removes an MQTT broker from config and the running manager.
func (e *Engine) DeleteMQTT(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemoveMQTT(name) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: MQTT broker '%s'", ErrNotFound, name)
	}

	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.mqttMgr.Remove(name)

	e.emit(EventMQTTDeleted, ServiceEvent{Name: name})
	return nil
}

// StartMQTT starts an MQTT publisher and publishes the current printer status.
func (e *Engine) StartMQTT(name string) error {
	pub := e.mqttMgr.Get(name)
	if pub == nil {
		return fmt.Errorf("%w: MQTT publisher '%s'", ErrNotFound, name)
	}

	if err := pub.Start(); err != nil {
		return err
	}
	e.publishAllStatusToMQTT()

	e.emit(EventMQTTStarted, ServiceEvent{Name: name})
	return nil
}

// StopMQTT stops an MQTT publisher.
func (e *Engine) StopMQTT(name string) error {
	pub := e.mqttMgr.Get(name)
	if pub == nil {
		return fmt.Errorf("%w: MQTT publisher '%s'", ErrNotFound, name)
	}
	pub.Stop()
	e.emit(EventMQTTStopped, ServiceEvent{Name: name})
	return nil
}
