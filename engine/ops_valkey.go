package engine

import (
	"fmt"

	"zplink/config"
)

// CreateValkey creates a new Valkey server, saves config, and adds to the manager.
func (e *Engine) CreateValkey(vc config.ValkeyConfig) error {
	if vc.Name == "" || vc.Address == "" {
		return fmt.Errorf("%w: name and address are required", ErrInvalidInput)
	}

	e.cfg.Lock()
	if e.cfg.FindValkey(vc.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: Valkey server '%s'", ErrAlreadyExists, vc.Name)
	}
	e.cfg.AddValkey(vc)
	ns := e.cfg.Namespace
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	pub := e.valkeyMgr.Add(e.cfg.FindValkey(vc.Name), ns)
	if vc.Enabled {
		if err := pub.Start(); err != nil {
			e.logFn("Valkey %s created but failed to start: %v", vc.Name, err)
		}
	}

	e.emit(EventValkeyCreated, ServiceEvent{Name: vc.Name})
	return nil
}

// UpdateValkey updates a Valkey server, saves config, and recreates the publisher.
func (e *Engine) UpdateValkey(name string, vc config.ValkeyConfig) error {
	vc.Name = name
	if vc.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	e.cfg.Lock()
	existing := e.cfg.FindValkey(name)
	if existing == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: Valkey server '%s'", ErrNotFound, name)
	}
	// Preserve password if not provided
	if vc.Password == "" {
		vc.Password = existing.Password
	}
	*existing = vc
	ns := e.cfg.Namespace
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.valkeyMgr.Remove(name)
	pub := e.valkeyMgr.Add(e.cfg.FindValkey(name), ns)
	if vc.Enabled {
		if err := pub.Start(); err != nil {
			e.logFn("Valkey %s updated but failed to start: %v", name, err)
		}
	}

	e.emit(EventValkeyUpdated, ServiceEvent{Name: name})
	return nil
}

// DeleteValkey removes a Valkey server from config and the running manager.
func (e *Engine) DeleteValkey(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemoveValkey(name) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: Valkey server '%s'", ErrNotFound, name)
	}

	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.valkeyMgr.Remove(name)

	e.emit(EventValkeyDeleted, ServiceEvent{Name: name})
	return nil
}

// StartValkey starts a Valkey publisher. Printer status is republished by
// the connect callback.
func (e *Engine) StartValkey(name string) error {
	if e.valkeyMgr.Get(name) == nil {
		return fmt.Errorf("%w: Valkey publisher '%s'", ErrNotFound, name)
	}

	if err := e.valkeyMgr.Start(name); err != nil {
		return err
	}

	e.emit(EventValkeyStarted, ServiceEvent{Name: name})
	return nil
}

// StopValkey stops a Valkey publisher.
func (e *Engine) StopValkey(name string) error {
	if e.valkeyMgr.Get(name) == nil {
		return fmt.Errorf("%w: Valkey publisher '%s'", ErrNotFound, name)
	}
	if err := e.valkeyMgr.Stop(name); err != nil {
		return err
	}
	e.emit(EventValkeyStopped, ServiceEvent{Name: name})
	return nil
}
