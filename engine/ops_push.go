package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"zplink/config"
	"zplink/push"
)

func validateWebhook(wc *config.WebhookConfig) error {
	if wc.Name == "" || wc.URL == "" {
		return fmt.Errorf("%w: name and URL are required", ErrInvalidInput)
	}
	u, err := url.Parse(wc.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid webhook URL %q", ErrInvalidInput, wc.URL)
	}

	wc.Method = strings.ToUpper(wc.Method)
	switch wc.Method {
	case "":
		wc.Method = "POST"
	case "GET", "POST", "PUT", "PATCH":
	default:
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidInput, wc.Method)
	}

	switch wc.Auth.Type {
	case config.WebhookAuthNone, config.WebhookAuthBearer, config.WebhookAuthBasic:
	case config.WebhookAuthCustomHeader:
		if wc.Auth.HeaderName == "" {
			return fmt.Errorf("%w: custom header auth needs a header name", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unsupported auth type %q", ErrInvalidInput, wc.Auth.Type)
	}
	return nil
}

// ListWebhooks returns the runtime state of every webhook.
func (e *Engine) ListWebhooks() []push.PushInfo {
	return e.pushMgr.GetAllPushInfo()
}

// CreateWebhook creates a new webhook, saves config, and adds to the manager.
func (e *Engine) CreateWebhook(wc config.WebhookConfig) error {
	if err := validateWebhook(&wc); err != nil {
		return err
	}

	e.cfg.Lock()
	if e.cfg.FindWebhook(wc.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: webhook '%s'", ErrAlreadyExists, wc.Name)
	}
	e.cfg.AddWebhook(wc)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := e.pushMgr.AddPush(e.cfg.FindWebhook(wc.Name)); err != nil {
		return fmt.Errorf("webhook created but failed to load: %w", err)
	}
	if wc.Enabled {
		e.pushMgr.StartPush(wc.Name)
	}

	e.emit(EventWebhookCreated, ServiceEvent{Name: wc.Name})
	return nil
}

// UpdateWebhook updates a webhook, saves config, and replaces the runtime.
func (e *Engine) UpdateWebhook(name string, wc config.WebhookConfig) error {
	wc.Name = name
	if err := validateWebhook(&wc); err != nil {
		return err
	}

	e.cfg.Lock()
	existing := e.cfg.FindWebhook(name)
	if existing == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: webhook '%s'", ErrNotFound, name)
	}
	// Preserve secrets if not provided
	if wc.Auth.Type == existing.Auth.Type {
		if wc.Auth.Token == "" {
			wc.Auth.Token = existing.Auth.Token
		}
		if wc.Auth.Password == "" {
			wc.Auth.Password = existing.Auth.Password
		}
		if wc.Auth.HeaderValue == "" {
			wc.Auth.HeaderValue = existing.Auth.HeaderValue
		}
	}
	*existing = wc
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := e.pushMgr.UpdatePush(e.cfg.FindWebhook(name)); err != nil {
		return fmt.Errorf("webhook updated but failed to load: %w", err)
	}
	if wc.Enabled {
		e.pushMgr.StartPush(name)
	}

	e.emit(EventWebhookUpdated, ServiceEvent{Name: name})
	return nil
}

// DeleteWebhook removes a webhook from config and the running manager.
func (e *Engine) DeleteWebhook(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemoveWebhook(name) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: webhook '%s'", ErrNotFound, name)
	}

	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.pushMgr.RemovePush(name)

	e.emit(EventWebhookDeleted, ServiceEvent{Name: name})
	return nil
}

// StartWebhook starts delivery for a webhook. Disabled webhooks stay idle.
func (e *Engine) StartWebhook(name string) error {
	if err := e.pushMgr.StartPush(name); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil
}

// StopWebhook stops delivery for a webhook.
func (e *Engine) StopWebhook(name string) error {
	if err := e.pushMgr.StopPush(name); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil
}

// ResetWebhook clears a webhook's error state.
func (e *Engine) ResetWebhook(name string) error {
	if err := e.pushMgr.ResetPush(name); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil
}

// TestFireWebhook sends a test request regardless of the webhook's event
// filter, enabled state and cooldown.
func (e *Engine) TestFireWebhook(ctx context.Context, name string) error {
	if e.pushMgr.GetPush(name) == nil {
		return fmt.Errorf("%w: webhook '%s'", ErrNotFound, name)
	}
	if err := e.pushMgr.TestFirePush(ctx, name); err != nil {
		return err
	}
	e.emit(EventWebhookTestFired, ServiceEvent{Name: name})
	return nil
}
