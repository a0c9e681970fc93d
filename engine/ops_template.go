package engine

import (
	"context"
	"fmt"
	"sort"

	"zplink/preview"
	"zplink/zpl"
)

// ListTemplates returns the stored templates sorted by name, followed by the
// built-in templates that no stored template overrides.
func (e *Engine) ListTemplates() []zpl.TemplateDefinition {
	e.cfg.Lock()
	stored := make([]zpl.TemplateDefinition, len(e.cfg.Templates))
	copy(stored, e.cfg.Templates)
	e.cfg.Unlock()

	sort.Slice(stored, func(i, j int) bool { return stored[i].Name < stored[j].Name })

	seen := make(map[string]bool, len(stored))
	for _, t := range stored {
		seen[t.Name] = true
	}
	out := stored
	for _, t := range zpl.DefaultTemplates() {
		if !seen[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// GetTemplate resolves a template by name, stored templates first.
func (e *Engine) GetTemplate(name string) (zpl.TemplateDefinition, error) {
	t, ok := e.Template(name)
	if !ok {
		return t, fmt.Errorf("%w: template '%s'", ErrNotFound, name)
	}
	return t, nil
}

// checkTemplate runs the save-time checks. The returned error wraps both
// ErrInvalidInput and the *zpl.ValidationError.
func checkTemplate(t *zpl.TemplateDefinition) error {
	t.BuiltIn = false
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// clearDefaultLocked unmarks every stored template except keep. The caller
// holds the config lock.
func (e *Engine) clearDefaultLocked(keep string) {
	for i := range e.cfg.Templates {
		if e.cfg.Templates[i].Name != keep {
			e.cfg.Templates[i].IsDefault = false
		}
	}
}

// CreateTemplate validates and stores a new template.
func (e *Engine) CreateTemplate(t zpl.TemplateDefinition) error {
	if err := checkTemplate(&t); err != nil {
		return err
	}

	e.cfg.Lock()
	if e.cfg.FindTemplate(t.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: template '%s'", ErrAlreadyExists, t.Name)
	}
	if t.IsDefault {
		e.clearDefaultLocked(t.Name)
	}
	e.cfg.AddTemplate(t)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventTemplateSaved, TemplateEvent{Name: t.Name})
	return nil
}

// UpdateTemplate validates and replaces a stored template. The name cannot change.
func (e *Engine) UpdateTemplate(name string, t zpl.TemplateDefinition) error {
	t.Name = name
	if err := checkTemplate(&t); err != nil {
		return err
	}

	e.cfg.Lock()
	if e.cfg.FindTemplate(name) == nil {
		e.cfg.Unlock()
		if _, builtin := zpl.TemplateByName(name); builtin {
			return fmt.Errorf("%w: built-in template '%s' cannot be modified, create a copy instead", ErrInvalidInput, name)
		}
		return fmt.Errorf("%w: template '%s'", ErrNotFound, name)
	}
	if t.IsDefault {
		e.clearDefaultLocked(name)
	}
	e.cfg.UpdateTemplate(name, t)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventTemplateSaved, TemplateEvent{Name: name})
	return nil
}

// DeleteTemplate removes a stored template. Built-in templates cannot be deleted.
func (e *Engine) DeleteTemplate(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemoveTemplate(name) {
		e.cfg.Unlock()
		if _, builtin := zpl.TemplateByName(name); builtin {
			return fmt.Errorf("%w: built-in template '%s' cannot be deleted", ErrInvalidInput, name)
		}
		return fmt.Errorf("%w: template '%s'", ErrNotFound, name)
	}
	if e.cfg.DefaultTemplate == name {
		e.cfg.DefaultTemplate = ""
	}
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventTemplateDeleted, TemplateEvent{Name: name})
	return nil
}

// sampleCable fills a template preview when no object is given.
var sampleCable = map[string]string{
	"cable_id":         "CBL-001",
	"cable_url":        "https://netbox.local/dcim/cables/1/",
	"term_a_device":    "switch-01",
	"term_a_interface": "Gi1/0/1",
	"term_b_device":    "server-01",
	"term_b_interface": "eth0",
	"length":           "3m",
	"color":            "blue",
	"type":             "CAT6A",
	"description":      "Sample cable",
	"date":             "2024-01-15",
}

// PreviewTemplate renders a template filled with sample cable data.
// Placeholders the sample does not cover stay as written.
func (e *Engine) PreviewTemplate(ctx context.Context, name string) (preview.Result, error) {
	t, err := e.GetTemplate(name)
	if err != nil {
		return preview.Result{}, err
	}
	doc := zpl.NewGenerator(t.GetDPI()).Generate(t.ZPLTemplate, sampleCable, 1)
	return e.renderer.Render(ctx, doc, t.GetDPI(), t.WidthMM, t.HeightMM), nil
}
