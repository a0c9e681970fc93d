package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zplink/config"
	"zplink/printer"
	"zplink/zpl"
)

// ListPrinters returns every printer with its last observed state.
func (e *Engine) ListPrinters() []printer.Info {
	return e.printers.List()
}

// GetPrinter returns one printer.
func (e *Engine) GetPrinter(name string) (printer.Info, error) {
	info, ok := e.printers.Get(name)
	if !ok {
		return info, fmt.Errorf("%w: printer '%s'", ErrNotFound, name)
	}
	return info, nil
}

// endpointInUse returns the printer other than self already using pc's
// host and port. The caller holds the config lock.
func (e *Engine) endpointInUse(pc config.PrinterConfig, self string) string {
	for _, p := range e.cfg.Printers {
		if p.Name != self && p.Endpoint() == pc.Endpoint() {
			return p.Name
		}
	}
	return ""
}

// CreatePrinter validates and stores a new printer and loads it.
func (e *Engine) CreatePrinter(pc config.PrinterConfig) error {
	pc.Host = strings.TrimSpace(pc.Host)
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.cfg.Lock()
	if e.cfg.FindPrinter(pc.Name) != nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: printer '%s'", ErrAlreadyExists, pc.Name)
	}
	if other := e.endpointInUse(pc, ""); other != "" {
		e.cfg.Unlock()
		return fmt.Errorf("%w: %s is already used by printer '%s'", ErrAlreadyExists, pc.Endpoint(), other)
	}
	e.cfg.AddPrinter(pc)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := e.printers.Add(pc); err != nil {
		return fmt.Errorf("printer created but failed to load: %w", err)
	}

	e.logFn("Printer %s added (%s)", pc.Name, pc.Endpoint())
	e.emit(EventPrinterCreated, PrinterEvent{Name: pc.Name})
	return nil
}

// UpdatePrinter replaces a printer's settings. The name cannot change.
func (e *Engine) UpdatePrinter(name string, pc config.PrinterConfig) error {
	pc.Name = name
	pc.Host = strings.TrimSpace(pc.Host)
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.cfg.Lock()
	if e.cfg.FindPrinter(name) == nil {
		e.cfg.Unlock()
		return fmt.Errorf("%w: printer '%s'", ErrNotFound, name)
	}
	if other := e.endpointInUse(pc, name); other != "" {
		e.cfg.Unlock()
		return fmt.Errorf("%w: %s is already used by printer '%s'", ErrAlreadyExists, pc.Endpoint(), other)
	}
	e.cfg.UpdatePrinter(name, pc)
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	if err := e.printers.Add(pc); err != nil {
		return fmt.Errorf("printer updated but failed to load: %w", err)
	}

	e.emit(EventPrinterUpdated, PrinterEvent{Name: name})
	return nil
}

// DeletePrinter removes a printer from config and the running manager.
func (e *Engine) DeletePrinter(name string) error {
	e.cfg.Lock()
	if !e.cfg.RemovePrinter(name) {
		e.cfg.Unlock()
		return fmt.Errorf("%w: printer '%s'", ErrNotFound, name)
	}
	if e.cfg.DefaultPrinter == name {
		e.cfg.DefaultPrinter = ""
	}
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.printers.Remove(name)
	e.emit(EventPrinterDeleted, PrinterEvent{Name: name})
	return nil
}

func printerErr(err error) error {
	if errors.Is(err, printer.ErrUnknownPrinter) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// CheckPrinter tests connectivity and records the outcome.
func (e *Engine) CheckPrinter(ctx context.Context, name string) (printer.State, printer.Result, error) {
	state, res, err := e.printers.Check(ctx, name)
	return state, res, printerErr(err)
}

// PrinterStatus queries a printer's host status. A nil status means the
// printer did not answer.
func (e *Engine) PrinterStatus(ctx context.Context, name string) (*printer.Status, error) {
	st, err := e.printers.Status(ctx, name)
	return st, printerErr(err)
}

// TestLabel composes the test label for a printer, sized for its resolution.
func TestLabel(pc config.PrinterConfig) string {
	dims, _ := zpl.LookupLabelSize(zpl.DefaultLabelSize)
	gen := zpl.NewGenerator(pc.GetDPI())
	width, height := gen.MMToDots(dims.PrintWidthMM), gen.MMToDots(dims.PrintHeightMM)
	margin := gen.MMToDots(2)
	inner := width - 2*margin

	return zpl.Compose(width, height,
		zpl.Box{X: margin / 2, Y: margin / 2, Width: width - margin, Height: height - margin},
		zpl.TextField{Text: "zplink test label", X: margin, Y: margin * 2, MaxWidth: inner, Justify: zpl.JustifyCenter},
		zpl.TextField{Text: pc.Name, X: margin, Y: margin*2 + 40, FontHeight: 24, MaxWidth: inner, Justify: zpl.JustifyCenter},
		zpl.TextField{Text: fmt.Sprintf("%s %d dpi", pc.Endpoint(), pc.GetDPI()), X: margin, Y: margin*2 + 72, FontHeight: 20, MaxWidth: inner, Justify: zpl.JustifyCenter},
	)
}

// PrintTestLabel sends the test label to a printer. It is not recorded as a job.
func (e *Engine) PrintTestLabel(ctx context.Context, name string) (printer.Result, error) {
	pc, ok := e.printers.Config(name)
	if !ok {
		return printer.Result{}, fmt.Errorf("%w: printer '%s'", ErrNotFound, name)
	}
	res, err := e.printers.Send(ctx, name, TestLabel(pc))
	if err != nil {
		return res, printerErr(err)
	}
	if res.Success {
		e.logFn("Test label printed on %s", name)
	} else {
		e.logFn("Test label on %s failed: %s", name, res.Error)
	}
	return res, nil
}
