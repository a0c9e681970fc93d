package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"zplink/jobs"
	"zplink/labeldata"
	"zplink/preview"
	"zplink/zpl"
)

// RenderedLabel is a generated but unprinted label.
type RenderedLabel struct {
	Object   labeldata.Object
	Template zpl.TemplateDefinition
	ZPL      string
	Title    string
}

// filenameReplacer maps characters that are unsafe in a path or a quoted
// Content-Disposition parameter to underscores.
var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\"", "_", " ", "_", ";", "_", "\x7f", "_")

// Filename is the download name: {kind}_{id}_{title}.zpl, falling back to
// the id when the object has no usable title.
func (l RenderedLabel) Filename() string {
	title := zpl.SanitizeField(l.Title, 0)
	if title == "" {
		title = strconv.Itoa(l.Object.ObjectID())
	}
	title = filenameReplacer.Replace(title)
	return fmt.Sprintf("%s_%d_%s.zpl", l.Object.Kind(), l.Object.ObjectID(), title)
}

// BatchResult is the outcome of PrintLabels: a finished summary for small
// batches, or the queued batch for background ones.
type BatchResult struct {
	Summary    *jobs.Summary     `json:"summary,omitempty"`
	Background *jobs.BatchStatus `json:"batch,omitempty"`
}

func (e *Engine) printerName(name string) string {
	if name != "" {
		return name
	}
	return e.cfg.DefaultPrinter
}

func quantityOrOne(q int) int {
	if q == 0 {
		return 1
	}
	return q
}

// GenerateLabel renders the ZPL for one object without printing it.
func (e *Engine) GenerateLabel(req LabelRequest) (RenderedLabel, error) {
	obj, err := req.Decode()
	if err != nil {
		return RenderedLabel{}, err
	}
	tmpl, err := e.jobs.ResolveTemplate(req.Template)
	if err != nil {
		return RenderedLabel{}, err
	}
	doc, attrs, err := e.jobs.Render(obj, tmpl, quantityOrOne(req.Quantity))
	if err != nil {
		return RenderedLabel{}, err
	}
	return RenderedLabel{
		Object:   obj,
		Template: tmpl,
		ZPL:      doc,
		Title:    attrs[obj.Kind().TitleKey()],
	}, nil
}

// PreviewLabel renders one object and turns the document into an image with
// the configured preview backend. Renderer failures are reported in the result.
func (e *Engine) PreviewLabel(ctx context.Context, req LabelRequest) (preview.Result, error) {
	label, err := e.GenerateLabel(req)
	if err != nil {
		return preview.Result{}, err
	}
	t := label.Template
	return e.renderer.Render(ctx, label.ZPL, t.GetDPI(), t.WidthMM, t.HeightMM), nil
}

// PreviewURL returns the Labelary viewer link for one object's label.
func (e *Engine) PreviewURL(req LabelRequest) (string, error) {
	label, err := e.GenerateLabel(req)
	if err != nil {
		return "", err
	}
	t := label.Template
	return preview.ViewerURL(label.ZPL, t.GetDPI(), t.WidthMM, t.HeightMM), nil
}

// PrintLabel prints one object. Request problems are returned as errors; a
// failed delivery is a job with Success false.
func (e *Engine) PrintLabel(ctx context.Context, req LabelRequest) (*jobs.Job, error) {
	obj, err := req.Decode()
	if err != nil {
		return nil, err
	}
	return e.jobs.Print(ctx, jobs.PrintRequest{
		Object:    obj,
		Printer:   e.printerName(req.Printer),
		Template:  req.Template,
		Quantity:  quantityOrOne(req.Quantity),
		PrintedBy: req.PrintedBy,
	})
}

// PrintLabels prints several objects on one printer. Batches of
// jobs.BatchThreshold objects or more run in the background.
func (e *Engine) PrintLabels(ctx context.Context, req BatchLabelRequest) (BatchResult, error) {
	objs, err := req.Decode()
	if err != nil {
		return BatchResult{}, err
	}
	breq := jobs.BatchRequest{
		Objects:   objs,
		Printer:   e.printerName(req.Printer),
		Template:  req.Template,
		Quantity:  quantityOrOne(req.Quantity),
		PrintedBy: req.PrintedBy,
	}

	if jobs.ShouldUseBackground(len(objs)) {
		st, err := e.jobs.Submit(breq)
		if err != nil {
			return BatchResult{}, err
		}
		e.logFn("Queued background batch %s: %d labels on %s", st.ID, st.Total, st.Printer)
		return BatchResult{Background: &st}, nil
	}

	sum := e.jobs.PrintBatch(ctx, breq)
	return BatchResult{Summary: &sum}, nil
}

// Batch returns a background batch.
func (e *Engine) Batch(id string) (jobs.BatchStatus, error) {
	st, ok := e.jobs.Batch(id)
	if !ok {
		return st, fmt.Errorf("%w: batch '%s'", ErrNotFound, id)
	}
	return st, nil
}

// RecentJobs returns up to limit jobs, newest first.
func (e *Engine) RecentJobs(limit int) []jobs.Job {
	return e.jobs.History().List(limit)
}

// GetJob returns a recorded job.
func (e *Engine) GetJob(id string) (jobs.Job, error) {
	j, ok := e.jobs.History().Get(id)
	if !ok {
		return j, fmt.Errorf("%w: job '%s'", ErrNotFound, id)
	}
	return j, nil
}
