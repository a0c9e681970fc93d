package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zplink/config"
	"zplink/labeldata"
	"zplink/logging"
	"zplink/printer"
	"zplink/zpl"
)

// PrinterProvider resolves printers and delivers documents to them.
// *printer.Manager satisfies it.
type PrinterProvider interface {
	Config(name string) (config.PrinterConfig, bool)
	Send(ctx context.Context, name, doc string) (printer.Result, error)
	SendBatch(ctx context.Context, name string, docs []string) ([]printer.Result, error)
}

// TemplateProvider resolves template names. The empty name selects the
// default template.
type TemplateProvider interface {
	Template(name string) (zpl.TemplateDefinition, bool)
}

// TemplateFunc adapts a function to TemplateProvider.
type TemplateFunc func(name string) (zpl.TemplateDefinition, bool)

// Template calls f.
func (f TemplateFunc) Template(name string) (zpl.TemplateDefinition, bool) {
	return f(name)
}

// BuiltinTemplates resolves only the built-in catalog.
var BuiltinTemplates TemplateFunc = func(name string) (zpl.TemplateDefinition, bool) {
	if name == "" {
		return zpl.DefaultTemplate("")
	}
	return zpl.TemplateByName(name)
}

// PrintRequest asks for labels for one object.
type PrintRequest struct {
	Object    labeldata.Object
	Printer   string
	Template  string
	Quantity  int
	PrintedBy string
}

// BatchRequest asks for labels for several objects on one printer.
type BatchRequest struct {
	Objects   []labeldata.Object
	Printer   string
	Template  string
	Quantity  int
	PrintedBy string
}

// Options tune a Service.
type Options struct {
	HistorySize int
	Workers     int
}

// Service prints labels and records the jobs.
type Service struct {
	printers  PrinterProvider
	templates TemplateProvider
	mapper    *labeldata.Mapper
	history   *History

	cbMu    sync.RWMutex
	onJob   func(Job)
	onBatch func(BatchStatus)
	logFn   func(format string, args ...interface{})

	batchMu sync.RWMutex
	batches map[string]*batchEntry
	order   []string

	queue    chan queuedBatch
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewService creates a job service and starts its background workers.
func NewService(printers PrinterProvider, templates TemplateProvider, mapper *labeldata.Mapper, opts Options) *Service {
	if templates == nil {
		templates = BuiltinTemplates
	}
	if mapper == nil {
		mapper = labeldata.NewMapper("")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &Service{
		printers:  printers,
		templates: templates,
		mapper:    mapper,
		history:   NewHistory(opts.HistorySize),
		batches:   make(map[string]*batchEntry),
		queue:     make(chan queuedBatch, MaxQueuedBatches),
		workers:   workers,
		stopChan:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.batchWorker()
	}
	return s
}

// SetOnJob registers a callback invoked for every recorded job.
func (s *Service) SetOnJob(fn func(Job)) {
	s.cbMu.Lock()
	s.onJob = fn
	s.cbMu.Unlock()
}

// SetOnBatch registers a callback invoked when a background batch finishes.
func (s *Service) SetOnBatch(fn func(BatchStatus)) {
	s.cbMu.Lock()
	s.onBatch = fn
	s.cbMu.Unlock()
}

// SetLogFunc sets the operational log callback.
func (s *Service) SetLogFunc(fn func(format string, args ...interface{})) {
	s.cbMu.Lock()
	s.logFn = fn
	s.cbMu.Unlock()
}

func (s *Service) log(format string, args ...interface{}) {
	s.cbMu.RLock()
	fn := s.logFn
	s.cbMu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
	logging.DebugLog("jobs", format, args...)
}

// History returns the job history.
func (s *Service) History() *History {
	return s.history
}

// Mapper returns the attribute mapper.
func (s *Service) Mapper() *labeldata.Mapper {
	return s.mapper
}

// ResolveTemplate returns the named template, or the default when name is empty.
func (s *Service) ResolveTemplate(name string) (zpl.TemplateDefinition, error) {
	t, ok := s.templates.Template(name)
	if !ok {
		if name == "" {
			return zpl.TemplateDefinition{}, fmt.Errorf("%w: no default template", ErrTemplateNotFound)
		}
		return zpl.TemplateDefinition{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Render generates the document for obj without printing it.
func (s *Service) Render(obj labeldata.Object, tmpl zpl.TemplateDefinition, quantity int) (string, labeldata.Attributes, error) {
	if !ValidQuantity(quantity) {
		return "", nil, ErrInvalidQuantity
	}
	attrs, err := s.mapper.Map(obj)
	if err != nil {
		return "", nil, err
	}
	doc := zpl.NewGenerator(tmpl.GetDPI()).Generate(tmpl.ZPLTemplate, attrs, quantity)
	logging.DebugLog("zpl", "rendered %s %d with %q: %d bytes, quantity %d", obj.Kind(), obj.ObjectID(), tmpl.Name, len(doc), quantity)
	return doc, attrs, nil
}

// RenderNamed resolves the template by name and renders obj.
func (s *Service) RenderNamed(obj labeldata.Object, template string, quantity int) (string, zpl.TemplateDefinition, error) {
	tmpl, err := s.ResolveTemplate(template)
	if err != nil {
		return "", tmpl, err
	}
	doc, _, err := s.Render(obj, tmpl, quantity)
	return doc, tmpl, err
}

// prepare checks a request's printer, template and quantity.
func (s *Service) prepare(printerName, templateName string, quantity int) (config.PrinterConfig, zpl.TemplateDefinition, error) {
	pcfg, ok := s.printers.Config(printerName)
	if !ok {
		return pcfg, zpl.TemplateDefinition{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, printerName)
	}
	if templateName == "" {
		templateName = pcfg.DefaultTemplate
	}
	tmpl, err := s.ResolveTemplate(templateName)
	if err != nil {
		return pcfg, tmpl, err
	}
	if !pcfg.IsActive() {
		return pcfg, tmpl, &PrinterInactiveError{Name: pcfg.Name, Status: pcfg.Status.String()}
	}
	if !ValidQuantity(quantity) {
		return pcfg, tmpl, ErrInvalidQuantity
	}
	return pcfg, tmpl, nil
}

func newJob(obj labeldata.Object, attrs labeldata.Attributes, printerName, template string, quantity int, by string) Job {
	return Job{
		ID:         NewID(),
		ObjectType: obj.Kind().String(),
		ObjectID:   obj.ObjectID(),
		Object:     attrs[obj.Kind().TitleKey()],
		Printer:    printerName,
		Template:   template,
		Quantity:   quantity,
		PrintedBy:  by,
		Created:    time.Now(),
	}
}

func (s *Service) record(j Job) {
	s.history.Add(j)
	s.cbMu.RLock()
	fn := s.onJob
	s.cbMu.RUnlock()
	if fn != nil {
		fn(j)
	}
}

// Print renders and sends labels for one object. Request problems (unknown
// printer or template, inactive printer, bad quantity, unmappable object)
// are returned as errors and create no job. A failed delivery is a job with
// Success false.
func (s *Service) Print(ctx context.Context, req PrintRequest) (*Job, error) {
	pcfg, tmpl, err := s.prepare(req.Printer, req.Template, req.Quantity)
	if err != nil {
		return nil, err
	}
	doc, attrs, err := s.Render(req.Object, tmpl, req.Quantity)
	if err != nil {
		return nil, err
	}

	job := newJob(req.Object, attrs, pcfg.Name, tmpl.Name, req.Quantity, req.PrintedBy)
	job.ZPL = doc

	res, err := s.printers.Send(ctx, pcfg.Name, doc)
	if err != nil {
		res = printer.Result{Error: err.Error()}
	}
	job.Success, job.Error, job.BytesSent = res.Success, res.Error, res.BytesSent

	if job.Success {
		s.log("Printed %s %s on %s (%d copies)", job.ObjectType, job.Object, job.Printer, job.Quantity)
	} else {
		s.log("Print of %s %s on %s failed: %s", job.ObjectType, job.Object, job.Printer, job.Error)
	}
	s.record(job)
	return &job, nil
}

// Summary is the outcome of a batch.
type Summary struct {
	Status  string   `json:"status"`
	Printed int      `json:"printed"`
	Failed  int      `json:"failed"`
	JobIDs  []string `json:"job_ids"`
	Error   string   `json:"error,omitempty"`
}

// Batch summary statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusError   = "error"
)

func summarize(printed, failed int, ids []string) Summary {
	status := StatusFailed
	switch {
	case failed == 0:
		status = StatusSuccess
	case printed > 0:
		status = StatusPartial
	}
	if ids == nil {
		ids = []string{}
	}
	return Summary{Status: status, Printed: printed, Failed: failed, JobIDs: ids}
}

// PrintBatch renders every object and sends the documents to one printer over
// a single connection. Objects that cannot be mapped count as failed without
// a job. Request problems yield status "error".
func (s *Service) PrintBatch(ctx context.Context, req BatchRequest) Summary {
	return s.printBatch(ctx, req, "")
}

func (s *Service) printBatch(ctx context.Context, req BatchRequest, batchID string) Summary {
	pcfg, tmpl, err := s.prepare(req.Printer, req.Template, req.Quantity)
	if err != nil {
		return Summary{Status: StatusError, Error: err.Error(), JobIDs: []string{}}
	}

	var (
		pending []Job
		docs    []string
		failed  int
	)
	for _, obj := range req.Objects {
		if obj == nil {
			failed++
			continue
		}
		doc, attrs, err := s.Render(obj, tmpl, req.Quantity)
		if err != nil {
			s.log("Skipping %s %d: %v", obj.Kind(), obj.ObjectID(), err)
			failed++
			continue
		}
		job := newJob(obj, attrs, pcfg.Name, tmpl.Name, req.Quantity, req.PrintedBy)
		job.ZPL = doc
		job.BatchID = batchID
		pending = append(pending, job)
		docs = append(docs, doc)
	}

	printed := 0
	ids := make([]string, 0, len(pending))
	if len(docs) > 0 {
		results, err := s.printers.SendBatch(ctx, pcfg.Name, docs)
		for i := range pending {
			job := pending[i]
			switch {
			case err != nil:
				job.Error = err.Error()
			case i < len(results):
				job.Success, job.Error, job.BytesSent = results[i].Success, results[i].Error, results[i].BytesSent
			default:
				job.Error = "no result from printer"
			}
			if job.Success {
				printed++
			} else {
				failed++
			}
			ids = append(ids, job.ID)
			s.record(job)
		}
	}

	sum := summarize(printed, failed, ids)
	s.log("Batch print on %s completed: printed=%d, failed=%d", pcfg.Name, printed, failed)
	return sum
}

// Close stops the background workers. Queued batches that have not started
// are marked failed.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		for {
			select {
			case q := <-s.queue:
				s.finishBatch(q.id, Summary{Status: StatusError, Error: "service stopped", JobIDs: []string{}})
			default:
				return
			}
		}
	})
}
