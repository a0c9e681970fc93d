package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"zplink/config"
	"zplink/labeldata"
	"zplink/printer"
	"zplink/zpl"
)

// fakePrinters records documents and answers from a script.
type fakePrinters struct {
	mu       sync.Mutex
	printers map[string]config.PrinterConfig
	sent     []string
	batches  [][]string
	results  func(docs []string) []printer.Result
	sendErr  error
	block    chan struct{}
}

func newFakePrinters(cfgs ...config.PrinterConfig) *fakePrinters {
	f := &fakePrinters{printers: make(map[string]config.PrinterConfig)}
	for _, c := range cfgs {
		f.printers[c.Name] = c
	}
	return f
}

func (f *fakePrinters) Config(name string) (config.PrinterConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.printers[name]
	return c, ok
}

func (f *fakePrinters) Send(ctx context.Context, name, doc string) (printer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return printer.Result{}, f.sendErr
	}
	f.sent = append(f.sent, doc)
	if f.results != nil {
		return f.results([]string{doc})[0], nil
	}
	return printer.Result{Success: true, BytesSent: len(doc)}, nil
}

func (f *fakePrinters) SendBatch(ctx context.Context, name string, docs []string) ([]printer.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.batches = append(f.batches, docs)
	if f.results != nil {
		return f.results(docs), nil
	}
	out := make([]printer.Result, len(docs))
	for i, d := range docs {
		out[i] = printer.Result{Success: true, BytesSent: len(d)}
	}
	return out, nil
}

const testTemplate = "^XA^FO10,10^FD{cable_id}^FS^FO10,50^FD{term_a_device}^FS^XZ"

func testTemplates() TemplateProvider {
	tmpl := zpl.TemplateDefinition{Name: "cable", WidthMM: 25.4, HeightMM: 38, ZPLTemplate: testTemplate}
	return TemplateFunc(func(name string) (zpl.TemplateDefinition, bool) {
		if name == "" || name == "cable" {
			return tmpl, true
		}
		return zpl.TemplateDefinition{}, false
	})
}

func newTestService(t *testing.T, f *fakePrinters) *Service {
	t.Helper()
	s := NewService(f, testTemplates(), labeldata.NewMapper("https://netbox.example.com"), Options{HistorySize: 50, Workers: 1})
	t.Cleanup(s.Close)
	return s
}

func cable(id int, label string) *labeldata.Cable {
	return &labeldata.Cable{
		ID:            id,
		Label:         label,
		ATerminations: []labeldata.Termination{{Device: "sw-01", Interface: "Gi1/0/1"}},
	}
}

func TestPrint(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	s := newTestService(t, f)

	var got []Job
	s.SetOnJob(func(j Job) { got = append(got, j) })

	job, err := s.Print(context.Background(), PrintRequest{
		Object:    cable(42, "CBL-042"),
		Printer:   "zebra",
		Quantity:  5,
		PrintedBy: "ops",
	})
	if err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if !job.Success || job.Error != "" {
		t.Errorf("job = %+v", job)
	}
	if job.ObjectType != "cable" || job.ObjectID != 42 || job.Object != "CBL-042" {
		t.Errorf("job object = %s/%d/%s", job.ObjectType, job.ObjectID, job.Object)
	}
	if job.Template != "cable" || job.Printer != "zebra" || job.PrintedBy != "ops" {
		t.Errorf("job = %+v", job)
	}
	want := "^XA^FO10,10^FDCBL-042^FS^FO10,50^FDsw-01^FS^PQ5,0,1,Y^XZ"
	if job.ZPL != want {
		t.Errorf("ZPL = %q, want %q", job.ZPL, want)
	}
	if len(f.sent) != 1 || f.sent[0] != want {
		t.Errorf("sent = %q", f.sent)
	}
	if len(job.ID) != 26 {
		t.Errorf("ID = %q, want a ULID", job.ID)
	}
	if len(got) != 1 || got[0].ID != job.ID {
		t.Errorf("OnJob calls = %+v", got)
	}
	if h := s.History().List(0); len(h) != 1 || h[0].ID != job.ID {
		t.Errorf("history = %+v", h)
	}
}

func TestPrint_DeliveryFailureIsRecorded(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	f.results = func(docs []string) []printer.Result {
		return []printer.Result{{Error: "Connection timeout after 5s"}}
	}
	s := newTestService(t, f)

	job, err := s.Print(context.Background(), PrintRequest{Object: cable(1, ""), Printer: "zebra", Quantity: 1})
	if err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if job.Success || job.Error != "Connection timeout after 5s" {
		t.Errorf("job = %+v", job)
	}
	if job.Object != "CBL-1" {
		t.Errorf("Object = %q", job.Object)
	}
	if s.History().Len() != 1 {
		t.Error("failed job not recorded")
	}
}

func TestPrint_RequestErrors(t *testing.T) {
	f := newFakePrinters(
		config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"},
		config.PrinterConfig{Name: "parked", Host: "10.0.0.6", Status: config.PrinterMaintenance},
	)
	s := newTestService(t, f)

	tests := []struct {
		name    string
		req     PrintRequest
		wantErr error
		wantMsg string
	}{
		{"unknown printer", PrintRequest{Object: cable(1, ""), Printer: "ghost", Quantity: 1}, ErrPrinterNotFound, "Printer not found: ghost"},
		{"unknown template", PrintRequest{Object: cable(1, ""), Printer: "zebra", Template: "nope", Quantity: 1}, ErrTemplateNotFound, ""},
		{"inactive printer", PrintRequest{Object: cable(1, ""), Printer: "parked", Quantity: 1}, ErrPrinterInactive, "Printer 'parked' is not active"},
		{"zero quantity", PrintRequest{Object: cable(1, ""), Printer: "zebra", Quantity: 0}, ErrInvalidQuantity, ""},
		{"too many", PrintRequest{Object: cable(1, ""), Printer: "zebra", Quantity: 101}, ErrInvalidQuantity, ""},
		{"nil object", PrintRequest{Printer: "zebra", Quantity: 1}, labeldata.ErrUnsupportedObjectType, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := s.Print(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Print() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantMsg)
			}
			if job != nil {
				t.Errorf("job created for rejected request: %+v", job)
			}
		})
	}

	if len(f.sent) != 0 {
		t.Errorf("documents sent for rejected requests: %q", f.sent)
	}
	if s.History().Len() != 0 {
		t.Error("rejected requests recorded in history")
	}
}

func TestPrint_PrinterDefaultTemplate(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5", DefaultTemplate: "missing"})
	s := newTestService(t, f)

	_, err := s.Print(context.Background(), PrintRequest{Object: cable(1, ""), Printer: "zebra", Quantity: 1})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("Print() error = %v, want template not found from printer default", err)
	}
}

func TestPrintBatch(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	s := newTestService(t, f)

	sum := s.PrintBatch(context.Background(), BatchRequest{
		Objects:  []labeldata.Object{cable(1, "A"), cable(2, "B"), cable(3, "C")},
		Printer:  "zebra",
		Quantity: 1,
	})
	if sum.Status != StatusSuccess || sum.Printed != 3 || sum.Failed != 0 || len(sum.JobIDs) != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if len(f.batches) != 1 || len(f.batches[0]) != 3 {
		t.Fatalf("batches = %v", f.batches)
	}
	if !strings.Contains(f.batches[0][1], "^FDB^FS") {
		t.Errorf("documents out of order: %q", f.batches[0])
	}
}

func TestPrintBatch_Partial(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	f.results = func(docs []string) []printer.Result {
		out := make([]printer.Result, len(docs))
		for i := range docs {
			if i < 2 {
				out[i] = printer.Result{Success: true}
			} else {
				out[i] = printer.Result{Error: "Socket error: connection reset by peer"}
			}
		}
		return out
	}
	s := newTestService(t, f)

	var jobs []Job
	s.SetOnJob(func(j Job) { jobs = append(jobs, j) })

	objs := []labeldata.Object{cable(1, ""), cable(2, ""), cable(3, ""), nil, cable(5, "")}
	sum := s.PrintBatch(context.Background(), BatchRequest{Objects: objs, Printer: "zebra", Quantity: 2})

	if sum.Status != StatusPartial || sum.Printed != 2 || sum.Failed != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.JobIDs) != 4 || len(jobs) != 4 {
		t.Errorf("got %d job ids, %d jobs; want 4 (unmappable object has no job)", len(sum.JobIDs), len(jobs))
	}
	for _, j := range jobs[2:] {
		if j.Success || j.Error != "Socket error: connection reset by peer" {
			t.Errorf("job = %+v", j)
		}
	}
}

func TestPrintBatch_AllFailed(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	f.results = func(docs []string) []printer.Result {
		out := make([]printer.Result, len(docs))
		for i := range out {
			out[i] = printer.Result{Error: "Socket error: connection refused"}
		}
		return out
	}
	s := newTestService(t, f)

	sum := s.PrintBatch(context.Background(), BatchRequest{Objects: []labeldata.Object{cable(1, ""), cable(2, "")}, Printer: "zebra", Quantity: 1})
	if sum.Status != StatusFailed || sum.Printed != 0 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPrintBatch_ProviderError(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	f.sendErr = printer.ErrUnknownPrinter
	s := newTestService(t, f)

	sum := s.PrintBatch(context.Background(), BatchRequest{Objects: []labeldata.Object{cable(1, "")}, Printer: "zebra", Quantity: 1})
	if sum.Status != StatusFailed || sum.Failed != 1 || len(sum.JobIDs) != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPrintBatch_RequestErrors(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "off", Host: "10.0.0.5", Status: config.PrinterOffline})
	s := newTestService(t, f)

	tests := []struct {
		req  BatchRequest
		want string
	}{
		{BatchRequest{Printer: "ghost", Quantity: 1}, "Printer not found: ghost"},
		{BatchRequest{Printer: "off", Quantity: 1}, "Printer 'off' is not active"},
	}
	for _, tt := range tests {
		sum := s.PrintBatch(context.Background(), tt.req)
		if sum.Status != StatusError || sum.Error != tt.want || sum.Printed != 0 || sum.Failed != 0 {
			t.Errorf("summary = %+v, want error %q", sum, tt.want)
		}
	}
}

func TestSubmit(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	f.block = make(chan struct{})
	s := newTestService(t, f)

	done := make(chan BatchStatus, 1)
	s.SetOnBatch(func(b BatchStatus) { done <- b })

	objs := make([]labeldata.Object, BatchThreshold)
	for i := range objs {
		objs[i] = cable(i+1, "")
	}
	st, err := s.Submit(BatchRequest{Objects: objs, Printer: "zebra", Quantity: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if st.State != BatchPending || st.Total != BatchThreshold {
		t.Errorf("status = %+v", st)
	}

	close(f.block)
	select {
	case fin := <-done:
		if fin.ID != st.ID || fin.State != BatchDone || fin.Summary == nil || fin.Summary.Printed != BatchThreshold {
			t.Errorf("finished = %+v", fin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish")
	}

	got, ok := s.Batch(st.ID)
	if !ok || got.State != BatchDone {
		t.Errorf("Batch(%s) = %+v, %v", st.ID, got, ok)
	}
	for _, j := range s.History().List(0) {
		if j.BatchID != st.ID {
			t.Errorf("job %s has batch id %q", j.ID, j.BatchID)
		}
	}
}

func TestSubmit_RejectsBadRequests(t *testing.T) {
	f := newFakePrinters(config.PrinterConfig{Name: "zebra", Host: "10.0.0.5"})
	s := newTestService(t, f)

	if _, err := s.Submit(BatchRequest{Printer: "zebra", Quantity: 1}); !errors.Is(err, ErrNoObjects) {
		t.Errorf("Submit(empty) error = %v", err)
	}
	if _, err := s.Submit(BatchRequest{Objects: []labeldata.Object{cable(1, "")}, Printer: "ghost", Quantity: 1}); !errors.Is(err, ErrPrinterNotFound) {
		t.Errorf("Submit(ghost) error = %v", err)
	}
	if len(s.Batches()) != 0 {
		t.Errorf("rejected batches recorded: %+v", s.Batches())
	}
}

func TestShouldUseBackground(t *testing.T) {
	if ShouldUseBackground(BatchThreshold - 1) {
		t.Error("below threshold uses background")
	}
	if !ShouldUseBackground(BatchThreshold) {
		t.Error("threshold does not use background")
	}
}

func TestBuiltinTemplates(t *testing.T) {
	def, ok := BuiltinTemplates.Template("")
	if !ok || def.LabelSize != zpl.DefaultLabelSize {
		t.Errorf("default template = %+v, %v", def, ok)
	}
	if _, ok := BuiltinTemplates.Template(zpl.TemplateSBP100143Minimal.Name); !ok {
		t.Error("built-in template not found by name")
	}
}

func TestNewID_Monotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		id := NewID()
		if id <= prev {
			t.Fatalf("NewID() = %s not after %s", id, prev)
		}
		prev = id
	}
}
