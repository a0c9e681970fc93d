package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"zplink/config"
	"zplink/engine"
	"zplink/jobs"
	"zplink/preview"
)

// fakePrinter accepts raw TCP connections and records each payload.
type fakePrinter struct {
	ln       net.Listener
	mu       sync.Mutex
	received []string
	wg       sync.WaitGroup
}

func newFakePrinter(t *testing.T) *fakePrinter {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &fakePrinter{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			p.wg.Add(1)
			go func(c net.Conn) {
				defer p.wg.Done()
				defer c.Close()
				data, _ := io.ReadAll(c)
				p.mu.Lock()
				p.received = append(p.received, string(data))
				p.mu.Unlock()
			}(conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		p.wg.Wait()
	})
	return p
}

func (p *fakePrinter) config(name string) config.PrinterConfig {
	pc := config.DefaultPrinterConfig(name, "127.0.0.1")
	pc.Port = p.ln.Addr().(*net.TCPAddr).Port
	pc.Timeout = time.Second
	return pc
}

type fakeRenderer struct {
	fail string
}

func (f *fakeRenderer) Render(ctx context.Context, doc string, dpi int, widthMM, heightMM float64) preview.Result {
	if f.fail != "" {
		return preview.Result{Success: false, Error: f.fail}
	}
	return preview.Result{Success: true, ImageData: []byte("\x89PNG"), ContentType: preview.ContentTypePNG}
}

type testAPI struct {
	eng      *engine.Engine
	router   http.Handler
	renderer *fakeRenderer
}

func newTestAPI(t *testing.T, printers ...config.PrinterConfig) *testAPI {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Namespace = "test"
	cfg.BaseURL = "https://netbox.example.com"
	cfg.Printers = append(cfg.Printers, printers...)
	cfg.Jobs.Workers = 1

	r := &fakeRenderer{}
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
		Renderer:   r,
	})
	router, cleanup := NewRouter(eng)
	t.Cleanup(func() {
		cleanup()
		eng.Stop()
	})
	return &testAPI{eng: eng, router: router, renderer: r}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

const cableJSON = `{"id":7,"label":"CBL-0007","a_terminations":[{"device":"sw-01","interface":"Gi1/0/1"}],"length":5,"length_unit":"m"}`

func labelBody(printer string, extra string) string {
	s := `{"kind":"cable","object":` + cableJSON
	if printer != "" {
		s += `,"printer":"` + printer + `"`
	}
	return s + extra + `}`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	msg, _ := resp["error"].(string)
	return msg
}

func TestWriteError(t *testing.T) {
	h := &handlers{}
	w := httptest.NewRecorder()
	h.writeError(w, http.StatusNotFound, "printer not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if msg := decodeError(t, w); msg != "printer not found" {
		t.Errorf("error = %q", msg)
	}
}

func TestPrinters(t *testing.T) {
	fp := newFakePrinter(t)
	a := newTestAPI(t, fp.config("p1"))

	w := a.do(t, http.MethodGet, "/printers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /printers status = %d", w.Code)
	}
	var list []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0]["name"] != "p1" {
		t.Errorf("printers = %v", list)
	}

	if w := a.do(t, http.MethodGet, "/printers/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET unknown printer status = %d, want 404", w.Code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"create", http.MethodPost, "/printers", `{"name":"p2","host":"10.0.0.2","port":9100,"dpi":203}`, http.StatusCreated},
		{"duplicate", http.MethodPost, "/printers", `{"name":"p2","host":"10.0.0.3"}`, http.StatusConflict},
		{"bad timeout", http.MethodPost, "/printers", `{"name":"p3","host":"10.0.0.3","timeout":"soon"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/printers", `{`, http.StatusBadRequest},
		{"update", http.MethodPut, "/printers/p2", `{"host":"10.0.0.2","port":9101,"status":"maintenance"}`, http.StatusOK},
		{"update missing", http.MethodPut, "/printers/p9", `{"host":"10.0.0.9"}`, http.StatusNotFound},
		{"delete", http.MethodDelete, "/printers/p2", "", http.StatusOK},
		{"delete again", http.MethodDelete, "/printers/p2", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPrinterCheckAndTestLabel(t *testing.T) {
	fp := newFakePrinter(t)
	a := newTestAPI(t, fp.config("p1"))

	w := a.do(t, http.MethodPost, "/printers/p1/check", "")
	if w.Code != http.StatusOK {
		t.Fatalf("check status = %d", w.Code)
	}
	var check CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !check.Online {
		t.Errorf("check = %+v, want online", check)
	}

	w = a.do(t, http.MethodPost, "/printers/p1/test-label", "")
	if w.Code != http.StatusOK {
		t.Fatalf("test-label status = %d (%s)", w.Code, w.Body.String())
	}
}

func TestGenerateAndDownload(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/labels/generate", labelBody("", `,"quantity":3`))
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d (%s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "^XA") || !strings.Contains(body, "CBL-0007") || !strings.Contains(body, "^PQ3,0,1,Y") {
		t.Errorf("generated ZPL = %q", body)
	}

	w = a.do(t, http.MethodPost, "/labels/download", labelBody("", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="cable_7_CBL-0007.zpl"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestLabelRequestErrors(t *testing.T) {
	fp := newFakePrinter(t)
	inactive := config.DefaultPrinterConfig("off", "127.0.0.2")
	inactive.Status = config.PrinterMaintenance
	a := newTestAPI(t, fp.config("p1"), inactive)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing kind", "/labels/generate", `{"object":{"id":1}}`, http.StatusBadRequest},
		{"unknown kind", "/labels/generate", `{"kind":"toaster","object":{"id":1}}`, http.StatusBadRequest},
		{"quantity too large", "/labels/generate", labelBody("", `,"quantity":101`), http.StatusBadRequest},
		{"unknown template", "/labels/generate", labelBody("", `,"template":"nope"`), http.StatusNotFound},
		{"unknown printer", "/labels/print", labelBody("nope", ""), http.StatusNotFound},
		{"inactive printer", "/labels/print", labelBody("off", ""), http.StatusBadRequest},
		{"empty batch", "/labels/print-batch", `{"kind":"cable","objects":[],"printer":"p1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if decodeError(t, w) == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestPreview(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/labels/preview", labelBody("", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Errorf("body = %q", w.Body.Bytes())
	}

	a.renderer.fail = "Labelary API error: 400"
	w = a.do(t, http.MethodPost, "/labels/preview", labelBody("", ""))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("failed preview status = %d", w.Code)
	}
	if msg := decodeError(t, w); msg != "Labelary API error: 400" {
		t.Errorf("error = %q", msg)
	}

	a.renderer.fail = ""
	w = a.do(t, http.MethodGet, "/templates/SBP100375%20Full/preview", "")
	if w.Code != http.StatusOK {
		t.Errorf("template preview status = %d (%s)", w.Code, w.Body.String())
	}
}

func TestPrint(t *testing.T) {
	fp := newFakePrinter(t)
	a := newTestAPI(t, fp.config("p1"))

	w := a.do(t, http.MethodPost, "/labels/print", labelBody("p1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("print status = %d (%s)", w.Code, w.Body.String())
	}
	var job jobs.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !job.Success || job.Printer != "p1" || job.ObjectID != 7 {
		t.Errorf("job = %+v", job)
	}

	w = a.do(t, http.MethodGet, "/jobs/"+job.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("GET job status = %d", w.Code)
	}
	w = a.do(t, http.MethodGet, "/jobs?limit=5", "")
	var list []jobs.Job
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(list) != 1 || list[0].ID != job.ID {
		t.Errorf("jobs = %+v", list)
	}
	if w := a.do(t, http.MethodGet, "/jobs?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestPrintBatch(t *testing.T) {
	fp := newFakePrinter(t)
	a := newTestAPI(t, fp.config("p1"))

	small := `{"kind":"cable","printer":"p1","objects":[{"id":1},{"id":2}]}`
	w := a.do(t, http.MethodPost, "/labels/print-batch", small)
	if w.Code != http.StatusOK {
		t.Fatalf("small batch status = %d (%s)", w.Code, w.Body.String())
	}
	var res engine.BatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Summary == nil || res.Summary.Printed != 2 || res.Summary.Status != jobs.StatusSuccess {
		t.Errorf("summary = %+v", res.Summary)
	}

	objs := make([]string, jobs.BatchThreshold)
	for i := range objs {
		objs[i] = `{"id":1}`
	}
	large := `{"kind":"cable","printer":"p1","objects":[` + strings.Join(objs, ",") + `]}`
	w = a.do(t, http.MethodPost, "/labels/print-batch", large)
	if w.Code != http.StatusAccepted {
		t.Fatalf("large batch status = %d (%s)", w.Code, w.Body.String())
	}
	res = engine.BatchResult{}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Background == nil || res.Background.Total != jobs.BatchThreshold {
		t.Fatalf("batch = %+v", res.Background)
	}
	if w := a.do(t, http.MethodGet, "/batches/"+res.Background.ID, ""); w.Code != http.StatusOK {
		t.Errorf("GET batch status = %d", w.Code)
	}
	if w := a.do(t, http.MethodGet, "/batches/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET missing batch status = %d", w.Code)
	}
}

func TestTemplates(t *testing.T) {
	a := newTestAPI(t)

	valid := `{"name":"Mine","width_mm":25.4,"height_mm":38,"dpi":300,"zpl_template":"^XA^FO10,10^FD{cable_id}^FS^XZ"}`
	dangerous := `{"name":"Bad","width_mm":25.4,"height_mm":38,"dpi":300,"zpl_template":"^XA^HH^XZ"}`

	w := a.do(t, http.MethodPost, "/templates", valid)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	if w := a.do(t, http.MethodPost, "/templates", valid); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", w.Code)
	}

	w = a.do(t, http.MethodPost, "/templates", dangerous)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("dangerous status = %d (%s)", w.Code, w.Body.String())
	}
	var terr TemplateErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &terr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(terr.FoundCommands) != 1 || terr.FoundCommands[0] != "^HH" {
		t.Errorf("found_commands = %v", terr.FoundCommands)
	}

	if w := a.do(t, http.MethodGet, "/templates/Mine", ""); w.Code != http.StatusOK {
		t.Errorf("GET template status = %d", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/templates/SBP100375%20Full", ""); w.Code != http.StatusBadRequest {
		t.Errorf("delete built-in status = %d, want 400", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/templates/Mine", ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
}

func TestValidateAndSanitize(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/templates/validate", `{"template":"^XA^FDok^FS^XZ"}`)
	var v ValidateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Safe || len(v.FoundCommands) != 0 || v.Error != "" {
		t.Errorf("validate = %+v", v)
	}

	w = a.do(t, http.MethodPost, "/templates/validate", `{"template":"^XA^IDR:*.*^XZ"}`)
	v = ValidateResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Safe || len(v.FoundCommands) == 0 || v.Error == "" {
		t.Errorf("validate dangerous = %+v", v)
	}

	w = a.do(t, http.MethodPost, "/templates/sanitize", `{"template":"^XA^HH^FDok^FS^XZ"}`)
	var s TemplateRequest
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Contains(s.Template, "^HH") || !strings.Contains(s.Template, "^FDok") {
		t.Errorf("sanitized = %q", s.Template)
	}
}

func TestSettings(t *testing.T) {
	fp := newFakePrinter(t)
	a := newTestAPI(t, fp.config("p1"))

	w := a.do(t, http.MethodPut, "/settings", `{"namespace":"site-b","default_printer":"p1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT settings status = %d (%s)", w.Code, w.Body.String())
	}
	var s engine.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Namespace != "site-b" || s.DefaultPrinter != "p1" {
		t.Errorf("settings = %+v", s)
	}

	if w := a.do(t, http.MethodPut, "/settings", `{"namespace":"bad space"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad namespace status = %d", w.Code)
	}
	if w := a.do(t, http.MethodPut, "/settings", `{"default_template":"nope"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown template status = %d", w.Code)
	}
}

func TestBrokersAndWebhooks(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"create mqtt", http.MethodPost, "/mqtt", `{"name":"m1","broker":"localhost"}`, http.StatusCreated},
		{"mqtt missing broker", http.MethodPost, "/mqtt", `{"name":"m2"}`, http.StatusBadRequest},
		{"stop unknown mqtt", http.MethodPost, "/mqtt/nope/stop", "", http.StatusNotFound},
		{"create valkey", http.MethodPost, "/valkey", `{"name":"v1","address":"localhost:6379"}`, http.StatusCreated},
		{"valkey bad ttl", http.MethodPost, "/valkey", `{"name":"v2","address":"localhost:6379","key_ttl":"x"}`, http.StatusBadRequest},
		{"create kafka", http.MethodPost, "/kafka", `{"name":"k1","brokers":"localhost:9092"}`, http.StatusCreated},
		{"kafka bad sasl", http.MethodPost, "/kafka", `{"name":"k2","brokers":"localhost:9092","sasl_mechanism":"GSSAPI"}`, http.StatusBadRequest},
		{"disconnect unknown kafka", http.MethodPost, "/kafka/nope/disconnect", "", http.StatusNotFound},
		{"create webhook", http.MethodPost, "/webhooks", `{"name":"w1","url":"http://127.0.0.1:1/hook"}`, http.StatusCreated},
		{"webhook bad url", http.MethodPost, "/webhooks", `{"name":"w2","url":"ftp://example.com"}`, http.StatusBadRequest},
		{"reset unknown webhook", http.MethodPost, "/webhooks/nope/reset", "", http.StatusNotFound},
		{"delete mqtt", http.MethodDelete, "/mqtt/m1", "", http.StatusOK},
		{"delete valkey", http.MethodDelete, "/valkey/v1", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := a.do(t, http.MethodGet, "/services", "")
	var services []engine.ServiceInfo
	if err := json.Unmarshal(w.Body.Bytes(), &services); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(services) != 1 || services[0].Type != "kafka" {
		t.Errorf("services = %+v", services)
	}

	w = a.do(t, http.MethodGet, "/webhooks", "")
	if !strings.Contains(w.Body.String(), `"w1"`) {
		t.Errorf("webhooks = %s", w.Body.String())
	}
}

func TestEventStream(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws?types=printer_created"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var hello connectedMessage
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read connected: %v", err)
	}
	if hello.Type != "connected" || hello.ID == "" {
		t.Errorf("hello = %+v", hello)
	}

	// Filtered out by the types parameter.
	if err := a.eng.SetNamespace("other"); err != nil {
		t.Fatalf("SetNamespace() error = %v", err)
	}
	if err := a.eng.CreatePrinter(config.DefaultPrinterConfig("p9", "10.0.0.9")); err != nil {
		t.Fatalf("CreatePrinter() error = %v", err)
	}

	var ev struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "printer_created" || !strings.Contains(string(ev.Payload), `"printer":"p9"`) {
		t.Errorf("event = %s %s", ev.Type, ev.Payload)
	}
}
