package valkey

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"zplink/config"
)

func testConfig(name string) *config.ValkeyConfig {
	return &config.ValkeyConfig{Name: name, Address: "localhost:6379", PublishChanges: true}
}

func TestStatusMessage_Structure(t *testing.T) {
	pub := NewPublisher(testConfig("v1"), "lab")
	msg := pub.statusMessage("zebra", true, "online", "")

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	for _, field := range []string{"instance", "printer", "online", "status", "timestamp"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
	if _, ok := decoded["error"]; ok {
		t.Error("empty error should be omitted")
	}
	if decoded["instance"] != "lab" {
		t.Errorf("instance = %v", decoded["instance"])
	}

	ts, err := time.Parse(time.RFC3339Nano, decoded["timestamp"].(string))
	if err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("timestamp too old: %v", ts)
	}
}

func TestPublisher_Keys(t *testing.T) {
	cfg := testConfig("v1")
	cfg.Selector = "row4"
	b := NewPublisher(cfg, "lab").Builder()

	tests := []struct {
		got, want string
	}{
		{b.ValkeyJobKey("01J"), "lab:row4:jobs:01J"},
		{b.ValkeyRecentJobsKey(), "lab:row4:jobs:recent"},
		{b.ValkeyStatusKey("zebra"), "lab:row4:printers:zebra:status"},
		{b.ValkeyPrintQueueKey(), "lab:row4:print:queue"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestPublisher_Address(t *testing.T) {
	cfg := testConfig("v1")
	if got := NewPublisher(cfg, "lab").Address(); got != "redis://localhost:6379" {
		t.Errorf("Address() = %q", got)
	}
	cfg.UseTLS = true
	if got := NewPublisher(cfg, "lab").Address(); got != "rediss://localhost:6379" {
		t.Errorf("Address() = %q", got)
	}
}

func TestPublisher_NotRunning(t *testing.T) {
	pub := NewPublisher(testConfig("v1"), "lab")
	if pub.IsRunning() {
		t.Fatal("new publisher is running")
	}
	if err := pub.PublishJob("01J", "zebra", []byte(`{}`)); err != nil {
		t.Errorf("PublishJob() = %v", err)
	}
	if err := pub.PublishStatus("zebra", false, "offline", "x"); err != nil {
		t.Errorf("PublishStatus() = %v", err)
	}
	if err := pub.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestProcessPrintRequest(t *testing.T) {
	tests := []struct {
		name    string
		handler PrintHandler
		raw     string
		success bool
		jobID   string
		errPart string
	}{
		{
			name:    "invalid json",
			handler: func(PrintRequest) (string, error) { return "x", nil },
			raw:     `{"printer":`,
			errPart: "invalid JSON",
		},
		{
			name:    "no handler",
			raw:     `{"printer":"zebra","kind":"cable","object":{"id":1}}`,
			errPart: "no print handler configured",
		},
		{
			name:    "missing printer",
			handler: func(PrintRequest) (string, error) { return "x", nil },
			raw:     `{"kind":"cable","object":{"id":1}}`,
			errPart: "printer, kind and object are required",
		},
		{
			name:    "handler error",
			handler: func(PrintRequest) (string, error) { return "", errors.New("Printer not found") },
			raw:     `{"request_id":"r9","printer":"ghost","kind":"cable","object":{"id":1}}`,
			errPart: "Printer not found",
		},
		{
			name: "success",
			handler: func(req PrintRequest) (string, error) {
				if req.Quantity != 3 || req.Template != "minimal" {
					return "", errors.New("request not decoded")
				}
				return "01JOB", nil
			},
			raw:     `{"request_id":"r1","printer":"zebra","kind":"cable","object":{"id":1},"template":"minimal","quantity":3}`,
			success: true,
			jobID:   "01JOB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewPublisher(testConfig("v1"), "lab")
			pub.SetPrintHandler(tt.handler)

			resp := pub.processPrintRequest([]byte(tt.raw))
			if resp.Success != tt.success || resp.JobID != tt.jobID {
				t.Errorf("resp = %+v", resp)
			}
			if tt.errPart != "" && !strings.Contains(resp.Error, tt.errPart) {
				t.Errorf("Error = %q, want it to contain %q", resp.Error, tt.errPart)
			}
			if resp.Instance != "lab" {
				t.Errorf("Instance = %q", resp.Instance)
			}
		})
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.SetPrintHandler(func(PrintRequest) (string, error) { return "", nil })
	m.LoadFromConfig([]config.ValkeyConfig{*testConfig("a"), *testConfig("b")}, "lab")

	if len(m.List()) != 2 {
		t.Fatalf("List() = %d publishers", len(m.List()))
	}
	if m.Get("a").printHandler == nil {
		t.Error("handler not propagated to loaded publisher")
	}
	if m.StartAll() != 0 || m.AnyRunning() {
		t.Error("disabled publishers started")
	}

	if err := m.Start("missing"); err == nil {
		t.Error("Start(missing) succeeded")
	}

	m.PublishJob("01J", "zebra", []byte(`{}`))
	m.PublishStatus("zebra", true, "online", "")

	if !m.Remove("a") || m.Remove("a") {
		t.Error("Remove() mismatch")
	}
	if m.Get("a") != nil || m.Get("b") == nil {
		t.Error("Get() after Remove mismatch")
	}
	m.StopAll()
}
