package mqtt

import (
	"encoding/json"
	"errors"
	"testing"

	"zplink/config"
)

func testConfig(name string) *config.MQTTConfig {
	return &config.MQTTConfig{
		Name:     name,
		Broker:   "localhost",
		Port:     1883,
		ClientID: "zplink-" + name,
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestPublisher_NewPublisher(t *testing.T) {
	cfg := testConfig("broker1")
	cfg.Selector = "row4"
	pub := NewPublisher(cfg, "lab")

	if pub.Name() != "broker1" {
		t.Errorf("Name() = %q", pub.Name())
	}
	if pub.IsRunning() {
		t.Error("new publisher should not be running")
	}
	if pub.Config() != cfg {
		t.Error("Config() did not return the configured pointer")
	}
	if got := pub.Builder().MQTTJobTopic("zebra"); got != "lab/row4/printers/zebra/jobs" {
		t.Errorf("job topic = %q", got)
	}
}

func TestPublisher_Address(t *testing.T) {
	tests := []struct {
		name   string
		tls    bool
		port   int
		expect string
	}{
		{"plain", false, 1883, "tcp://localhost:1883"},
		{"tls", true, 8883, "ssl://localhost:8883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("b")
			cfg.UseTLS = tt.tls
			cfg.Port = tt.port
			if got := NewPublisher(cfg, "lab").Address(); got != tt.expect {
				t.Errorf("Address() = %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestPublisher_PublishNotRunning(t *testing.T) {
	pub := NewPublisher(testConfig("b"), "lab")

	if err := pub.PublishJob("zebra", []byte(`{}`)); err == nil {
		t.Error("PublishJob on stopped publisher should fail")
	}
	if err := pub.PublishStatus("zebra", true, "online", ""); err == nil {
		t.Error("PublishStatus on stopped publisher should fail")
	}
	// Stop on a publisher that never started is a no-op.
	pub.Stop()
}

func TestPublisher_StatusMessage(t *testing.T) {
	pub := NewPublisher(testConfig("b"), "lab")
	msg := pub.statusMessage("zebra", false, "offline", "Connection timeout after 5s")

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)

	if decoded["topic"] != "lab" || decoded["printer"] != "zebra" {
		t.Errorf("decoded = %v", decoded)
	}
	if decoded["online"] != false || decoded["status"] != "offline" {
		t.Errorf("decoded = %v", decoded)
	}
	if decoded["error"] != "Connection timeout after 5s" {
		t.Errorf("error = %v", decoded["error"])
	}
	if _, ok := decoded["timestamp"].(string); !ok {
		t.Error("timestamp missing")
	}
}

func TestPublisher_ParsePrintTopic(t *testing.T) {
	cfg := testConfig("b")
	cfg.Selector = "row4"
	pub := NewPublisher(cfg, "lab")

	tests := []struct {
		topic string
		want  string
		ok    bool
	}{
		{"lab/row4/printers/zebra-1/print", "zebra-1", true},
		{"lab/printers/zebra-1/print", "", false},
		{"lab/row4/printers/zebra-1/print/response", "", false},
		{"lab/row4/printers//print", "", false},
		{"lab/row4/printers/a/b/print", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := pub.parsePrintTopic(tt.topic)
			if got != tt.want || ok != tt.ok {
				t.Errorf("parsePrintTopic(%q) = %q, %v", tt.topic, got, ok)
			}
		})
	}
}

func TestPublisher_HandlePrint(t *testing.T) {
	pub := NewPublisher(testConfig("b"), "lab")
	req := PrintRequest{RequestID: "r1", Kind: "cable", Object: json.RawMessage(`{"id":7}`), Quantity: 2}

	t.Run("no handler", func(t *testing.T) {
		resp := pub.handlePrint("zebra", req, nil)
		if resp.Success || resp.Error != "no print handler configured" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("missing object", func(t *testing.T) {
		called := false
		resp := pub.handlePrint("zebra", PrintRequest{Kind: "cable"}, func(string, PrintRequest) (string, error) {
			called = true
			return "", nil
		})
		if resp.Success || called {
			t.Errorf("resp = %+v, handler called = %v", resp, called)
		}
	})

	t.Run("success", func(t *testing.T) {
		var gotPrinter string
		var gotReq PrintRequest
		resp := pub.handlePrint("zebra", req, func(printer string, r PrintRequest) (string, error) {
			gotPrinter, gotReq = printer, r
			return "01JOB", nil
		})
		if !resp.Success || resp.JobID != "01JOB" || resp.RequestID != "r1" || resp.Printer != "zebra" {
			t.Errorf("resp = %+v", resp)
		}
		if gotPrinter != "zebra" || gotReq.Quantity != 2 || string(gotReq.Object) != `{"id":7}` {
			t.Errorf("handler got %q, %+v", gotPrinter, gotReq)
		}
	})

	t.Run("handler error", func(t *testing.T) {
		resp := pub.handlePrint("zebra", req, func(string, PrintRequest) (string, error) {
			return "", errors.New("Printer 'zebra' is not active")
		})
		if resp.Success || resp.Error != "Printer 'zebra' is not active" {
			t.Errorf("resp = %+v", resp)
		}
	})
}

func TestPublisher_HandlePrintMessageQueues(t *testing.T) {
	pub := NewPublisher(testConfig("b"), "lab")
	pub.SetPrintHandler(func(string, PrintRequest) (string, error) { return "x", nil })

	pub.handlePrintMessage(nil, &fakeMessage{
		topic:   "lab/printers/zebra/print",
		payload: []byte(`{"kind":"device","object":{"id":3,"name":"sw1"},"quantity":1}`),
	})
	// Topics outside the print tree are ignored.
	pub.handlePrintMessage(nil, &fakeMessage{topic: "lab/printers/zebra/jobs", payload: []byte(`{}`)})

	if len(pub.printQueue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(pub.printQueue))
	}
	job := <-pub.printQueue
	if job.printer != "zebra" || job.request.Kind != "device" || job.handler == nil {
		t.Errorf("job = %+v", job)
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]config.MQTTConfig{*testConfig("b2"), *testConfig("b1")}, "lab")

	list := m.List()
	if len(list) != 2 || list[0].Name() != "b1" || list[1].Name() != "b2" {
		t.Fatalf("List() = %v", list)
	}
	if m.Get("b1") == nil || m.Get("missing") != nil {
		t.Error("Get() mismatch")
	}

	m.SetPrintHandler(func(string, PrintRequest) (string, error) { return "", nil })
	for _, pub := range m.List() {
		if pub.printHandler == nil {
			t.Errorf("%s has no print handler", pub.Name())
		}
	}

	// Publishers added later inherit the handler.
	m.Add(NewPublisher(testConfig("b3"), "lab"))
	if m.Get("b3").printHandler == nil {
		t.Error("late publisher has no print handler")
	}

	if started := m.StartAll(); started != 0 {
		t.Errorf("StartAll() = %d for disabled publishers", started)
	}
	if m.AnyRunning() {
		t.Error("AnyRunning() = true")
	}
	// Nothing is running, so these are no-ops.
	m.PublishJob("zebra", []byte(`{}`))
	m.PublishStatus("zebra", true, "online", "")

	m.Remove("b1")
	if m.Get("b1") != nil {
		t.Error("b1 still present after Remove")
	}
	m.StopAll()
}
