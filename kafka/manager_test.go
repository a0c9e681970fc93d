package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go/sasl/plain"
)

// connectedManager returns a manager whose producers report connected without
// a broker. Workers are not started, so queued jobs stay in publishQueue.
func connectedManager(cfgs ...Config) *Manager {
	m := NewManager("lab")
	m.LoadFromConfigs(cfgs)
	for _, p := range m.producers {
		p.status = StatusConnected
	}
	return m
}

func drain(m *Manager) []publishJob {
	var jobs []publishJob
	for {
		select {
		case j := <-m.publishQueue:
			jobs = append(jobs, j)
		default:
			return jobs
		}
	}
}

func TestManager_PublishJob(t *testing.T) {
	a := DefaultConfig("a")
	a.PublishChanges = true
	b := DefaultConfig("b")
	b.PublishChanges = true
	b.Selector = "row4"
	quiet := DefaultConfig("quiet")

	m := connectedManager(a, b, quiet)
	m.PublishJob("zebra-1", []byte(`{"print_job_id":"01J"}`))

	jobs := drain(m)
	if len(jobs) != 2 {
		t.Fatalf("queued %d jobs, want 2", len(jobs))
	}
	topics := map[string]bool{}
	for _, j := range jobs {
		topics[j.topic] = true
		if string(j.key) != "zebra-1" || j.msgType != TypeJob {
			t.Errorf("key = %q, type = %q", j.key, j.msgType)
		}
		if j.producer.config.Name == "quiet" {
			t.Error("cluster without PublishChanges received a job")
		}
	}
	if !topics["lab.jobs"] || !topics["lab-row4.jobs"] {
		t.Errorf("topics = %v", topics)
	}
}

func TestManager_PublishStatus(t *testing.T) {
	cfg := DefaultConfig("a")
	cfg.PublishChanges = true
	m := connectedManager(cfg)

	m.PublishStatus("zebra-1", false, "offline", "Connection refused")
	jobs := drain(m)
	if len(jobs) != 1 || jobs[0].topic != "lab.status" {
		t.Fatalf("jobs = %+v", jobs)
	}

	var msg StatusMessage
	if err := json.Unmarshal(jobs[0].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Printer != "zebra-1" || msg.Online || msg.Status != "offline" || msg.Error != "Connection refused" {
		t.Errorf("msg = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", msg.Timestamp, err)
	}
}

func TestManager_PublishSkipsDisconnected(t *testing.T) {
	cfg := DefaultConfig("a")
	cfg.PublishChanges = true
	m := NewManager("lab")
	m.AddCluster(&cfg)

	m.PublishJob("zebra", []byte(`{}`))
	m.PublishBatch("01B", []byte(`{}`))
	if n := len(drain(m)); n != 0 {
		t.Errorf("queued %d jobs for a disconnected cluster", n)
	}
	if m.AnyPublishing() {
		t.Error("AnyPublishing() = true")
	}
}

func TestManager_QueueFullDrops(t *testing.T) {
	cfg := DefaultConfig("a")
	cfg.PublishChanges = true
	m := connectedManager(cfg)

	for i := 0; i < MaxPublishQueueSize; i++ {
		m.PublishBatch("b", []byte(`{}`))
	}
	if m.enqueue(publishJob{producer: m.GetProducer("a"), topic: "lab.batches"}) {
		t.Error("enqueue on a full queue succeeded")
	}
	if n := len(drain(m)); n != MaxPublishQueueSize {
		t.Errorf("queued %d, want %d", n, MaxPublishQueueSize)
	}
}

func TestManager_Clusters(t *testing.T) {
	m := NewManager("lab")
	m.LoadFromConfigs([]Config{DefaultConfig("b"), DefaultConfig("a")})
	dup := DefaultConfig("a")
	dup.Brokers = []string{"other:9092"}
	m.AddCluster(&dup)

	if got := m.ListClusters(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("ListClusters() = %v", got)
	}
	if m.GetProducer("a").config.Brokers[0] != "localhost:9092" {
		t.Error("AddCluster replaced an existing cluster")
	}
	if err := m.Connect("missing"); err == nil {
		t.Error("Connect(missing) succeeded")
	}
	if _, err := m.GetClusterStatus("missing"); err == nil {
		t.Error("GetClusterStatus(missing) succeeded")
	}

	m.RemoveCluster("a")
	if m.GetProducer("a") != nil {
		t.Error("cluster a still present")
	}
	m.StopAll()
}

func TestConnectionStatus_String(t *testing.T) {
	tests := map[ConnectionStatus]string{
		StatusDisconnected:   "Disconnected",
		StatusConnecting:     "Connecting",
		StatusConnected:      "Connected",
		StatusError:          "Error",
		ConnectionStatus(42): "Unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig("a")
	if cfg.GetConsumerGroup("lab") != "zplink-lab-print" {
		t.Errorf("GetConsumerGroup() = %q", cfg.GetConsumerGroup("lab"))
	}
	cfg.ConsumerGroup = "custom"
	if cfg.GetConsumerGroup("lab") != "custom" {
		t.Errorf("GetConsumerGroup() = %q", cfg.GetConsumerGroup("lab"))
	}
	if cfg.GetRequestMaxAge() != DefaultRequestMaxAge {
		t.Errorf("GetRequestMaxAge() = %v", cfg.GetRequestMaxAge())
	}
	if cfg.GetTLSConfig() != nil {
		t.Error("TLS config without UseTLS")
	}
	cfg.UseTLS, cfg.TLSSkipVerify = true, true
	if tc := cfg.GetTLSConfig(); tc == nil || !tc.InsecureSkipVerify {
		t.Errorf("GetTLSConfig() = %+v", tc)
	}
}

func TestConfig_Mechanism(t *testing.T) {
	cfg := DefaultConfig("a")
	cfg.SASLMechanism = SASLPlain
	if cfg.Mechanism() != nil {
		t.Error("mechanism without username")
	}

	cfg.Username, cfg.Password = "u", "p"
	if m, ok := cfg.Mechanism().(plain.Mechanism); !ok || m.Username != "u" {
		t.Errorf("Mechanism() = %#v", cfg.Mechanism())
	}
	for _, mech := range []SASLMechanism{SASLSCRAMSHA256, SASLSCRAMSHA512} {
		cfg.SASLMechanism = mech
		if cfg.Mechanism() == nil {
			t.Errorf("%s mechanism is nil", mech)
		}
	}
	if d := cfg.Dialer(); d.SASLMechanism == nil {
		t.Error("Dialer() without SASL")
	}
}

func TestConsumer_Process(t *testing.T) {
	cfg := DefaultConfig("a")
	now := time.Now()

	tests := []struct {
		name    string
		handler PrintHandler
		value   string
		sent    time.Time
		ok      bool
		success bool
		skipped bool
		errPart string
	}{
		{name: "bad json", value: `nope`, sent: now, ok: false},
		{
			name:    "expired",
			handler: func(PrintRequest) (string, error) { return "x", nil },
			value:   `{"printer":"zebra","kind":"cable","object":{"id":1}}`,
			sent:    now.Add(-2 * time.Minute),
			ok:      true,
			skipped: true,
			errPart: "request expired",
		},
		{
			name:    "no handler",
			value:   `{"printer":"zebra","kind":"cable","object":{"id":1}}`,
			sent:    now,
			ok:      true,
			errPart: "no print handler configured",
		},
		{
			name:    "missing kind",
			handler: func(PrintRequest) (string, error) { return "x", nil },
			value:   `{"printer":"zebra","object":{"id":1}}`,
			sent:    now,
			ok:      true,
			errPart: "required",
		},
		{
			name:    "handler error",
			handler: func(PrintRequest) (string, error) { return "", errors.New("Template not found") },
			value:   `{"printer":"zebra","kind":"cable","object":{"id":1},"template":"nope"}`,
			sent:    now,
			ok:      true,
			errPart: "Template not found",
		},
		{
			name:    "success",
			handler: func(PrintRequest) (string, error) { return "01JOB", nil },
			value:   `{"request_id":"r1","printer":"zebra","kind":"cable","object":{"id":1}}`,
			sent:    now.Add(-time.Second),
			ok:      true,
			success: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(&cfg, nil, "lab")
			c.SetPrintHandler(tt.handler)

			resp, ok := c.process([]byte(tt.value), tt.sent, now)
			if ok != tt.ok {
				t.Fatalf("process() ok = %v", ok)
			}
			if !ok {
				return
			}
			if resp.Success != tt.success || resp.Skipped != tt.skipped {
				t.Errorf("resp = %+v", resp)
			}
			if tt.errPart != "" && !strings.Contains(resp.Error, tt.errPart) {
				t.Errorf("Error = %q, want %q", resp.Error, tt.errPart)
			}
			if tt.success && resp.JobID != "01JOB" {
				t.Errorf("JobID = %q", resp.JobID)
			}
		})
	}
}

func TestProducer_ConnectAndProduceErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closed := ln.Addr().String()
	ln.Close()

	tests := []struct {
		name    string
		brokers []string
		wantErr string
	}{
		{"no brokers", nil, "no brokers configured"},
		{"unreachable", []string{closed}, closed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("c")
			cfg.Brokers = tt.brokers
			p := NewProducer(&cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := p.Connect(ctx)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Connect() error = %v, want %q", err, tt.wantErr)
			}
			if p.GetStatus() != StatusError {
				t.Errorf("status = %v", p.GetStatus())
			}
			if err := p.Produce(ctx, TypeJob, "lab.jobs", nil, []byte("{}")); err == nil {
				t.Error("Produce on an unconnected producer succeeded")
			}
			if st := p.Stats(); st.Sent != 0 || st.Failed != 0 {
				t.Errorf("stats = %+v", st)
			}
		})
	}
}
