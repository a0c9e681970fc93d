package namespace

import "testing"

func TestBuilder(t *testing.T) {
	tests := []struct {
		name string
		got  func(b *Builder) string
		want string
		sel  string
	}{
		{"mqtt job", func(b *Builder) string { return b.MQTTJobTopic("zebra-1") }, "lab/printers/zebra-1/jobs", ""},
		{"mqtt job selector", func(b *Builder) string { return b.MQTTJobTopic("zebra-1") }, "lab/row4/printers/zebra-1/jobs", "row4"},
		{"mqtt status", func(b *Builder) string { return b.MQTTStatusTopic("zebra-1") }, "lab/printers/zebra-1/status", ""},
		{"mqtt batch", func(b *Builder) string { return b.MQTTBatchTopic() }, "lab/batches", ""},
		{"mqtt event", func(b *Builder) string { return b.MQTTEventTopic("template_saved") }, "lab/events/template_saved", ""},
		{"mqtt print", func(b *Builder) string { return b.MQTTPrintTopic("zebra-1") }, "lab/printers/zebra-1/print", ""},
		{"mqtt print response", func(b *Builder) string { return b.MQTTPrintResponseTopic("zebra-1") }, "lab/row4/printers/zebra-1/print/response", "row4"},
		{"valkey job", func(b *Builder) string { return b.ValkeyJobKey("01J") }, "lab:jobs:01J", ""},
		{"valkey recent", func(b *Builder) string { return b.ValkeyRecentJobsKey() }, "lab:row4:jobs:recent", "row4"},
		{"valkey status", func(b *Builder) string { return b.ValkeyStatusKey("zebra-1") }, "lab:printers:zebra-1:status", ""},
		{"valkey jobs channel", func(b *Builder) string { return b.ValkeyJobsChannel("zebra-1") }, "lab:printers:zebra-1:jobs", ""},
		{"valkey all jobs", func(b *Builder) string { return b.ValkeyAllJobsChannel() }, "lab:_all:jobs", ""},
		{"valkey status channel", func(b *Builder) string { return b.ValkeyStatusChannel() }, "lab:_all:status", ""},
		{"valkey batches", func(b *Builder) string { return b.ValkeyBatchChannel() }, "lab:_all:batches", ""},
		{"valkey print queue", func(b *Builder) string { return b.ValkeyPrintQueueKey() }, "lab:row4:print:queue", "row4"},
		{"valkey print responses", func(b *Builder) string { return b.ValkeyPrintResponseChannel() }, "lab:print:responses", ""},
		{"kafka jobs", func(b *Builder) string { return b.KafkaJobTopic() }, "lab.jobs", ""},
		{"kafka jobs selector", func(b *Builder) string { return b.KafkaJobTopic() }, "lab-row4.jobs", "row4"},
		{"kafka status", func(b *Builder) string { return b.KafkaStatusTopic() }, "lab.status", ""},
		{"kafka batches", func(b *Builder) string { return b.KafkaBatchTopic() }, "lab.batches", ""},
		{"kafka print", func(b *Builder) string { return b.KafkaPrintTopic() }, "lab-row4.print", "row4"},
		{"kafka print responses", func(b *Builder) string { return b.KafkaPrintResponseTopic() }, "lab.print.responses", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(New("lab", tt.sel)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuilderBase(t *testing.T) {
	if got := New("lab", "").MQTTBase(); got != "lab" {
		t.Errorf("MQTTBase() = %q", got)
	}
	if got := New("lab", "a").ValkeyInstance(); got != "lab:a" {
		t.Errorf("ValkeyInstance() = %q", got)
	}
}
