package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	return string(content)
}

func TestDebugLogger_Filter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}

	logger.SetFilter("printer")
	logger.Log("printer", "CONNECT to 10.0.0.5:9100")
	logger.Log("printer/status", "~HS response parsed")
	logger.Log("mqtt", "published job event")
	logger.Close()

	str := readLog(t, path)
	if !strings.Contains(str, "[printer] CONNECT to 10.0.0.5:9100") {
		t.Errorf("missing printer line: %s", str)
	}
	if !strings.Contains(str, "[printer/status]") {
		t.Errorf("printer filter should include printer/status: %s", str)
	}
	if strings.Contains(str, "published job event") {
		t.Errorf("mqtt line should be filtered: %s", str)
	}
	if !strings.Contains(str, "Debug logging ended") {
		t.Error("missing footer")
	}
}

func TestDebugLogger_BrokersAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	logger.SetFilter("brokers")
	for _, p := range []string{"mqtt", "kafka", "valkey", "push", "printer"} {
		logger.Log(p, "line from %s", p)
	}
	logger.Close()

	str := readLog(t, path)
	for _, p := range []string{"mqtt", "kafka", "valkey", "push"} {
		if !strings.Contains(str, "line from "+p) {
			t.Errorf("missing %s line", p)
		}
	}
	if strings.Contains(str, "line from printer") {
		t.Error("printer line should be filtered")
	}
}

func TestDebugLogger_Payloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	logger.LogTX("printer", []byte("^XA^FO20,20^FDCBL-042^FS^XZ"))
	logger.LogRX("printer/status", []byte("\x02030,0,0,0245,000,0,0,0,000,0,0,0\x03\r\n"))
	logger.LogRX("printer", []byte{0x00, 0x01, 0xFF, 'A'})
	logger.LogRX("printer", nil)
	logger.Close()

	str := readLog(t, path)
	tests := []struct {
		name string
		want string
	}{
		{"tx header", "TX (27 bytes):"},
		{"zpl as text", "    ^XA^FO20,20^FDCBL-042^FS^XZ"},
		{"status framing", "<STX>030,0,0,0245,000,0,0,0,000,0,0,0<ETX>"},
		{"binary as hex", "0000: 00 01 FF 41"},
		{"empty", "(empty)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(str, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, str)
			}
		})
	}
}

func TestDumpPayload_Truncates(t *testing.T) {
	data := []byte(strings.Repeat("^FDx^FS", 1000))
	out := dumpPayload(data)
	if !strings.HasSuffix(out, "... 2904 more bytes") {
		t.Errorf("dump tail = %q", out[len(out)-40:])
	}
}

func TestDebugLogger_UnknownFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	defer logger.Close()

	unknown := logger.SetFilter("Printer, plc ,brokers")
	if len(unknown) != 1 || unknown[0] != "plc" {
		t.Errorf("unknown = %v, want [plc]", unknown)
	}
}

func TestGlobalDebugLogger(t *testing.T) {
	// Helpers are no-ops without a logger.
	SetGlobalDebugLogger(nil)
	DebugLog("printer", "nothing")
	DebugTX("printer", []byte("x"))

	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatalf("NewDebugLogger failed: %v", err)
	}
	SetGlobalDebugLogger(logger)
	defer SetGlobalDebugLogger(nil)

	DebugConnect("printer", "zebra:9100")
	DebugConnectError("printer", "zebra:9100", os.ErrDeadlineExceeded)
	DebugDisconnect("printer", "zebra:9100", "batch complete")
	logger.Close()

	str := readLog(t, path)
	for _, want := range []string{"CONNECT to zebra:9100", "CONNECT FAILED to zebra:9100", "DISCONNECT from zebra:9100: batch complete"} {
		if !strings.Contains(str, want) {
			t.Errorf("missing %q in %s", want, str)
		}
	}
}

func TestKnownProtocols_IsCopy(t *testing.T) {
	p := KnownProtocols()
	if len(p) == 0 || p[0] != "printer" {
		t.Fatalf("KnownProtocols() = %v", p)
	}
	p[0] = "changed"
	if KnownProtocols()[0] != "printer" {
		t.Error("KnownProtocols returned shared slice")
	}
}
