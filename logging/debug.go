package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const timeLayout = "2006-01-02 15:04:05.000"

// maxDumpBytes caps how much of one payload is written to the debug log.
const maxDumpBytes = 4096

// DebugLogger writes verbose protocol traces to a dedicated debug.log file:
// the ZPL sent to printers, host status replies, broker publishes and
// preview backend calls.
type DebugLogger struct {
	file    *os.File
	mu      sync.Mutex
	closed  bool
	filters map[string]bool // empty = log all
}

var (
	globalDebugLogger *DebugLogger
	globalDebugMu     sync.RWMutex
)

var knownProtocols = []string{
	"printer", "printer/status",
	"zpl",
	"jobs",
	"preview",
	"mqtt",
	"kafka",
	"valkey",
	"push",
	"api",
	"engine",
	"debug",
}

// filterAliases expand one filter name into several protocols.
var filterAliases = map[string][]string{
	"printer": {"printer/status"},
	"jobs":    {"zpl"},
	"brokers": {"mqtt", "kafka", "valkey", "push"},
}

// KnownProtocols returns the protocol names accepted by SetFilter.
func KnownProtocols() []string {
	out := make([]string, len(knownProtocols))
	copy(out, knownProtocols)
	return out
}

func isKnownProtocol(p string) bool {
	if _, ok := filterAliases[p]; ok {
		return true
	}
	for _, k := range knownProtocols {
		if k == p {
			return true
		}
	}
	return false
}

// NewDebugLogger creates a debug logger writing to path. The file is
// truncated for each session.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	logger := &DebugLogger{
		file:    file,
		filters: make(map[string]bool),
	}
	logger.Log("debug", "Debug logging started - %s", time.Now().Format(time.RFC3339))
	return logger, nil
}

// SetFilter restricts logging to a comma-separated list of protocols, matched
// case-insensitively. "printer" includes printer/status, "jobs" includes zpl
// and "brokers" selects every broker. An empty filter logs everything.
// Names that match no protocol are returned so the caller can warn about them.
func (l *DebugLogger) SetFilter(filter string) (unknown []string) {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters = make(map[string]bool)
	for _, p := range strings.Split(filter, ",") {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if !isKnownProtocol(p) {
			unknown = append(unknown, p)
			continue
		}
		l.filters[p] = true
		for _, extra := range filterAliases[p] {
			l.filters[extra] = true
		}
	}

	if len(l.filters) > 0 {
		names := make([]string, 0, len(l.filters))
		for p := range l.filters {
			names = append(names, p)
		}
		sort.Strings(names)
		l.writeLocked("debug", "Filtering enabled for protocols: "+strings.Join(names, ", "))
	}
	return unknown
}

// shouldLog reports whether protocol passes the filter. Caller holds l.mu.
func (l *DebugLogger) shouldLog(protocol string) bool {
	if len(l.filters) == 0 {
		return true
	}
	p := strings.ToLower(protocol)
	return p == "debug" || l.filters[p]
}

// writeLocked appends one timestamped entry. Caller holds l.mu.
func (l *DebugLogger) writeLocked(protocol, msg string) {
	fmt.Fprintf(l.file, "%s [%s] %s\n", time.Now().Format(timeLayout), protocol, msg)
}

// SetGlobalDebugLogger sets the global debug logger instance.
func SetGlobalDebugLogger(logger *DebugLogger) {
	globalDebugMu.Lock()
	defer globalDebugMu.Unlock()
	globalDebugLogger = logger
}

// GetGlobalDebugLogger returns the global debug logger instance.
func GetGlobalDebugLogger() *DebugLogger {
	globalDebugMu.RLock()
	defer globalDebugMu.RUnlock()
	return globalDebugLogger
}

// Log writes a formatted message with timestamp and protocol prefix.
func (l *DebugLogger) Log(protocol, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(protocol) {
		return
	}
	l.writeLocked(protocol, fmt.Sprintf(format, args...))
}

// LogTX logs bytes written to a peer.
func (l *DebugLogger) LogTX(protocol string, data []byte) {
	l.logPayload(protocol, "TX", data)
}

// LogRX logs bytes read from a peer.
func (l *DebugLogger) LogRX(protocol string, data []byte) {
	l.logPayload(protocol, "RX", data)
}

func (l *DebugLogger) logPayload(protocol, direction string, data []byte) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(protocol) {
		return
	}
	l.writeLocked(protocol, fmt.Sprintf("%s (%d bytes):", direction, len(data)))
	fmt.Fprintln(l.file, dumpPayload(data))
}

// LogConnect logs a connection attempt.
func (l *DebugLogger) LogConnect(protocol, address string) {
	l.Log(protocol, "CONNECT to %s", address)
}

// LogConnectSuccess logs a successful connection.
func (l *DebugLogger) LogConnectSuccess(protocol, address, details string) {
	l.Log(protocol, "CONNECTED to %s - %s", address, details)
}

// LogConnectError logs a connection failure.
func (l *DebugLogger) LogConnectError(protocol, address string, err error) {
	l.Log(protocol, "CONNECT FAILED to %s: %v", address, err)
}

// LogDisconnect logs a disconnection.
func (l *DebugLogger) LogDisconnect(protocol, address, reason string) {
	l.Log(protocol, "DISCONNECT from %s: %s", address, reason)
}

// Close writes the footer and closes the file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.writeLocked("debug", "Debug logging ended")
	return l.file.Close()
}

// dumpPayload renders a payload for the log. ZPL and host status replies are
// text, so they are written as indented lines with control bytes shown as
// <STX>, <ETX> and so on. Anything else falls back to a hex dump:
//
//	0000: 00 01 FF 10 ...  ....
func dumpPayload(data []byte) string {
	if len(data) == 0 {
		return "    (empty)"
	}

	var suffix string
	if len(data) > maxDumpBytes {
		suffix = fmt.Sprintf("\n    ... %d more bytes", len(data)-maxDumpBytes)
		data = data[:maxDumpBytes]
	}

	if text, ok := textDump(data); ok {
		return text + suffix
	}
	return hexDump(data) + suffix
}

var controlNames = map[byte]string{
	0x02: "<STX>",
	0x03: "<ETX>",
	0x10: "<DLE>",
	0x1E: "<RS>",
}

// textDump writes printable payloads line by line. It reports false when the
// data is not valid UTF-8 or holds control bytes other than the named ones.
func textDump(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString("    ")
	for _, b := range data {
		switch {
		case b == '\n':
			sb.WriteString("\n    ")
		case b == '\r':
		case b == '\t' || b >= 0x20:
			sb.WriteByte(b)
		default:
			name, ok := controlNames[b]
			if !ok {
				return "", false
			}
			sb.WriteString(name)
		}
	}
	return strings.TrimRight(sb.String(), " \n"), true
}

// hexDump returns offset, hex bytes and ASCII columns, 16 bytes per row.
func hexDump(data []byte) string {
	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[offset:end]

		fmt.Fprintf(&sb, "    %04X: ", offset)
		for i := 0; i < 16; i++ {
			if i == 8 {
				sb.WriteByte(' ')
			}
			if i < len(row) {
				fmt.Fprintf(&sb, "%02X ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteByte(' ')
		for _, b := range row {
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Package-level helpers write to the global logger and are no-ops without one.

// DebugLog logs a message if debug logging is enabled.
func DebugLog(protocol, format string, args ...interface{}) {
	GetGlobalDebugLogger().Log(protocol, format, args...)
}

// DebugTX logs transmitted data if debug logging is enabled.
func DebugTX(protocol string, data []byte) {
	GetGlobalDebugLogger().LogTX(protocol, data)
}

// DebugRX logs received data if debug logging is enabled.
func DebugRX(protocol string, data []byte) {
	GetGlobalDebugLogger().LogRX(protocol, data)
}

// DebugConnect logs a connection attempt if debug logging is enabled.
func DebugConnect(protocol, address string) {
	GetGlobalDebugLogger().LogConnect(protocol, address)
}

// DebugConnectSuccess logs a successful connection if debug logging is enabled.
func DebugConnectSuccess(protocol, address, details string) {
	GetGlobalDebugLogger().LogConnectSuccess(protocol, address, details)
}

// DebugConnectError logs a connection error if debug logging is enabled.
func DebugConnectError(protocol, address string, err error) {
	GetGlobalDebugLogger().LogConnectError(protocol, address, err)
}

// DebugDisconnect logs a disconnection if debug logging is enabled.
func DebugDisconnect(protocol, address, reason string) {
	GetGlobalDebugLogger().LogDisconnect(protocol, address, reason)
}
