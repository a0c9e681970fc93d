// Package printer talks raw TCP to Zebra ZPL label printers.
package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"zplink/logging"
)

// Connection defaults.
const (
	DefaultPort    = 9100
	DefaultTimeout = 5 * time.Second

	// StatusReadTimeout bounds the wait for a host status response.
	StatusReadTimeout = 2 * time.Second

	// statusBufferSize is the most a status response may carry.
	statusBufferSize = 4096
)

// HostStatusCommand asks the printer for its host status string. It is issued by
// the client itself and is never accepted inside a template.
const HostStatusCommand = "~HS"

// Dialer opens connections to printers. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Result is the outcome of a single printer operation.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	BytesSent int    `json:"bytes_sent"`
}

func failed(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Client sends documents to one printer. Every operation opens its own
// connection and closes it before returning; a Client holds no connection
// between calls and may be used from several goroutines.
type Client struct {
	host    string
	port    int
	timeout time.Duration
	dialer  Dialer
	charset Charset
}

// NewClient creates a client for host:port. A zero port selects DefaultPort and a
// zero timeout selects DefaultTimeout.
func NewClient(host string, port int, timeout time.Duration) *Client {
	if port == 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		host:    host,
		port:    port,
		timeout: timeout,
		dialer:  &net.Dialer{},
		charset: UTF8,
	}
}

// SetDialer replaces the connection factory.
func (c *Client) SetDialer(d Dialer) {
	c.dialer = d
}

// SetCharset sets the wire charset for documents.
func (c *Client) SetCharset(cs Charset) {
	c.charset = cs
}

// Address returns the printer's host:port.
func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Timeout returns the connect and write timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	addr := c.Address()
	logging.DebugConnect("printer", addr)

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		logging.DebugConnectError("printer", addr, err)
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(c.timeout))
	logging.DebugConnectSuccess("printer", addr, fmt.Sprintf("timeout=%s", c.timeout))
	return conn, nil
}

func (c *Client) timeoutMessage() string {
	return fmt.Sprintf("Connection timeout after %s", c.timeout)
}

// socketMessage maps a connection-level failure to its user-facing message.
func (c *Client) socketMessage(err error) string {
	if isTimeout(err) {
		return c.timeoutMessage()
	}
	return fmt.Sprintf("Socket error: %v", err)
}

// TestConnection checks that the printer accepts a TCP connection.
func (c *Client) TestConnection(ctx context.Context) Result {
	conn, err := c.dial(ctx)
	if err != nil {
		if isTimeout(err) {
			return failed(c.timeoutMessage())
		}
		return failed(fmt.Sprintf("Connection failed: %v", err))
	}
	conn.Close()
	logging.DebugDisconnect("printer", c.Address(), "connection test complete")
	return Result{Success: true}
}

// Send writes one document over a new connection. Empty documents are rejected
// without connecting.
func (c *Client) Send(ctx context.Context, doc string) Result {
	if doc == "" {
		return failed("Empty ZPL content")
	}
	data, err := c.charset.Encode(doc)
	if err != nil {
		return failed(fmt.Sprintf("Encoding error: %v", err))
	}

	conn, err := c.dial(ctx)
	if err != nil {
		msg := c.socketMessage(err)
		logging.DebugLog("printer", "%s - %s", c.Address(), msg)
		return failed(msg)
	}
	defer conn.Close()

	n, err := conn.Write(data)
	logging.DebugTX("printer", data[:n])
	if err != nil {
		msg := c.socketMessage(err)
		logging.DebugLog("printer", "%s - %s", c.Address(), msg)
		return Result{Success: false, Error: msg, BytesSent: n}
	}
	logging.DebugLog("printer", "sent %d bytes to %s", n, c.Address())
	return Result{Success: true, BytesSent: n}
}

// SendBatch writes several documents over one connection, in order. The
// result slice always has one entry per document.
//
// A document that is empty or cannot be encoded fails on its own and the batch
// continues. A connection failure (dial error, timeout, reset, broken pipe)
// fails the current document and every document after it with the same
// message; documents already written keep their success.
func (c *Client) SendBatch(ctx context.Context, docs []string) []Result {
	results := make([]Result, 0, len(docs))
	if len(docs) == 0 {
		return results
	}

	fillRemaining := func(msg string) []Result {
		for len(results) < len(docs) {
			results = append(results, failed(msg))
		}
		return results
	}

	conn, err := c.dial(ctx)
	if err != nil {
		msg := c.socketMessage(err)
		logging.DebugLog("printer", "%s - batch of %d not sent: %s", c.Address(), len(docs), msg)
		return fillRemaining(msg)
	}
	defer conn.Close()

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return fillRemaining(c.socketMessage(err))
		}
		if doc == "" {
			results = append(results, failed("Empty ZPL content"))
			continue
		}
		data, err := c.charset.Encode(doc)
		if err != nil {
			results = append(results, failed(fmt.Sprintf("Encoding error: %v", err)))
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(c.timeout))
		n, err := conn.Write(data)
		logging.DebugTX("printer", data[:n])
		if err != nil {
			msg := c.socketMessage(err)
			logging.DebugLog("printer", "%s - batch failed at document %d of %d: %s", c.Address(), i+1, len(docs), msg)
			return fillRemaining(msg)
		}
		results = append(results, Result{Success: true, BytesSent: n})
	}

	logging.DebugDisconnect("printer", c.Address(), fmt.Sprintf("batch of %d complete", len(docs)))
	return results
}

// GetStatus queries the host status. It returns nil when the printer cannot be
// reached or sends nothing back; status is advisory and never an error.
func (c *Client) GetStatus(ctx context.Context) *Status {
	conn, err := c.dial(ctx)
	if err != nil {
		logging.DebugLog("printer/status", "status query to %s failed: %v", c.Address(), err)
		return nil
	}
	defer conn.Close()

	cmd := []byte(HostStatusCommand)
	if _, err := conn.Write(cmd); err != nil {
		logging.DebugLog("printer/status", "status query to %s failed: %v", c.Address(), err)
		return nil
	}
	logging.DebugTX("printer/status", cmd)

	conn.SetReadDeadline(time.Now().Add(StatusReadTimeout))
	buf := make([]byte, statusBufferSize)
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil || completeStatus(buf[:total]) {
			break
		}
	}
	if total == 0 {
		logging.DebugLog("printer/status", "no status response from %s", c.Address())
		return nil
	}
	logging.DebugRX("printer/status", buf[:total])
	return ParseStatus(string(buf[:total]))
}

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
