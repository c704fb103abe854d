package testutil

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

// ConsoleClient is a minimal line-oriented TCP client for testing the
// operator console without a real terminal attached.
type ConsoleClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// NewConsoleClient dials the console at addr and returns a connected client.
func NewConsoleClient(t *testing.T, addr string) *ConsoleClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", addr, err)
	}

	return &ConsoleClient{
		t:      t,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// ReadUntil reads from the connection until the accumulated output contains
// the given substring, or the timeout expires. Returns everything read.
func (c *ConsoleClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()

	deadline := time.Now().Add(timeout)
	var sb strings.Builder

	for time.Now().Before(deadline) {
		if err := c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			c.t.Fatalf("failed to set read deadline: %v", err)
		}

		buf := make([]byte, 4096)
		n, err := c.reader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
			if strings.Contains(sb.String(), substr) {
				return sb.String()
			}
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			c.t.Fatalf("read error while waiting for %q: %v (got so far: %q)", substr, err, sb.String())
		}
	}

	c.t.Fatalf("timed out waiting for %q, got: %q", substr, sb.String())
	return ""
}

// Send writes a line to the connection, appending CRLF.
func (c *ConsoleClient) Send(line string) {
	c.t.Helper()

	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		c.t.Fatalf("failed to set write deadline: %v", err)
	}
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		c.t.Fatalf("failed to send %q: %v", line, err)
	}
}

// Close closes the underlying connection.
func (c *ConsoleClient) Close() {
	_ = c.conn.Close()
}
