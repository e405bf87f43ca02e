// Package testutil provides test clients for exercising a running relay.
package testutil

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/cory-johannsen/chatrelay/internal/protocol"
)

// ChatClient is a UDP chat client for integration testing.
type ChatClient struct {
	conn *net.UDPConn
	t    *testing.T
	// ID is the session id assigned by the last JOIN addressed to this client.
	ID int32
}

// NewChatClient opens a UDP socket connected to the relay at addr.
//
// Precondition: addr must be a valid "host:port" string with a serving relay.
// Postcondition: Returns a ChatClient or fails the test.
func NewChatClient(t *testing.T, addr string) *ChatClient {
	t.Helper()
	start := time.Now()

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatalf("resolving %s: %v", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", addr, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("chat client %s → %s [%s]", conn.LocalAddr(), addr, time.Since(start))
	return &ChatClient{conn: conn, t: t}
}

// Send encodes f and writes it to the relay.
func (c *ChatClient) Send(f protocol.Frame) {
	c.t.Helper()
	b, err := protocol.Encode(f)
	if err != nil {
		c.t.Fatalf("encoding %v: %v", f, err)
	}
	c.SendRaw(b)
}

// SendRaw writes b to the relay unmodified.
func (c *ChatClient) SendRaw(b []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("sending %d bytes: %v", len(b), err)
	}
}

// Receive reads the next frame or fails the test after timeout.
func (c *ChatClient) Receive(timeout time.Duration) protocol.Frame {
	c.t.Helper()
	f, err := c.read(timeout)
	if err != nil {
		c.t.Fatalf("receiving frame: %v", err)
	}
	return f
}

// Join sends a JOIN carrying name and waits for the relay's JOIN addressed
// back to this client, recording the assigned id.
func (c *ChatClient) Join(name string, timeout time.Duration) int32 {
	c.t.Helper()
	c.Send(protocol.Frame{Field1: protocol.CommandJoin, Field2: name})
	f := c.Receive(timeout)
	if f.Field1 != protocol.CommandJoin || f.Field2 != name {
		c.t.Fatalf("expected JOIN for %q, got %v", name, f)
	}
	c.ID = f.ID
	return f.ID
}

// ExpectSilence fails the test if a frame arrives within d.
func (c *ChatClient) ExpectSilence(d time.Duration) {
	c.t.Helper()
	f, err := c.read(d)
	if err == nil {
		c.t.Fatalf("expected no frame, got %v", f)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("expected read timeout, got %v", err)
	}
}

func (c *ChatClient) read(timeout time.Duration) (protocol.Frame, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 2*protocol.FrameSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return protocol.Frame{}, err
	}
	return protocol.Decode(buf[:n])
}
