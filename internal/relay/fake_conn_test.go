package relay

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/chatrelay/internal/config"
	"github.com/cory-johannsen/chatrelay/internal/protocol"
	"github.com/cory-johannsen/chatrelay/internal/session"
)

var errUnreachable = errors.New("destination unreachable")

type delivery struct {
	to    netip.AddrPort
	frame protocol.Frame
}

type datagram struct {
	data []byte
	from netip.AddrPort
}

// fakeConn records writes and serves queued datagrams to the read loop.
type fakeConn struct {
	mu     sync.Mutex
	sent   []delivery
	failTo map[netip.AddrPort]bool

	inbound   chan datagram
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		failTo:  make(map[netip.AddrPort]bool),
		inbound: make(chan datagram, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error) {
	select {
	case d := <-c.inbound:
		return copy(b, d.data), d.from, nil
	case <-c.closed:
		return 0, netip.AddrPort{}, net.ErrClosed
	}
}

func (c *fakeConn) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTo[addr] {
		return 0, errUnreachable
	}
	f, err := protocol.Decode(b)
	if err != nil {
		return 0, err
	}
	if len(b) != protocol.FrameSize {
		return 0, errors.New("outbound frame has wrong size")
	}
	c.sent = append(c.sent, delivery{to: addr, frame: f})
	return len(b), nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliveries() []delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]delivery, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// client returns the endpoint of test client n.
func client(n int) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(40000+n))
}

func encode(t testing.TB, f protocol.Frame) []byte {
	t.Helper()
	b, err := protocol.Encode(f)
	require.NoError(t, err)
	return b
}

type harness struct {
	relay    *Relay
	conn     *fakeConn
	registry *session.Registry
	logs     *observer.ObservedLogs
}

func newHarness(t testing.TB, debug bool) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	reg := session.NewRegistry(session.DefaultCapacity)
	r := New(config.RelayConfig{Debug: debug, MaxDatagram: 1024}, reg, zap.New(core))
	conn := newFakeConn()
	r.conn = conn
	return &harness{relay: r, conn: conn, registry: reg, logs: logs}
}

// join registers client n and returns its assigned id.
func (h *harness) join(t testing.TB, n int, name string) int32 {
	t.Helper()
	res, err := h.relay.Handle(encode(t, protocol.Frame{Field1: "JOIN", Field2: name}), client(n))
	require.NoError(t, err)
	return res.SessionID
}
