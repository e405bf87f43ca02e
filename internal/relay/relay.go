// Package relay runs the chat relay loop: it receives frames on one UDP
// socket, drives the session registry, and fans frames out to sessions.
package relay

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/config"
	"github.com/cory-johannsen/chatrelay/internal/protocol"
	"github.com/cory-johannsen/chatrelay/internal/session"
)

// errNotServing is logged for frames handled while no socket is bound.
var errNotServing = errors.New("relay: no socket bound")

const (
	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

// PacketConn is the datagram transport the relay reads from and writes to.
// *net.UDPConn satisfies it.
type PacketConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// Relay is the single-consumer message loop. Handle is not safe for
// concurrent use; Serve calls it from one goroutine.
type Relay struct {
	cfg      config.RelayConfig
	registry *session.Registry
	logger   *zap.Logger

	conn    PacketConn
	sendBuf []byte

	mu      sync.Mutex
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a Relay bound to registry.
//
// Precondition: registry and logger must be non-nil.
// Postcondition: Returns a Relay ready to be started with ListenAndServe or Serve.
func New(cfg config.RelayConfig, registry *session.Registry, logger *zap.Logger) *Relay {
	if cfg.MaxDatagram < protocol.FrameSize {
		cfg.MaxDatagram = protocol.FrameSize
	}
	return &Relay{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		sendBuf:  make([]byte, protocol.FrameSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ListenAndServe binds the configured UDP address and serves until Stop is called.
//
// Postcondition: The socket is closed when this method returns.
func (r *Relay) ListenAndServe() error {
	addr, err := net.ResolveUDPAddr("udp", r.cfg.Addr())
	if err != nil {
		return fmt.Errorf("resolving %s: %w", r.cfg.Addr(), err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", r.cfg.Addr(), err)
	}
	return r.Serve(conn)
}

// Serve runs the receive loop on conn until Stop is called or conn fails.
// Each datagram is processed to completion before the next is read.
//
// Precondition: Serve must not already be running.
// Postcondition: Returns nil after Stop, or a wrapped transport error.
func (r *Relay) Serve(conn PacketConn) error {
	start := time.Now()

	r.mu.Lock()
	select {
	case <-r.quit:
		r.mu.Unlock()
		_ = conn.Close()
		return nil
	default:
	}
	r.conn = conn
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		_ = conn.Close()
		close(r.done)
	}()

	r.logger.Info("relay listening",
		zap.String("addr", conn.LocalAddr().String()),
		zap.Int("capacity", r.registry.Capacity()),
		zap.Bool("debug", r.cfg.Debug),
		zap.Duration("startup", time.Since(start)),
	)

	buf := make([]byte, r.cfg.MaxDatagram)
	var backoff time.Duration
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-r.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("reading datagram: %w", err)
			}
			backoff = nextBackoff(backoff)
			r.logger.Error("reading datagram", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-r.quit:
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		_, _ = r.Handle(buf[:n], from)
	}
}

// nextBackoff doubles d within [minReadBackoff, maxReadBackoff].
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minReadBackoff
	}
	return min(2*d, maxReadBackoff)
}

// currentConn returns the socket Serve is bound to, or nil.
func (r *Relay) currentConn() PacketConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// Stop closes the socket and waits for Serve to return. It is safe to call
// more than once and before Serve.
func (r *Relay) Stop() {
	r.mu.Lock()
	select {
	case <-r.quit:
		r.mu.Unlock()
		return
	default:
	}
	close(r.quit)
	conn, running := r.conn, r.running
	r.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	if running {
		<-r.done
	}
	r.logger.Info("relay stopped", zap.Int("sessions", r.registry.Len()))
}

// Addr returns the bound socket address, or empty string if not serving.
func (r *Relay) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil && r.running {
		return r.conn.LocalAddr().String()
	}
	return ""
}

// IsRunning reports whether the receive loop is active.
func (r *Relay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
