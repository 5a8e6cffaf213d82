// Package listener owns the single inbound UDP socket. Each received
// datagram is persisted first and echoed back to its sender afterwards;
// a datagram that fails to persist gets no echo.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"udp-monitor/internal/metrics"
	"udp-monitor/internal/storage"
)

// EchoPrefix is prepended to every echoed payload.
const EchoPrefix = "ECHO:"

// maxDatagramSize covers the largest possible UDP payload (65507 bytes).
const maxDatagramSize = 65535

// Notifier is told about every successfully stored datagram. Calls are
// fire-and-forget from the receive loop's point of view.
type Notifier interface {
	MessageStored(id int64, sourceAddress string, sourcePort int, payload []byte)
}

// Listener receives datagrams, stores them, and echoes them back.
type Listener struct {
	host     string
	port     int
	store    storage.Store
	notifier Notifier // optional
	logger   zerolog.Logger

	conn     *net.UDPConn
	stopOnce sync.Once
	done     chan struct{}
}

func New(host string, port int, store storage.Store, notifier Notifier, logger zerolog.Logger) *Listener {
	return &Listener{
		host:     host,
		port:     port,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "udp-listener").Logger(),
		done:     make(chan struct{}),
	}
}

// Start binds the socket and launches the receive loop. A bind failure
// is returned to the caller and is fatal; it is never retried here.
func (l *Listener) Start() error {
	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp", fmt.Sprintf("%s:%d", l.host, l.port))
	if err != nil {
		return fmt.Errorf("failed to bind udp %s:%d: %w", l.host, l.port, err)
	}
	l.conn = pc.(*net.UDPConn)

	l.logger.Info().Str("addr", l.conn.LocalAddr().String()).Msg("UDP listener started")

	go l.run()
	return nil
}

// Addr reports the bound address. Useful when port 0 asked the OS to
// pick one.
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Stop closes the socket, which unblocks the pending read, and waits
// for the loop to exit. Safe to call exactly once.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		if l.conn == nil {
			return
		}
		_ = l.conn.Close()
		<-l.done
		l.logger.Info().Msg("UDP listener stopped")
	})
}

// run processes datagrams strictly one at a time, in arrival order.
// There is no internal queue; OS socket buffering is the only buffer.
func (l *Listener) run() {
	defer close(l.done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, peer, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Shutdown path: Stop closed the socket.
				return
			}
			l.logger.Error().Err(err).Msg("socket read error")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		metrics.DatagramsReceived.Inc()
		metrics.BytesReceived.Add(float64(n))

		l.handle(peer, payload)
	}
}

func (l *Listener) handle(peer *net.UDPAddr, payload []byte) {
	sourceAddress := peer.IP.String()

	id, err := l.store.Insert(sourceAddress, peer.Port, payload)
	if err != nil {
		// No echo: silence signals the failure to the sender.
		metrics.StoreFailures.Inc()
		l.logger.Error().Err(err).
			Str("source", peer.String()).
			Int("size", len(payload)).
			Msg("failed to store datagram")
		return
	}

	echo := append([]byte(EchoPrefix), payload...)
	if _, err := l.conn.WriteToUDP(echo, peer); err != nil {
		// The record is durable regardless; echo failures are dropped.
		metrics.EchoFailures.Inc()
		l.logger.Warn().Err(err).
			Int64("id", id).
			Str("source", peer.String()).
			Msg("failed to send echo")
	}

	if l.notifier != nil {
		l.notifier.MessageStored(id, sourceAddress, peer.Port, payload)
	}

	l.logger.Debug().
		Int64("id", id).
		Str("source", peer.String()).
		Int("size", len(payload)).
		Msg("datagram stored and echoed")
}

// reuseAddr sets SO_REUSEADDR before bind.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
