package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/eduardohotta/cortex/internal/metrics"
)

const (
	defaultUDPBufferSize = 65536
	udpQueueSize         = 1000
)

// UDPConfig contains UDP ingest configuration
type UDPConfig struct {
	Address    string
	BufferSize int
}

// UDPReceiver receives raw PCM16 datagrams and exposes them as one
// contiguous byte stream. It implements io.ReadCloser so it can feed the
// stream audio source in place of stdin.
type UDPReceiver struct {
	conn    *net.UDPConn
	config  UDPConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	packets chan []byte
	pending []byte // unread part of the current packet

	// Statistics
	packetsReceived uint64
	bytesReceived   uint64
	packetsDropped  uint64
	mu              sync.RWMutex
}

// UDPStats represents UDP ingest statistics
type UDPStats struct {
	Address         string `json:"address"`
	PacketsReceived uint64 `json:"packets_received"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsDropped  uint64 `json:"packets_dropped"`
	QueueSize       int    `json:"queue_size"`
	QueueCapacity   int    `json:"queue_capacity"`
}

// NewUDPReceiver creates a receiver. m may be nil.
func NewUDPReceiver(cfg UDPConfig, logger *slog.Logger, m *metrics.Metrics) *UDPReceiver {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultUDPBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPReceiver{
		config:  cfg,
		logger:  logger.With("component", "server.udp"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		packets: make(chan []byte, udpQueueSize),
	}
}

// Start begins listening for datagrams
func (s *UDPReceiver) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP receiver started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	s.wg.Add(1)
	go s.receiveLoop()
	return nil
}

// Addr returns the bound local address, or nil before Start
func (s *UDPReceiver) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// receiveLoop is the datagram receiving loop. It is the only sender on
// the packets channel and closes it on exit.
func (s *UDPReceiver) receiveLoop() {
	defer s.wg.Done()
	defer close(s.packets)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Read deadline so cancellation is observed without traffic
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			return
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}
		if n == 0 {
			continue
		}

		s.mu.Lock()
		s.packetsReceived++
		s.bytesReceived += uint64(n)
		s.mu.Unlock()
		s.metrics.RecordUDPPacket(n)

		// Copy, the buffer is reused
		packet := make([]byte, n)
		copy(packet, buffer[:n])

		select {
		case s.packets <- packet:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()
			s.logger.Warn("Packet queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// Read blocks until packet data is available. It returns io.EOF once the
// receiver is closed and every queued packet has been read.
func (s *UDPReceiver) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		packet, ok := <-s.packets
		if !ok {
			return 0, io.EOF
		}
		s.pending = packet
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close stops the receiver. Pending Reads drain the queue then see io.EOF.
func (s *UDPReceiver) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		if s.conn != nil {
			err = s.conn.Close()
			s.wg.Wait()
		} else {
			close(s.packets)
		}

		stats := s.GetStatistics()
		s.logger.Info("UDP receiver stopped",
			slog.Uint64("packets_received", stats.PacketsReceived),
			slog.Uint64("packets_dropped", stats.PacketsDropped),
		)
	})
	return err
}

// GetStatistics returns current receiver statistics
func (s *UDPReceiver) GetStatistics() UDPStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return UDPStats{
		Address:         s.config.Address,
		PacketsReceived: s.packetsReceived,
		BytesReceived:   s.bytesReceived,
		PacketsDropped:  s.packetsDropped,
		QueueSize:       len(s.packets),
		QueueCapacity:   cap(s.packets),
	}
}
