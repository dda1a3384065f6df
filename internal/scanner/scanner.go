// Package scanner implements the gateway's passive capture path: sources
// deliver raw HCI packets from a radio monitor (UDP, serial HCI, pcap),
// the scan loop filters them down to Sensilo advertisements and hands
// RawAdvertisement values to the ingest pipeline through a bounded queue.
//
// The capture path never blocks on downstream work: when the queue is
// full the oldest queued advertisement is dropped so scanning stays
// responsive to new frames. No frame, however malformed, may crash or
// stall the loop.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sensilo/sensilo/internal/ble"
)

// RawAdvertisement is one captured Sensilo advertisement frame. It is
// transient: the ingest pipeline decodes it and discards it.
type RawAdvertisement struct {
	Address    ble.Address
	Payload    []byte // manufacturer-specific payload (counter + entries)
	RSSI       int8
	ReceivedAt time.Time
}

// Source produces raw H4 packets. Run blocks until the context is
// cancelled or the source is exhausted (a pcap file reaching EOF returns
// nil), calling emit for every captured packet.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error
}

// Config configures a Scanner.
type Config struct {
	Source Source

	// QueueSize bounds the advertisement queue between capture and
	// ingest. Default 256.
	QueueSize int

	// LogInterval spaces the periodic stats log line. Default 1m.
	LogInterval time.Duration

	// Debug enables per-frame skip logging.
	Debug bool
}

// Scanner runs one capture source and filters its packets.
type Scanner struct {
	cfg   Config
	queue chan RawAdvertisement
	stats *PacketStats
}

// New builds a scanner for the configured source.
func New(cfg Config) (*Scanner, error) {
	if cfg.Source == nil {
		return nil, errors.New("scanner: a capture source is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = time.Minute
	}
	return &Scanner{
		cfg:   cfg,
		queue: make(chan RawAdvertisement, cfg.QueueSize),
		stats: NewPacketStats(),
	}, nil
}

// Advertisements is the bounded queue of captured Sensilo advertisements.
// It is closed when Run returns.
func (s *Scanner) Advertisements() <-chan RawAdvertisement {
	return s.queue
}

// Stats returns the scanner's counters.
func (s *Scanner) Stats() *PacketStats {
	return s.stats
}

// Run captures until the context is cancelled or the source ends, then
// closes the advertisement queue.
func (s *Scanner) Run(ctx context.Context) error {
	defer close(s.queue)
	log.Printf("scanner: starting capture from %s (queue %d)", s.cfg.Source.Name(), s.cfg.QueueSize)

	go s.logStatsLoop(ctx)

	err := s.cfg.Source.Run(ctx, s.handlePacket)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scanner: source %s: %w", s.cfg.Source.Name(), err)
	}
	return nil
}

// handlePacket filters one captured packet. Uninteresting and malformed
// packets are counted and skipped; they must never propagate an error
// into the capture loop.
func (s *Scanner) handlePacket(pkt []byte, ts time.Time) {
	s.stats.AddPacket(len(pkt))

	rpt, err := ble.ParseAdvertisingReport(pkt)
	if err != nil {
		if errors.Is(err, ble.ErrNotAdvertisingReport) {
			s.debugf("scanner: skipping packet: %v", err)
		} else {
			s.stats.AddMalformed()
			s.debugf("scanner: skipping malformed packet: %v", err)
		}
		return
	}
	if !rpt.HasManufacturerData || rpt.CompanyID != ble.CompanyID {
		s.debugf("scanner: ignoring advertisement from %s without Sensilo payload", rpt.Address)
		return
	}

	s.stats.AddAdvertisement()
	raw := RawAdvertisement{
		Address:    rpt.Address,
		Payload:    append([]byte(nil), rpt.ManufacturerData...),
		RSSI:       rpt.RSSI,
		ReceivedAt: ts,
	}

	// Enqueue without blocking: shed the oldest entry under pressure.
	select {
	case s.queue <- raw:
		return
	default:
	}
	select {
	case <-s.queue:
		s.stats.AddDropped()
	default:
	}
	select {
	case s.queue <- raw:
	default:
		s.stats.AddDropped()
	}
}

func (s *Scanner) debugf(format string, v ...any) {
	if s.cfg.Debug {
		log.Printf(format, v...)
	}
}

func (s *Scanner) logStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stats.LogStats()
		}
	}
}
