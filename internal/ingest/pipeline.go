// Package ingest implements the gateway's decode-and-dispatch pipeline:
// captured advertisements are matched against the device registry,
// decoded into typed samples, accumulated into bounded batches and pushed
// to a sink with retries.
//
// Everything in this package is best-effort by design. Decode errors,
// unknown devices and exhausted deliveries are counted and dropped; none
// of them may stall consumption of the capture queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sensilo/sensilo/internal/ble"
	"github.com/sensilo/sensilo/internal/registry"
	"github.com/sensilo/sensilo/internal/scanner"
	"github.com/sensilo/sensilo/internal/wire"
)

// Sample is one decoded, attributed reading on its way to the sink.
type Sample struct {
	Device     string
	Location   string
	Address    ble.Address
	ReceivedAt time.Time
	Kind       wire.Kind
	Value      int32
	Counter    uint16
	RSSI       int8
}

// Sink accepts batches of samples. Implementations live in the sink
// package; the pipeline only needs the write.
type Sink interface {
	Name() string
	Write(ctx context.Context, samples []Sample) error
}

// Config configures a Pipeline.
type Config struct {
	Registry *registry.Registry
	Sink     Sink
	Source   <-chan scanner.RawAdvertisement
	Metrics  *Metrics

	// MaxBatch flushes a batch when it reaches this many samples.
	// Default 64.
	MaxBatch int

	// FlushInterval flushes a non-empty batch at least this often.
	// Default 5s.
	FlushInterval time.Duration

	// MaxAttempts bounds delivery tries per batch (first try included).
	// Default 5.
	MaxAttempts int

	// BaseDelay is the first retry backoff; it doubles per attempt.
	// Default 500ms.
	BaseDelay time.Duration

	// MaxRetryWindow bounds the total time spent retrying one batch.
	// Default 30s.
	MaxRetryWindow time.Duration

	// DrainTimeout bounds the final flush on shutdown. Default 5s.
	DrainTimeout time.Duration
}

// Pipeline consumes the scanner queue and feeds the sink.
type Pipeline struct {
	cfg   Config
	batch []Sample
}

// New validates the configuration and builds a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Registry == nil {
		return nil, errors.New("ingest: a device registry is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("ingest: a sink is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("ingest: an advertisement source is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 64
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryWindow <= 0 {
		cfg.MaxRetryWindow = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &Pipeline{cfg: cfg}, nil
}

// Run consumes advertisements until the source channel closes, then
// performs a final bounded flush. Network I/O happens only on this
// goroutine so sink outages never touch the capture path.
func (p *Pipeline) Run(ctx context.Context) error {
	log.Printf("ingest: pipeline starting, sink=%s batch=%d flush=%s",
		p.cfg.Sink.Name(), p.cfg.MaxBatch, p.cfg.FlushInterval)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-p.cfg.Source:
			if !ok {
				p.drain()
				return nil
			}
			p.handle(ctx, raw)
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// handle turns one advertisement into samples. Unknown devices are
// dropped before any decode work; decode failures are counted and
// dropped.
func (p *Pipeline) handle(ctx context.Context, raw scanner.RawAdvertisement) {
	dev, ok := p.cfg.Registry.Lookup(raw.Address)
	if !ok {
		p.cfg.Metrics.UnknownDevices.Inc()
		return
	}

	frame, err := wire.Decode(raw.Payload)
	if err != nil {
		p.cfg.Metrics.DecodeErrors.Inc()
		log.Printf("ingest: dropping frame from %s (%s): %v", dev.Name, raw.Address, err)
		return
	}
	p.cfg.Metrics.FramesDecoded.Inc()
	if frame.Truncated {
		p.cfg.Metrics.TruncatedFrames.Inc()
		log.Printf("ingest: frame from %s truncated at unknown tag 0x%02x, keeping %d entries",
			dev.Name, frame.UnknownTag, len(frame.Entries))
	}

	for _, entry := range frame.Entries {
		p.batch = append(p.batch, Sample{
			Device:     dev.Name,
			Location:   dev.Location,
			Address:    raw.Address,
			ReceivedAt: raw.ReceivedAt,
			Kind:       entry.Kind,
			Value:      entry.Value,
			Counter:    frame.Counter,
			RSSI:       raw.RSSI,
		})
		p.cfg.Metrics.SamplesBatched.Inc()
	}
	if len(p.batch) >= p.cfg.MaxBatch {
		p.flush(ctx)
	}
}

// flush delivers the accumulated batch, retrying with exponential backoff
// within the configured attempt and time bounds. An exhausted batch is
// dropped; samples are best-effort and never spill to local storage.
func (p *Pipeline) flush(ctx context.Context) {
	if len(p.batch) == 0 {
		return
	}
	batch := p.batch
	p.batch = nil

	if err := p.deliver(ctx, batch); err != nil {
		p.cfg.Metrics.BatchesDropped.Inc()
		log.Printf("ingest: dropping batch of %d samples: %v", len(batch), err)
		return
	}
	p.cfg.Metrics.BatchesDelivered.Inc()
}

func (p *Pipeline) deliver(ctx context.Context, batch []Sample) error {
	deadline := time.Now().Add(p.cfg.MaxRetryWindow)
	delay := p.cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		lastErr = p.cfg.Sink.Write(ctx, batch)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("delivery interrupted: %w", lastErr)
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("retry window exhausted after %d attempts: %w", attempt, lastErr)
		}
		p.cfg.Metrics.SinkRetries.Inc()
		log.Printf("ingest: sink write failed (attempt %d/%d), retrying in %s: %v",
			attempt, p.cfg.MaxAttempts, delay, lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("delivery interrupted: %w", lastErr)
		case <-timer.C:
		}
		delay *= 2
	}
	return fmt.Errorf("all %d attempts failed: %w", p.cfg.MaxAttempts, lastErr)
}

// drain flushes whatever is batched within the drain deadline, using a
// fresh context so an already-cancelled run context does not prevent the
// goodbye write.
func (p *Pipeline) drain() {
	if len(p.batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()
	log.Printf("ingest: draining %d batched samples", len(p.batch))
	p.flush(ctx)
}
