package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sensilo/sensilo/internal/wire"
)

// State is the measurement cycle's position in its
// Init → Measuring → Broadcasting → Sleeping loop.
type State int

const (
	StateInit State = iota
	StateMeasuring
	StateBroadcasting
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateMeasuring:
		return "measuring"
	case StateBroadcasting:
		return "broadcasting"
	case StateSleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CycleConfig configures one node's measurement cycle.
type CycleConfig struct {
	Sensors    []Sensor
	Advertiser *Advertiser

	// MeasureInterval is the wake-to-wake period. Default 3s, matching the
	// reference firmware.
	MeasureInterval time.Duration

	// MaxMeasureDuration bounds how long one wake waits for its sensors.
	// If it elapses before every sensor has reported, the cycle's readings
	// are abandoned and the node goes back to sleep without incrementing
	// the burst counter. Default 500ms.
	MaxMeasureDuration time.Duration
}

// Cycle drives a node through its measurement loop. The burst counter and
// current state are process-wide node state: initialized on construction
// (power-on), mutated only inside short mutex-guarded sections.
type Cycle struct {
	cfg CycleConfig

	mu      sync.Mutex
	state   State
	counter uint16
}

// NewCycle validates the configuration and returns a cycle in StateInit
// with the burst counter at zero.
func NewCycle(cfg CycleConfig) (*Cycle, error) {
	if len(cfg.Sensors) == 0 {
		return nil, errors.New("node: cycle needs at least one sensor")
	}
	if cfg.Advertiser == nil {
		return nil, errors.New("node: cycle needs an advertiser")
	}
	if cfg.MeasureInterval <= 0 {
		cfg.MeasureInterval = 3 * time.Second
	}
	if cfg.MaxMeasureDuration <= 0 {
		cfg.MaxMeasureDuration = 500 * time.Millisecond
	}
	return &Cycle{cfg: cfg}, nil
}

// State returns the current cycle state.
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counter returns the current burst counter value.
func (c *Cycle) Counter() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

func (c *Cycle) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes the cycle until the context is cancelled, which stands in
// for power loss: whatever was in flight is simply abandoned.
//
// Wakes are scheduled against the previous wake's start time rather than
// its completion, so measurement duration does not drift the schedule.
func (c *Cycle) Run(ctx context.Context) error {
	log.Printf("node: cycle starting, interval=%s sensors=%d",
		c.cfg.MeasureInterval, len(c.cfg.Sensors))
	wake := time.Now()
	for {
		c.RunOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateSleeping)
		wake = wake.Add(c.cfg.MeasureInterval)
		timer := time.NewTimer(time.Until(wake))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce performs a single wake: measure, and broadcast if every sensor
// reported in time. A timed-out or failed measurement is fail-soft; the
// wake ends with no transmission and no counter increment.
func (c *Cycle) RunOnce(ctx context.Context) {
	c.setState(StateMeasuring)
	entries, err := c.measure(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("node: abandoning cycle: %v", err)
		}
		return
	}

	// Measuring → Broadcasting is the one place the counter moves.
	c.mu.Lock()
	c.state = StateBroadcasting
	counter := c.counter
	c.counter++ // uint16 wraps modulo 65536
	c.mu.Unlock()

	advData, err := c.cfg.Advertiser.BuildAdvertisement(counter, entries)
	if err != nil {
		log.Printf("node: could not build advertisement: %v", err)
		return
	}
	if err := c.cfg.Advertiser.Broadcast(ctx, advData); err != nil && ctx.Err() == nil {
		log.Printf("node: broadcast failed: %v", err)
	}
}

// measure triggers all sensors concurrently and waits at most
// MaxMeasureDuration for the full set of readings. Entry order in the
// resulting frame is sensor configuration order.
func (c *Cycle) measure(ctx context.Context) ([]wire.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MaxMeasureDuration)
	defer cancel()

	type result struct {
		idx   int
		value int32
		err   error
	}
	results := make(chan result, len(c.cfg.Sensors))
	for i, s := range c.cfg.Sensors {
		go func(idx int, s Sensor) {
			v, err := s.Measure(ctx)
			if err != nil {
				err = fmt.Errorf("sensor %s: %w", s.Name(), err)
			}
			results <- result{idx: idx, value: v, err: err}
		}(i, s)
	}

	entries := make([]wire.Entry, len(c.cfg.Sensors))
	for range c.cfg.Sensors {
		r := <-results
		if r.err != nil {
			return nil, r.err
		}
		entries[r.idx] = wire.Entry{Kind: c.cfg.Sensors[r.idx].Kind(), Value: r.value}
	}
	return entries, nil
}
