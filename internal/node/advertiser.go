package node

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sensilo/sensilo/internal/ble"
	"github.com/sensilo/sensilo/internal/wire"
)

// Radio transmits one assembled advertising data unit. Implementations
// own link-layer concerns (device address, transport); the advertiser
// never changes counter or entry semantics, it only frames and schedules.
type Radio interface {
	Broadcast(advData []byte) error
}

// DefaultDropOrder drops particulates first and temperature last when a
// frame must shrink to fit the advertisement budget.
var DefaultDropOrder = []wire.Kind{
	wire.KindParticulateMatter,
	wire.KindHumidity,
	wire.KindTemperature,
}

// Advertiser wraps encoded beacon payloads into advertisements and
// re-transmits each one in a fixed burst for redundancy against packet
// loss on the unconnectable channel.
type Advertiser struct {
	radio         Radio
	localName     string
	burstCount    int
	burstInterval time.Duration
	dropOrder     []wire.Kind
}

// NewAdvertiser builds an advertiser. Zero burst settings default to the
// reference firmware's 3 transmissions spaced 20ms apart.
func NewAdvertiser(radio Radio, localName string, burstCount int, burstInterval time.Duration, dropOrder []wire.Kind) *Advertiser {
	if localName == "" {
		localName = ble.LocalName
	}
	if burstCount <= 0 {
		burstCount = 3
	}
	if burstInterval <= 0 {
		burstInterval = 20 * time.Millisecond
	}
	if len(dropOrder) == 0 {
		dropOrder = DefaultDropOrder
	}
	return &Advertiser{
		radio:         radio,
		localName:     localName,
		burstCount:    burstCount,
		burstInterval: burstInterval,
		dropOrder:     dropOrder,
	}
}

// BuildAdvertisement encodes the entries with the given counter and frames
// them into advertising data. If the frame would exceed the payload
// budget, entries are dropped lowest-priority-first per the configured
// drop order until it fits.
func (a *Advertiser) BuildAdvertisement(counter uint16, entries []wire.Entry) ([]byte, error) {
	budget := ble.PayloadBudget(a.localName)
	if budget > wire.MaxPayloadSize {
		budget = wire.MaxPayloadSize
	}
	entries = a.fitToBudget(entries, budget)
	payload, err := wire.Encode(counter, entries)
	if err != nil {
		return nil, fmt.Errorf("node: encoding frame: %w", err)
	}
	return ble.BuildAdvertisingData(a.localName, payload)
}

func (a *Advertiser) fitToBudget(entries []wire.Entry, budget int) []wire.Entry {
	kept := append([]wire.Entry(nil), entries...)
	for _, kind := range a.dropOrder {
		for wire.EncodedSize(len(kept)) > budget {
			i := indexOfKind(kept, kind)
			if i < 0 {
				break
			}
			log.Printf("node: dropping %s entry to fit advertisement budget (%d bytes)", kind, budget)
			kept = append(kept[:i], kept[i+1:]...)
		}
	}
	return kept
}

func indexOfKind(entries []wire.Entry, kind wire.Kind) int {
	for i, e := range entries {
		if e.Kind == kind {
			return i
		}
	}
	return -1
}

// Broadcast transmits the same advertisement burstCount times, spaced
// burstInterval apart. The first transmission happens immediately.
func (a *Advertiser) Broadcast(ctx context.Context, advData []byte) error {
	for i := 0; i < a.burstCount; i++ {
		if i > 0 {
			timer := time.NewTimer(a.burstInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := a.radio.Broadcast(advData); err != nil {
			return fmt.Errorf("node: broadcasting beacon: %w", err)
		}
	}
	return nil
}
