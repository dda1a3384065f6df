// Package node implements the sensor-node half of the Sensilo protocol: a
// measurement cycle state machine that periodically samples sensors, packs
// the readings into a beacon payload and broadcasts it in short bursts
// through a Radio.
//
// The real Sensilo node is battery-powered firmware; this package models
// its task pipeline as an explicit state machine so the wire protocol can
// be exercised end to end by the node simulator and by tests.
package node

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sensilo/sensilo/internal/wire"
)

// Sensor is one onboard measurement source. Measure blocks until a reading
// is available or the context expires; the cycle bounds every call with
// its configured maximum measurement duration.
type Sensor interface {
	Name() string
	Kind() wire.Kind
	Measure(ctx context.Context) (int32, error)
}

// SimSensor is a deterministic-seedable simulated sensor used by the node
// simulator and tests. It produces values on a slow random walk around a
// baseline, after an optional settle delay that models real acquisition
// time.
type SimSensor struct {
	name   string
	kind   wire.Kind
	settle time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	value int32
	step  int32
}

// NewSimSensor builds a simulated sensor. Values start at baseline and
// drift by at most ±step per reading.
func NewSimSensor(name string, kind wire.Kind, baseline, step int32, settle time.Duration, seed int64) *SimSensor {
	return &SimSensor{
		name:   name,
		kind:   kind,
		settle: settle,
		rng:    rand.New(rand.NewSource(seed)),
		value:  baseline,
		step:   step,
	}
}

func (s *SimSensor) Name() string    { return s.name }
func (s *SimSensor) Kind() wire.Kind { return s.kind }

func (s *SimSensor) Measure(ctx context.Context) (int32, error) {
	if s.settle > 0 {
		timer := time.NewTimer(s.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step > 0 {
		s.value += s.rng.Int31n(2*s.step+1) - s.step
	}
	return s.value, nil
}

// DefaultSimSensors builds the simulated equivalent of the reference node
// hardware: a temperature/humidity pair plus a particulate matter sensor.
func DefaultSimSensors(seed int64) []Sensor {
	return []Sensor{
		NewSimSensor("sht-temp", wire.KindTemperature, 22500, 150, 10*time.Millisecond, seed),
		NewSimSensor("sht-humi", wire.KindHumidity, 45000, 400, 10*time.Millisecond, seed+1),
		NewSimSensor("pm-sensor", wire.KindParticulateMatter, 8000, 900, 25*time.Millisecond, seed+2),
	}
}
