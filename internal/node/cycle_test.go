package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensilo/sensilo/internal/ble"
	"github.com/sensilo/sensilo/internal/wire"
)

type fakeRadio struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *fakeRadio) Broadcast(advData []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), advData...))
	return nil
}

func (r *fakeRadio) sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

type fixedSensor struct {
	name  string
	kind  wire.Kind
	value int32
	delay time.Duration
	err   error
}

func (s *fixedSensor) Name() string    { return s.name }
func (s *fixedSensor) Kind() wire.Kind { return s.kind }

func (s *fixedSensor) Measure(ctx context.Context) (int32, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.value, s.err
}

func testCycle(t *testing.T, radio Radio, sensors []Sensor, maxMeasure time.Duration) *Cycle {
	t.Helper()
	adv := NewAdvertiser(radio, "", 3, time.Millisecond, nil)
	cycle, err := NewCycle(CycleConfig{
		Sensors:            sensors,
		Advertiser:         adv,
		MeasureInterval:    10 * time.Millisecond,
		MaxMeasureDuration: maxMeasure,
	})
	require.NoError(t, err)
	return cycle
}

func TestCycleBroadcastsBurst(t *testing.T) {
	radio := &fakeRadio{}
	sensors := []Sensor{
		&fixedSensor{name: "temp", kind: wire.KindTemperature, value: 22500},
		&fixedSensor{name: "humi", kind: wire.KindHumidity, value: 45000},
	}
	cycle := testCycle(t, radio, sensors, 100*time.Millisecond)

	cycle.RunOnce(context.Background())

	frames := radio.sent()
	require.Len(t, frames, 3, "burst should re-transmit the frame three times")
	assert.Equal(t, frames[0], frames[1])
	assert.Equal(t, frames[1], frames[2])
	assert.Equal(t, uint16(1), cycle.Counter())

	// The transmitted frame decodes back to the readings in sensor order.
	rpt, err := ble.ParseAdvertisingReport(ble.EncodeAdvertisingReport(ble.Address{}, -50, frames[0]))
	require.NoError(t, err)
	frame, err := wire.Decode(rpt.ManufacturerData)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), frame.Counter)
	assert.Equal(t, []wire.Entry{wire.Temperature(22500), wire.Humidity(45000)}, frame.Entries)
}

func TestCycleCounterIncrementsPerCompletedCycle(t *testing.T) {
	radio := &fakeRadio{}
	cycle := testCycle(t, radio, []Sensor{
		&fixedSensor{name: "temp", kind: wire.KindTemperature, value: 1000},
	}, 100*time.Millisecond)

	for i := 0; i < 4; i++ {
		cycle.RunOnce(context.Background())
	}
	assert.Equal(t, uint16(4), cycle.Counter())
	assert.Len(t, radio.sent(), 12)
}

func TestCycleAbandonsSlowMeasurement(t *testing.T) {
	radio := &fakeRadio{}
	cycle := testCycle(t, radio, []Sensor{
		&fixedSensor{name: "temp", kind: wire.KindTemperature, value: 1000},
		&fixedSensor{name: "slow", kind: wire.KindHumidity, value: 2000, delay: time.Second},
	}, 10*time.Millisecond)

	cycle.RunOnce(context.Background())

	assert.Empty(t, radio.sent(), "a timed-out cycle must not broadcast")
	assert.Equal(t, uint16(0), cycle.Counter(), "a timed-out cycle must not increment the counter")

	// The next wake with a healthy sensor set proceeds normally.
	cycle.cfg.Sensors = cycle.cfg.Sensors[:1]
	cycle.RunOnce(context.Background())
	assert.Equal(t, uint16(1), cycle.Counter())
}

func TestCycleAbandonsOnSensorError(t *testing.T) {
	radio := &fakeRadio{}
	cycle := testCycle(t, radio, []Sensor{
		&fixedSensor{name: "broken", kind: wire.KindTemperature, err: errors.New("i2c bus stuck")},
	}, 50*time.Millisecond)

	cycle.RunOnce(context.Background())
	assert.Empty(t, radio.sent())
	assert.Equal(t, uint16(0), cycle.Counter())
}

// A long local name shrinks the payload budget; the advertiser must shed
// entries in drop order (particulates first, temperature last) rather
// than fail the encode.
func TestAdvertiserDropOrder(t *testing.T) {
	radio := &fakeRadio{}
	// 13-char name: budget = 31 - 15 - 4 = 12 bytes = counter + 2 entries.
	adv := NewAdvertiser(radio, "Sensilo-attic", 1, time.Millisecond, nil)

	advData, err := adv.BuildAdvertisement(5, []wire.Entry{
		wire.Temperature(22500),
		wire.Humidity(45000),
		wire.ParticulateMatter(9000),
	})
	require.NoError(t, err)

	rpt, err := ble.ParseAdvertisingReport(ble.EncodeAdvertisingReport(ble.Address{}, -50, advData))
	require.NoError(t, err)
	frame, err := wire.Decode(rpt.ManufacturerData)
	require.NoError(t, err)
	assert.Equal(t, []wire.Entry{wire.Temperature(22500), wire.Humidity(45000)}, frame.Entries,
		"particulate matter is lowest priority and goes first")
}

func TestSimSensorIsDeterministic(t *testing.T) {
	a := NewSimSensor("t", wire.KindTemperature, 22500, 100, 0, 42)
	b := NewSimSensor("t", wire.KindTemperature, 22500, 100, 0, 42)
	for i := 0; i < 5; i++ {
		va, err := a.Measure(context.Background())
		require.NoError(t, err)
		vb, err := b.Measure(context.Background())
		require.NoError(t, err)
		assert.Equal(t, va, vb)
	}
}
