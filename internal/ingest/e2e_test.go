package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensilo/sensilo/internal/ble"
	"github.com/sensilo/sensilo/internal/node"
	"github.com/sensilo/sensilo/internal/scanner"
	"github.com/sensilo/sensilo/internal/wire"
)

// chanRadio hands broadcast advertisements straight to the test.
type chanRadio struct {
	addr ble.Address
	out  chan []byte
}

func (r *chanRadio) Broadcast(advData []byte) error {
	r.out <- ble.EncodeAdvertisingReport(r.addr, -61, advData)
	return nil
}

// e2eSource replays already-captured packets into the scan loop.
type e2eSource struct {
	packets [][]byte
}

func (s *e2eSource) Name() string { return "e2e" }

func (s *e2eSource) Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error {
	for _, pkt := range s.packets {
		emit(pkt, time.Now())
	}
	return nil
}

// Full protocol exercise: the node-side advertiser builds a burst for
// counter 5 with temperature 22.5°C and humidity 45.0%RH; the gateway
// scans, matches the registered device and emits one attributed sample
// per entry.
func TestEndToEnd(t *testing.T) {
	addr, err := ble.ParseAddress("864fe067997a")
	require.NoError(t, err)

	// Node side: build and "transmit" one burst.
	radio := &chanRadio{addr: addr, out: make(chan []byte, 3)}
	adv := node.NewAdvertiser(radio, ble.LocalName, 3, time.Millisecond, nil)
	advData, err := adv.BuildAdvertisement(5, []wire.Entry{
		wire.Temperature(22500),
		wire.Humidity(45000),
	})
	require.NoError(t, err)
	require.NoError(t, adv.Broadcast(context.Background(), advData))
	close(radio.out)

	var packets [][]byte
	for pkt := range radio.out {
		packets = append(packets, pkt)
	}
	require.Len(t, packets, 3)

	// Gateway side: scan the burst, decode, dispatch.
	scan, err := scanner.New(scanner.Config{Source: &e2eSource{packets: packets}})
	require.NoError(t, err)
	require.NoError(t, scan.Run(context.Background()))

	sink := &fakeSink{}
	p, err := New(Config{
		Registry: testRegistry(t),
		Sink:     sink,
		Source:   scan.Advertisements(),
		MaxBatch: 100,
	})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	batches := sink.delivered()
	require.Len(t, batches, 1)
	// Three burst repetitions of two entries each.
	samples := batches[0]
	require.Len(t, samples, 6)

	for i := 0; i < 2; i++ {
		assert.Equal(t, "Sensilo1", samples[i].Device)
		assert.Equal(t, "Kitchen", samples[i].Location)
		assert.Equal(t, uint16(5), samples[i].Counter)
	}
	assert.Equal(t, wire.KindTemperature, samples[0].Kind)
	assert.Equal(t, int32(22500), samples[0].Value, "22.5°C in millidegrees")
	assert.Equal(t, wire.KindHumidity, samples[1].Kind)
	assert.Equal(t, int32(45000), samples[1].Value, "45.0%RH in millipercent")
}
