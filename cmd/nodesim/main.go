// The node simulator runs the sensor-node measurement cycle against
// simulated sensors and broadcasts its beacons to a gateway's UDP source.
// It exists so the full node→gateway protocol can be exercised on one
// machine without flashing hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sensilo/sensilo/internal/ble"
	"github.com/sensilo/sensilo/internal/node"
)

var (
	gateway  = flag.String("gateway", "127.0.0.1:9871", "Gateway UDP source address")
	hexAddr  = flag.String("addr", "864fe067997a", "Simulated hardware address (12 hex digits)")
	name     = flag.String("name", ble.LocalName, "Advertised local name")
	interval = flag.Duration("interval", 3*time.Second, "Measurement interval")
	burst    = flag.Int("burst", 3, "Beacon transmissions per cycle")
	rssi     = flag.Int("rssi", -60, "Simulated signal strength")
	seed     = flag.Int64("seed", 0, "Sensor random seed (0 uses the current time)")
)

func main() {
	flag.Parse()

	addr, err := ble.ParseAddress(*hexAddr)
	if err != nil {
		log.Fatalf("Invalid address: %v", err)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	radio, err := node.NewUDPRadio(*gateway, addr, int8(*rssi))
	if err != nil {
		log.Fatalf("Failed to set up radio: %v", err)
	}
	defer radio.Close()

	advertiser := node.NewAdvertiser(radio, *name, *burst, 20*time.Millisecond, nil)
	cycle, err := node.NewCycle(node.CycleConfig{
		Sensors:         node.DefaultSimSensors(*seed),
		Advertiser:      advertiser,
		MeasureInterval: *interval,
	})
	if err != nil {
		log.Fatalf("Failed to create measurement cycle: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Node %s broadcasting to %s every %s", addr, *gateway, *interval)
	if err := cycle.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Cycle stopped: %v", err)
	}
	log.Printf("Node stopped after %d completed cycles", cycle.Counter())
}
