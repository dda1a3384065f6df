package sink

import (
	"context"
	"log"

	"github.com/sensilo/sensilo/internal/ingest"
)

// Log prints every sample instead of delivering it. Used by the gateway's
// dev mode.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Write(ctx context.Context, samples []ingest.Sample) error {
	for _, s := range samples {
		log.Printf("sample: %s %s=%d device=%s location=%q counter=%d rssi=%d",
			s.ReceivedAt.Format("15:04:05.000"), s.Kind, s.Value, s.Device, s.Location, s.Counter, s.RSSI)
	}
	return nil
}
