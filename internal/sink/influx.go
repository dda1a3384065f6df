// Package sink provides the delivery targets for decoded samples: an
// InfluxDB line-protocol HTTP sink for production and a sqlite archive
// sink for local capture. Both are best-effort batch writers behind the
// ingest pipeline's Sink interface.
package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sensilo/sensilo/internal/ingest"
)

// InfluxConfig holds the sink connection parameters.
type InfluxConfig struct {
	URL      string `json:"url"`      // e.g. http://localhost:8086
	Database string `json:"database"` // target database name
	User     string `json:"user"`
	Pass     string `json:"pass"`
}

// Influx writes sample batches to InfluxDB using the v1 line protocol
// write endpoint.
type Influx struct {
	cfg    InfluxConfig
	client *http.Client
}

// NewInflux builds the sink. The HTTP client carries a request timeout so
// a hung sink cannot pin a delivery attempt forever.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sink: influx URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("sink: influx database is required")
	}
	return &Influx{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *Influx) Name() string {
	return fmt.Sprintf("influx %s/%s", s.cfg.URL, s.cfg.Database)
}

// Write posts one line per sample. Field values stay fixed-point integers
// end to end; nothing is converted to floating point on the way out.
func (s *Influx) Write(ctx context.Context, samples []ingest.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	var b strings.Builder
	for _, sample := range samples {
		writeLine(&b, sample)
	}

	url := fmt.Sprintf("%s/write?db=%s", s.cfg.URL, s.cfg.Database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(b.String()))
	if err != nil {
		return fmt.Errorf("sink: building influx request: %w", err)
	}
	if s.cfg.User != "" {
		req.SetBasicAuth(s.cfg.User, s.cfg.Pass)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: posting to influx: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("sink: influx database %q not found", s.cfg.Database)
	case http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sink: influx rejected write: %s", strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("sink: unexpected influx status %s", resp.Status)
	}
}

// writeLine renders one sample as a line protocol point:
//
//	temperature,address=864fe067997a,device=Sensilo1,location=Kitchen value=22500i,counter=5i,rssi=-61i <ns>
func writeLine(b *strings.Builder, s ingest.Sample) {
	b.WriteString(s.Kind.String())
	b.WriteString(",address=")
	b.WriteString(s.Address.String())
	b.WriteString(",device=")
	b.WriteString(escapeTag(s.Device))
	if s.Location != "" {
		b.WriteString(",location=")
		b.WriteString(escapeTag(s.Location))
	}
	fmt.Fprintf(b, " value=%di,counter=%di,rssi=%di %d\n",
		s.Value, s.Counter, s.RSSI, s.ReceivedAt.UnixNano())
}

// escapeTag escapes the characters line protocol reserves in tag values.
func escapeTag(v string) string {
	r := strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
	return r.Replace(v)
}
