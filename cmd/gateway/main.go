// The gateway listens for Sensilo sensor beacons on a radio monitor
// source, decodes them against the configured device registry and pushes
// typed samples to the configured sink.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sensilo/sensilo/internal/config"
	"github.com/sensilo/sensilo/internal/ingest"
	"github.com/sensilo/sensilo/internal/registry"
	"github.com/sensilo/sensilo/internal/scanner"
	"github.com/sensilo/sensilo/internal/sink"
)

var (
	configPath = flag.String("config", "gateway.json", "Path to the gateway configuration file")
	listen     = flag.String("listen", ":9870", "Status/metrics listen address")
	debug      = flag.Bool("debug", false, "Log skipped frames")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	entries := make([]registry.Entry, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		entries = append(entries, registry.Entry{Name: d.Name, HexAddr: d.HexAddr, Location: d.Location})
	}
	reg, err := registry.New(entries)
	if err != nil {
		log.Fatalf("Failed to build device registry: %v", err)
	}
	log.Printf("Registered %d devices", reg.Len())

	source, err := buildSource(cfg)
	if err != nil {
		log.Fatalf("Failed to set up capture source: %v", err)
	}
	target, closeSink, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("Failed to set up sink: %v", err)
	}
	defer closeSink()

	scan, err := scanner.New(scanner.Config{
		Source:    source,
		QueueSize: cfg.QueueSize,
		Debug:     *debug,
	})
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metrics := ingest.NewMetrics(promReg)

	pipeline, err := ingest.New(ingest.Config{
		Registry:      reg,
		Sink:          target,
		Source:        scan.Advertisements(),
		Metrics:       metrics,
		MaxBatch:      cfg.Batch.MaxSize,
		FlushInterval: time.Duration(cfg.Batch.FlushIntervalMS) * time.Millisecond,
		MaxAttempts:   cfg.Batch.MaxAttempts,
		BaseDelay:     time.Duration(cfg.Batch.BaseDelayMS) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("Failed to create ingest pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Capture flow: produces into the bounded queue, closes it on exit.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scan.Run(ctx); err != nil {
			log.Printf("Scanner stopped: %v", err)
		}
		// A source that ends on its own (pcap replay) should end the
		// process once the pipeline has drained.
		stop()
	}()

	// Ingest flow: consumes until the queue closes, then drains.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil {
			log.Printf("Ingest pipeline stopped: %v", err)
		}
	}()

	srv := statusServer(*listen, promReg, scan)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Status server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Status server shutdown: %v", err)
	}

	wg.Wait()
	scan.Stats().LogStats()
	log.Print("Goodbye")
}

func buildSource(cfg *config.Config) (scanner.Source, error) {
	switch {
	case cfg.PcapFile != "":
		return scanner.NewPcapFileSource(cfg.PcapFile), nil
	case cfg.PcapIface != "":
		live, err := scanner.NewPcapLiveSource(cfg.PcapIface)
		if err != nil {
			return nil, err
		}
		return live, nil
	case cfg.SerialPort != "":
		return scanner.NewSerialSource(cfg.SerialPort, cfg.SerialBaud), nil
	default:
		return scanner.NewUDPSource(cfg.ListenUDP, 1<<20), nil
	}
}

func buildSink(cfg *config.Config) (ingest.Sink, func(), error) {
	switch cfg.Sink {
	case "influx":
		s, err := sink.NewInflux(cfg.Influx)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "sqlite":
		s, err := sink.NewSqlite(cfg.Sqlite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return sink.Log{}, func() {}, nil
	}
}

func statusServer(addr string, promReg *prometheus.Registry, scan *scanner.Scanner) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(scan.Stats().Snapshot()); err != nil {
			log.Printf("Failed to encode stats: %v", err)
		}
	})
	return &http.Server{Addr: addr, Handler: mux}
}
