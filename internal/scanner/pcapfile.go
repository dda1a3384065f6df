package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/sensilo/sensilo/internal/ble"
)

// PcapFileSource replays H4 packets from a pcap capture file, preserving
// the capture timestamps. Reaching the end of the file ends the source
// cleanly.
type PcapFileSource struct {
	path string
}

// NewPcapFileSource replays the given capture file.
func NewPcapFileSource(path string) *PcapFileSource {
	return &PcapFileSource{path: path}
}

func (p *PcapFileSource) Name() string {
	return "pcap file " + p.path
}

// Run replays the file until EOF or cancellation.
func (p *PcapFileSource) Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("opening capture file: %w", err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading pcap header of %s: %w", p.path, err)
	}
	linkType := int(reader.LinkType())
	log.Printf("scanner: replaying %s (link type %d)", p.path, linkType)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			log.Printf("scanner: capture file %s exhausted", p.path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading capture record: %w", err)
		}
		pkt, err := ble.StripPseudoHeader(linkType, data)
		if err != nil {
			// One bad record must not end the replay.
			log.Printf("scanner: skipping capture record: %v", err)
			continue
		}
		emit(pkt, ci.Timestamp)
	}
}
