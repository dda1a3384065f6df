//go:build pcap
// +build pcap

package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/sensilo/sensilo/internal/ble"
)

// PcapLiveSource captures H4 packets from a live bluetooth monitor
// interface (e.g. "bluetooth0"). Only available when building with the
// 'pcap' build tag, since live capture links against libpcap.
type PcapLiveSource struct {
	iface string
}

// NewPcapLiveSource captures from the named interface.
func NewPcapLiveSource(iface string) (*PcapLiveSource, error) {
	return &PcapLiveSource{iface: iface}, nil
}

func (p *PcapLiveSource) Name() string {
	return "pcap live " + p.iface
}

// Run captures until the context is cancelled.
func (p *PcapLiveSource) Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error {
	handle, err := pcap.OpenLive(p.iface, 512, false, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("opening live capture on %s: %w", p.iface, err)
	}
	defer handle.Close()

	linkType := int(handle.LinkType())
	log.Printf("scanner: live capture on %s (link type %d)", p.iface, linkType)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-source.Packets():
			if !ok {
				return nil
			}
			pkt, err := ble.StripPseudoHeader(linkType, packet.Data())
			if err != nil {
				log.Printf("scanner: skipping captured packet: %v", err)
				continue
			}
			emit(pkt, packet.Metadata().Timestamp)
		}
	}
}
