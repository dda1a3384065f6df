//go:build !pcap
// +build !pcap

package scanner

import (
	"context"
	"errors"
	"time"
)

// PcapLiveSource stub for builds without the 'pcap' tag. Live capture
// links against libpcap, so it is opt-in; pcap file replay, UDP and
// serial sources are always available.
type PcapLiveSource struct{}

var errNoPcap = errors.New("scanner: live capture requires building with -tags pcap")

// NewPcapLiveSource is unavailable without the 'pcap' build tag.
func NewPcapLiveSource(iface string) (*PcapLiveSource, error) {
	return nil, errNoPcap
}

func (p *PcapLiveSource) Name() string {
	return "pcap live (unavailable)"
}

// Run always fails in non-pcap builds.
func (p *PcapLiveSource) Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error {
	return errNoPcap
}
