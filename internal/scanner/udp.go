package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// UDPSource receives H4 packets over UDP, one packet per datagram. This is
// the transport the node simulator broadcasts on, and doubles as a relay
// input for remote radio monitors.
type UDPSource struct {
	address string
	rcvBuf  int
}

// NewUDPSource listens on the given UDP address. rcvBuf <= 0 keeps the
// kernel default receive buffer.
func NewUDPSource(address string, rcvBuf int) *UDPSource {
	return &UDPSource{address: address, rcvBuf: rcvBuf}
}

func (u *UDPSource) Name() string {
	return "udp " + u.address
}

// Run reads datagrams until the context is cancelled.
func (u *UDPSource) Run(ctx context.Context, emit func(pkt []byte, ts time.Time)) error {
	addr, err := net.ResolveUDPAddr("udp", u.address)
	if err != nil {
		return fmt.Errorf("resolving UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listening on UDP address: %w", err)
	}
	defer conn.Close()

	if u.rcvBuf > 0 {
		if err := conn.SetReadBuffer(u.rcvBuf); err != nil {
			log.Printf("scanner: could not set UDP receive buffer to %d: %v", u.rcvBuf, err)
		}
	}
	log.Printf("scanner: UDP source listening on %s", conn.LocalAddr())

	// Unblock the read loop when the context ends.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 512) // advertisements are tiny; 512 leaves margin
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("reading UDP datagram: %w", err)
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		emit(pkt, time.Now())
	}
}
