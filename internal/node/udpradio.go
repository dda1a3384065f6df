package node

import (
	"fmt"
	"net"

	"github.com/sensilo/sensilo/internal/ble"
)

// UDPRadio transmits advertisements as HCI advertising-report bytes over
// UDP. It stands in for the BLE radio so a simulated node and the gateway
// can share one machine; the gateway's UDP source consumes the exact same
// H4 framing its pcap and serial sources produce.
type UDPRadio struct {
	conn net.Conn
	addr ble.Address
	rssi int8
}

// NewUDPRadio dials the gateway's UDP listener. addr becomes the
// advertisement's source hardware address.
func NewUDPRadio(target string, addr ble.Address, rssi int8) (*UDPRadio, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("node: dialing %s: %w", target, err)
	}
	return &UDPRadio{conn: conn, addr: addr, rssi: rssi}, nil
}

// Broadcast sends one advertisement. Losses are acceptable; the burst
// schedule provides the redundancy.
func (r *UDPRadio) Broadcast(advData []byte) error {
	pkt := ble.EncodeAdvertisingReport(r.addr, r.rssi, advData)
	if _, err := r.conn.Write(pkt); err != nil {
		return fmt.Errorf("node: udp send: %w", err)
	}
	return nil
}

// Close releases the socket.
func (r *UDPRadio) Close() error {
	return r.conn.Close()
}
