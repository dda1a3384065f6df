package ble

import (
	"errors"
	"fmt"
)

// H4 transport and HCI event framing constants.
const (
	packetTypeEvent = 0x04

	eventLEMeta          = 0x3e
	subeventAdvReport    = 0x02
	advTypeNonConnInd    = 0x03 // non-connectable undirected advertising
	addressTypeRandom    = 0x01
	minEventPacketSize   = 3 // packet type, event code, parameter length
	advReportMinParamLen = 2 + 1 + 1 + 6 + 1 + 1

	// Pcap link types carrying H4 packets. Type 201 prefixes each packet
	// with a 4-byte direction word.
	LinkTypeH4           = 187
	LinkTypeH4WithPseudo = 201
	pseudoHeaderSize     = 4
)

// ErrNotAdvertisingReport marks packets that are well-formed but not LE
// advertising reports (ACL data, other events, other subevents). The scan
// loop drops these without noise.
var ErrNotAdvertisingReport = errors.New("ble: not an LE advertising report")

// AdvertisingReport is one received advertisement, as extracted from an
// HCI LE Advertising Report event.
type AdvertisingReport struct {
	Address             Address
	RSSI                int8
	LocalName           string
	HasManufacturerData bool
	CompanyID           uint16
	ManufacturerData    []byte
}

// EncodeAdvertisingReport builds the H4 event bytes for a single LE
// advertising report. This is the transmit half used by the node
// simulator; ParseAdvertisingReport is its inverse.
func EncodeAdvertisingReport(addr Address, rssi int8, advData []byte) []byte {
	wireAddr := addr.Wire()
	paramLen := 2 + 1 + 1 + 6 + 1 + len(advData) + 1
	buf := make([]byte, 0, minEventPacketSize+paramLen)
	buf = append(buf, packetTypeEvent, eventLEMeta, byte(paramLen))
	buf = append(buf, subeventAdvReport, 1) // one report follows
	buf = append(buf, advTypeNonConnInd, addressTypeRandom)
	buf = append(buf, wireAddr[:]...)
	buf = append(buf, byte(len(advData)))
	buf = append(buf, advData...)
	buf = append(buf, byte(rssi))
	return buf
}

// ParseAdvertisingReport parses an H4 packet and extracts the first LE
// advertising report in it.
//
// Packets that are not advertising reports fail with
// ErrNotAdvertisingReport; structurally broken packets fail with a
// descriptive error. Neither may crash the caller.
func ParseAdvertisingReport(pkt []byte) (*AdvertisingReport, error) {
	if len(pkt) < minEventPacketSize {
		return nil, fmt.Errorf("ble: packet of %d bytes is shorter than an event header", len(pkt))
	}
	if pkt[0] != packetTypeEvent {
		return nil, fmt.Errorf("%w: H4 packet type 0x%02x", ErrNotAdvertisingReport, pkt[0])
	}
	if pkt[1] != eventLEMeta {
		return nil, fmt.Errorf("%w: event 0x%02x", ErrNotAdvertisingReport, pkt[1])
	}
	paramLen := int(pkt[2])
	params := pkt[minEventPacketSize:]
	if len(params) < paramLen {
		return nil, fmt.Errorf("ble: event declares %d parameter bytes, %d present", paramLen, len(params))
	}
	params = params[:paramLen]
	if len(params) < advReportMinParamLen {
		return nil, fmt.Errorf("ble: LE meta event of %d bytes cannot hold a report", len(params))
	}
	if params[0] != subeventAdvReport {
		return nil, fmt.Errorf("%w: subevent 0x%02x", ErrNotAdvertisingReport, params[0])
	}
	if params[1] == 0 {
		return nil, errors.New("ble: advertising report event with zero reports")
	}

	// First report: event type, address type, address, data length.
	report := params[2:]
	addr, err := AddressFromWire(report[2:8])
	if err != nil {
		return nil, err
	}
	dataLen := int(report[8])
	if 9+dataLen+1 > len(report) {
		return nil, fmt.Errorf("ble: report declares %d data bytes, %d present", dataLen, len(report)-9-1)
	}
	rpt := &AdvertisingReport{
		Address: addr,
		RSSI:    int8(report[9+dataLen]),
	}
	if err := parseADStructures(report[9:9+dataLen], rpt); err != nil {
		return nil, err
	}
	return rpt, nil
}

// StripPseudoHeader removes the pcap link-layer prefix from a captured
// packet, returning bare H4 bytes. The original capture files use link
// type 201, where each packet starts with a 4-byte direction word.
func StripPseudoHeader(linkType int, data []byte) ([]byte, error) {
	switch linkType {
	case LinkTypeH4:
		return data, nil
	case LinkTypeH4WithPseudo:
		if len(data) < pseudoHeaderSize {
			return nil, fmt.Errorf("ble: packet of %d bytes is shorter than the pseudo-header", len(data))
		}
		return data[pseudoHeaderSize:], nil
	default:
		return nil, fmt.Errorf("ble: unsupported pcap link type %d", linkType)
	}
}
