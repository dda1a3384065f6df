// Package ble implements the small slice of Bluetooth Low Energy framing
// the Sensilo protocol rides on: hardware addresses, advertising data
// structures, and HCI LE Advertising Report events in H4 transport framing.
//
// Only non-connectable undirected advertising is handled. Anything else on
// the wire is reported as uninteresting (ErrNotAdvertisingReport) so the
// scan loop can skip it cheaply.
package ble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 6-byte Bluetooth hardware address, stored in display order
// (the order a human writes it, most significant byte first).
type Address [6]byte

// ParseAddress parses a 12-digit hex address, case-insensitively.
// Separators are not accepted; the gateway config stores bare hex.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 12 {
		return a, fmt.Errorf("ble: address %q must be 12 hex digits, got %d", s, len(s))
	}
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return a, fmt.Errorf("ble: invalid hex address %q: %w", s, err)
	}
	copy(a[:], raw)
	return a, nil
}

// AddressFromWire builds an Address from the over-the-air byte order.
// The link layer transmits address bytes least significant first, so the
// slice is inverted into display order.
func AddressFromWire(b []byte) (Address, error) {
	var a Address
	if len(b) != 6 {
		return a, fmt.Errorf("ble: wire address must be 6 bytes, got %d", len(b))
	}
	for i := range a {
		a[i] = b[5-i]
	}
	return a, nil
}

// Wire returns the address in over-the-air (inverted) byte order.
func (a Address) Wire() [6]byte {
	var w [6]byte
	for i := range w {
		w[i] = a[5-i]
	}
	return w
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}
