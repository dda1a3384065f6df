// Package registry maps hardware addresses to known device identities.
// The mapping is loaded once at gateway startup and read-only afterwards;
// frames from addresses outside it are dropped before any decode work.
package registry

import (
	"errors"
	"fmt"

	"github.com/sensilo/sensilo/internal/ble"
)

// Device is one known node's identity.
type Device struct {
	Name     string
	Address  ble.Address
	Location string // optional free-text label
}

// Entry is the parsed-configuration form of a device, with the address
// still in hex.
type Entry struct {
	Name     string
	HexAddr  string
	Location string
}

// Registry is the gateway's static address-to-device mapping.
type Registry struct {
	devices map[ble.Address]Device
}

// New builds a registry from configuration entries. Hex addresses are
// parsed case-insensitively; a duplicate address is a configuration error.
func New(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, errors.New("registry: no devices configured")
	}
	devices := make(map[ble.Address]Device, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("registry: device with address %q has no name", e.HexAddr)
		}
		addr, err := ble.ParseAddress(e.HexAddr)
		if err != nil {
			return nil, fmt.Errorf("registry: device %q: %w", e.Name, err)
		}
		if prev, ok := devices[addr]; ok {
			return nil, fmt.Errorf("registry: address %s assigned to both %q and %q", addr, prev.Name, e.Name)
		}
		devices[addr] = Device{Name: e.Name, Address: addr, Location: e.Location}
	}
	return &Registry{devices: devices}, nil
}

// Lookup returns the device registered under addr, if any.
func (r *Registry) Lookup(addr ble.Address) (Device, bool) {
	d, ok := r.devices[addr]
	return d, ok
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}
